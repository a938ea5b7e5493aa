package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meetingflow/internal/auth"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		actor     string
		meetingID int64
		event     string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an actor token for the status API or downstream tests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tokens, err := auth.NewTokenService(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := tokens.GenerateActorToken(actor, meetingID, event)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, map[string]string{"token": token})
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", string(cliActor), "Actor named in the token")
	cmd.Flags().Int64Var(&meetingID, "meeting", 0, "Meeting id claim")
	cmd.Flags().StringVar(&event, "event", "", "Event claim")
	return cmd
}
