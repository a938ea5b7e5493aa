package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"meetingflow/internal/api"
	"meetingflow/internal/auth"
	"meetingflow/internal/daemonctl"
	"meetingflow/internal/daemonrun"
	"meetingflow/internal/preflight"
	"meetingflow/internal/queueaccess"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var minter daemonctl.TokenMinter
			if strings.TrimSpace(cfg.Auth.SigningKey) != "" {
				tokens, err := auth.NewTokenService(cfg.Auth)
				if err != nil {
					return err
				}
				minter = tokens
			}
			return ctx.withStore(cmd.Context(), func(session queueaccess.Session) error {
				snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), cfg, minter, session.Repository)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, snapshot)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintln(out, renderSectionHeader("Daemon", colorize))
				switch {
				case snapshot.Reachable && snapshot.Status.Workflow.Running:
					fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", snapshot.PID), colorize))
				case snapshot.Reachable:
					fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "reachable, lanes stopped", colorize))
				case snapshot.PID > 0:
					fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("pid %d alive, status api not reachable", snapshot.PID), colorize))
				default:
					fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, "not running", colorize))
				}
				if snapshot.APIError != "" {
					fmt.Fprintln(out, renderStatusLine("Status API", statusError, snapshot.APIError, colorize))
				}
				fmt.Fprintln(out, renderStatusLine("Store", statusInfo, session.Driver, colorize))
				if snapshot.Reachable {
					for _, stage := range snapshot.Status.Workflow.StageHealth {
						fmt.Fprintln(out, stageHealthLine(stage, colorize))
					}
					if last := snapshot.Status.Workflow.LastError; last != "" {
						fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, last, colorize))
					}
				}

				fmt.Fprintln(out)
				fmt.Fprintln(out, renderSectionHeader("Queue", colorize))
				rows := buildStatusRows(snapshot.QueueStats)
				if len(rows) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run preflight checks against the configured store, blob store and services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd.Context(), func(session queueaccess.Session, rt *daemonrun.Runtime) error {
				results := preflight.RunAll(cmd.Context(), ctx.config, preflight.Targets{
					Repository: session.Repository,
					Blobs:      rt.Blobs,
				})
				summary := rt.Manager.Status(cmd.Context())
				stages := api.FromStatusSummary(summary).StageHealth
				failed := preflight.Failed(results)

				if ctx.JSONMode() {
					if err := writeJSON(cmd, map[string]any{"checks": results, "stages": stages}); err != nil {
						return err
					}
				} else {
					out := cmd.OutOrStdout()
					colorize := shouldColorize(out)
					fmt.Fprintln(out, renderSectionHeader("Preflight", colorize))
					for _, result := range results {
						kind := statusOK
						if !result.Passed {
							kind = statusError
						}
						fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderSectionHeader("Stages", colorize))
					for _, stage := range stages {
						fmt.Fprintln(out, stageHealthLine(stage, colorize))
					}
				}
				if len(failed) > 0 {
					return fmt.Errorf("%d preflight check(s) failed", len(failed))
				}
				return nil
			})
		},
	}
}

func stageHealthLine(stage api.StageHealth, colorize bool) string {
	label := formatStatusLabel(stage.Name) + " stage"
	if !stage.Ready {
		return renderStatusLine(label, statusWarn, stage.Detail, colorize)
	}
	return renderStatusLine(label, statusOK, fmt.Sprintf("%d worker(s)", stage.Workers), colorize)
}
