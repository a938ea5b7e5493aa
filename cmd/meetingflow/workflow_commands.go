package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"meetingflow/internal/api"
	"meetingflow/internal/daemonrun"
	"meetingflow/internal/queue"
	"meetingflow/internal/queueaccess"
	"meetingflow/internal/workflow"
)

func newClaimCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "claim <capture|transcription|report>",
		Short: "Claim one pending meeting for a stage and run it in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stageName := strings.ToLower(strings.TrimSpace(args[0]))
			switch stageName {
			case queue.StageCapture, queue.StageTranscription, queue.StageReport:
			default:
				return fmt.Errorf("unknown stage %q", args[0])
			}
			return ctx.withRuntime(cmd.Context(), func(_ queueaccess.Session, rt *daemonrun.Runtime) error {
				meeting, claimed, runErr := rt.Manager.ClaimOnce(cmd.Context(), stageName)
				if !claimed {
					if runErr != nil {
						return runErr
					}
					if ctx.JSONMode() {
						return writeJSON(cmd, map[string]any{"claimed": false})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Nothing to claim for %s\n", stageName)
					return nil
				}
				if ctx.JSONMode() {
					if err := writeJSON(cmd, map[string]any{"claimed": true, "meeting": api.FromMeeting(meeting)}); err != nil {
						return err
					}
					return runErr
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Meeting %d is now %s\n", meeting.ID, formatStatusLabel(string(meeting.Status)))
				return runErr
			})
		},
	}
}

func newTransitionCommand(ctx *commandContext) *cobra.Command {
	var actor string
	var filename string

	cmd := &cobra.Command{
		Use:   "transition <id> <event>",
		Short: "Apply a status graph event to a meeting",
		Long: "Apply a status graph event to a meeting. The downstream trigger fires first;\n" +
			"if it fails the meeting moves to the event's failure status instead.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMeetingID(args[0])
			if err != nil {
				return err
			}
			event, err := queue.ParseEvent(args[1])
			if err != nil {
				return err
			}
			var opts []workflow.ApplyOption
			switch event {
			case queue.EventCompleteTranscription:
				opts = append(opts, workflow.WithTranscriptionFilename(filename))
			case queue.EventCompleteReport:
				opts = append(opts, workflow.WithReportFilename(filename))
			}
			return ctx.withRuntime(cmd.Context(), func(_ queueaccess.Session, rt *daemonrun.Runtime) error {
				updated, applyErr := rt.Orchestrator.Apply(cmd.Context(), id, event, workflow.Actor(actor), opts...)
				if updated == nil {
					return applyErr
				}
				if ctx.JSONMode() {
					if err := writeJSON(cmd, api.FromMeeting(updated)); err != nil {
						return err
					}
					return applyErr
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Meeting %d is now %s\n", updated.ID, formatStatusLabel(string(updated.Status)))
				return applyErr
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", string(cliActor), "Actor recorded on the transition")
	cmd.Flags().StringVar(&filename, "filename", "", "Stored file name for complete_transcription and complete_report")
	return cmd
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "retry [id...]",
		Short: "Move failed meetings back to their re-entry status",
		Long:  "Move failed meetings back to their re-entry status. With no ids every failed meeting is retried.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseMeetingIDs(args)
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd.Context(), func(_ queueaccess.Session, rt *daemonrun.Runtime) error {
				retried, err := rt.Orchestrator.Retry(cmd.Context(), workflow.Actor(actor), ids...)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.MeetingListResponse{Meetings: api.FromMeetings(retried)})
				}
				out := cmd.OutOrStdout()
				if len(retried) == 0 {
					fmt.Fprintln(out, "No failed meetings to retry")
					return nil
				}
				for _, meeting := range retried {
					fmt.Fprintf(out, "Meeting %d reset to %s\n", meeting.ID, formatStatusLabel(string(meeting.Status)))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", string(cliActor), "Actor recorded on the retry")
	return cmd
}

func newStaleCommand(ctx *commandContext) *cobra.Command {
	var fail bool

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List claimed meetings whose worker stopped heartbeating",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd.Context(), func(_ queueaccess.Session, rt *daemonrun.Runtime) error {
				stale, err := rt.Heartbeat.DetectStale(cmd.Context(), fail)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.MeetingListResponse{Meetings: api.FromMeetings(stale)})
				}
				out := cmd.OutOrStdout()
				if len(stale) == 0 {
					fmt.Fprintln(out, "No stale claims")
					return nil
				}
				rows := make([][]string, 0, len(stale))
				for _, meeting := range stale {
					heartbeat := ""
					if meeting.LastHeartbeat != nil {
						heartbeat = meeting.LastHeartbeat.Local().Format("2006-01-02 15:04:05")
					}
					rows = append(rows, []string{
						strconv.FormatInt(meeting.ID, 10),
						meeting.Name,
						formatStatusLabel(string(meeting.Status)),
						heartbeat,
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Name", "Status", "Last Heartbeat"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
				))
				if fail {
					fmt.Fprintf(out, "Marked %d meeting(s) failed\n", len(stale))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&fail, "fail", false, "Move stale meetings to their failure status")
	return cmd
}
