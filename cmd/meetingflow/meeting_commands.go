package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"meetingflow/internal/api"
	"meetingflow/internal/blob"
	"meetingflow/internal/daemonrun"
	"meetingflow/internal/queue"
	"meetingflow/internal/queueaccess"
	"meetingflow/internal/workflow"
)

const cliActor workflow.Actor = "cli"

func newMeetingCommand(ctx *commandContext) *cobra.Command {
	meetingCmd := &cobra.Command{
		Use:   "meeting",
		Short: "Create and inspect meetings",
	}

	meetingCmd.AddCommand(newMeetingCreateCommand(ctx))
	meetingCmd.AddCommand(newMeetingImportCommand(ctx))
	meetingCmd.AddCommand(newMeetingListCommand(ctx))
	meetingCmd.AddCommand(newMeetingShowCommand(ctx))
	meetingCmd.AddCommand(newMeetingHistoryCommand(ctx))

	return meetingCmd
}

func newMeetingCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		name       string
		platform   string
		meetingURL string
		platformID string
		password   string
		owner      string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a meeting for live capture",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := queue.ParsePlatform(platform)
			if !ok {
				return fmt.Errorf("unknown platform %q", platform)
			}
			ownerID, err := parseOwner(owner)
			if err != nil {
				return err
			}
			meeting := &queue.Meeting{
				Name:       strings.TrimSpace(name),
				Platform:   parsed,
				URL:        strings.TrimSpace(meetingURL),
				PlatformID: strings.TrimSpace(platformID),
				Password:   password,
				OwnerID:    ownerID,
			}
			return ctx.withStore(cmd.Context(), func(session queueaccess.Session) error {
				created, err := session.Repository.Create(cmd.Context(), meeting)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.FromMeeting(created))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created meeting %d (%s)\n", created.ID, created.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Meeting name")
	cmd.Flags().StringVar(&platform, "platform", string(queue.PlatformWebconf), "Platform (comu, webinaire, webconf, mcr_record)")
	cmd.Flags().StringVar(&meetingURL, "url", "", "Join URL")
	cmd.Flags().StringVar(&platformID, "platform-id", "", "Platform meeting id (instead of --url)")
	cmd.Flags().StringVar(&password, "password", "", "Platform meeting password")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner UUID (random when omitted)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newMeetingImportCommand(ctx *commandContext) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "import <name> <audio-file>...",
		Short: "Upload recorded audio and queue it for transcription",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerID, err := parseOwner(owner)
			if err != nil {
				return err
			}
			files := args[1:]
			for _, path := range files {
				if info, err := os.Stat(path); err != nil {
					return fmt.Errorf("inspect %s: %w", path, err)
				} else if info.IsDir() {
					return fmt.Errorf("%s is a directory", path)
				}
			}
			return ctx.withRuntime(cmd.Context(), func(session queueaccess.Session, rt *daemonrun.Runtime) error {
				created, err := session.Repository.Create(cmd.Context(), &queue.Meeting{
					Name:     strings.TrimSpace(args[0]),
					Platform: queue.PlatformMCRImport,
					OwnerID:  ownerID,
				})
				if err != nil {
					return err
				}
				layout := blob.LayoutFromConfig(ctx.config.Blob)
				base := time.Now()
				var total int64
				for i, path := range files {
					data, err := os.ReadFile(path)
					if err != nil {
						return fmt.Errorf("read %s: %w", path, err)
					}
					key := layout.AudioKey(created.ID, base.Add(time.Duration(i)*time.Millisecond))
					if _, err := rt.Blobs.Put(cmd.Context(), key, blob.ContentTypeAudio, data); err != nil {
						return fmt.Errorf("upload %s: %w", filepath.Base(path), err)
					}
					total += int64(len(data))
				}
				updated, err := rt.Orchestrator.InitTranscription(cmd.Context(), created.ID, cliActor)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.FromMeeting(updated))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported meeting %d: %d file(s), %s (%s)\n",
					updated.ID, len(files), humanize.Bytes(uint64(total)), updated.Status)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner UUID (random when omitted)")
	return cmd
}

func newMeetingListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List meetings",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := make([]queue.Status, 0, len(statuses))
			for _, raw := range statuses {
				status, err := queue.ParseStatus(raw)
				if err != nil {
					return err
				}
				filters = append(filters, status)
			}
			return ctx.withStore(cmd.Context(), func(session queueaccess.Session) error {
				meetings, err := api.NewMeetingService(session.Repository).List(cmd.Context(), filters...)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.MeetingListResponse{Meetings: meetings})
				}
				if len(meetings) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No meetings")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Platform", "Status", "Created"},
					buildMeetingRows(meetings),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newMeetingShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a meeting and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMeetingID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(session queueaccess.Session) error {
				resp, err := api.NewMeetingService(session.Repository).Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				printMeeting(out, resp.Meeting)
				if len(resp.History) > 0 {
					fmt.Fprintln(out)
					fmt.Fprint(out, renderHistory(resp.History))
				}
				return nil
			})
		},
	}
}

func newMeetingHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Show the transition records of a meeting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseMeetingID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(cmd.Context(), func(session queueaccess.Session) error {
				if _, err := session.Repository.GetByID(cmd.Context(), id); err != nil {
					return err
				}
				records, err := session.Repository.Transitions(cmd.Context(), id)
				if err != nil {
					return err
				}
				history := api.FromTransitions(records)
				if ctx.JSONMode() {
					return writeJSON(cmd, history)
				}
				if len(history) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Meeting %d has no transitions yet\n", id)
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderHistory(history))
				return nil
			})
		},
	}
}

func renderHistory(history []api.Transition) string {
	return renderTable(
		[]string{"At", "Event", "Status", "Actor", "Predicted Next"},
		buildHistoryRows(history),
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func parseMeetingID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid meeting id %q", arg)
	}
	return id, nil
}

func parseMeetingIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseMeetingID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseOwner(value string) (uuid.UUID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return uuid.New(), nil
	}
	owner, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, errors.New("owner must be a UUID")
	}
	return owner, nil
}
