package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"meetingflow/internal/api"
	"meetingflow/internal/queue"
)

var titleCaser = cases.Title(language.Und)

// formatStatusLabel turns capture_bot_is_connecting into "Capture Bot Is Connecting".
func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(status, "_", " "))
}

func buildStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(stats))
	// Graph order reads better than alphabetical.
	for _, status := range queue.AllStatuses() {
		count, ok := stats[string(status)]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(string(status)), strconv.Itoa(count)})
	}
	return rows
}

func buildMeetingRows(meetings []api.Meeting) [][]string {
	sorted := append([]api.Meeting(nil), meetings...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	rows := make([][]string, 0, len(sorted))
	for _, m := range sorted {
		rows = append(rows, []string{
			strconv.FormatInt(m.ID, 10),
			m.Name,
			m.Platform,
			formatStatusLabel(m.Status),
			formatDisplayTime(m.CreatedAt),
		})
	}
	return rows
}

func buildHistoryRows(history []api.Transition) [][]string {
	rows := make([][]string, 0, len(history))
	for _, tr := range history {
		rows = append(rows, []string{
			formatDisplayTime(tr.CreatedAt),
			tr.Event,
			formatStatusLabel(tr.Status),
			tr.Actor,
			formatDisplayTime(tr.PredictedNextAt),
		})
	}
	return rows
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return value
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func printMeeting(out io.Writer, m api.Meeting) {
	fmt.Fprintf(out, "Meeting %d: %s\n", m.ID, m.Name)
	fmt.Fprintf(out, "  Status:    %s\n", formatStatusLabel(m.Status))
	fmt.Fprintf(out, "  Platform:  %s\n", m.Platform)
	if m.URL != "" {
		fmt.Fprintf(out, "  URL:       %s\n", m.URL)
	}
	if m.PlatformID != "" {
		fmt.Fprintf(out, "  Platform ID: %s\n", m.PlatformID)
	}
	fmt.Fprintf(out, "  Owner:     %s\n", m.OwnerID)
	fmt.Fprintf(out, "  Created:   %s\n", formatDisplayTime(m.CreatedAt))
	if m.StartDate != "" {
		fmt.Fprintf(out, "  Started:   %s\n", formatDisplayTime(m.StartDate))
	}
	if m.EndDate != "" {
		fmt.Fprintf(out, "  Ended:     %s\n", formatDisplayTime(m.EndDate))
	}
	if m.TranscriptionFilename != "" {
		fmt.Fprintf(out, "  Transcript: %s\n", m.TranscriptionFilename)
	}
	if m.ReportFilename != "" {
		fmt.Fprintf(out, "  Report:    %s\n", m.ReportFilename)
	}
}
