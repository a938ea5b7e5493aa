package logging

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FormatSubject builds the lane/meeting/stage subject string used in console output.
func FormatSubject(lane, meetingID, stage string) string {
	lane = strings.TrimSpace(lane)
	meetingID = strings.TrimSpace(meetingID)
	stage = strings.TrimSpace(stage)
	parts := make([]string, 0, 3)
	if lane != "" {
		parts = append(parts, cases.Title(language.English).String(lane))
	}
	switch {
	case meetingID != "" && stage != "":
		parts = append(parts, "Meeting #"+meetingID+" ("+stage+")")
	case meetingID != "":
		parts = append(parts, "Meeting #"+meetingID)
	case stage != "":
		parts = append(parts, stage)
	}
	return strings.Join(parts, " · ")
}
