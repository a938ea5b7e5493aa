package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Meeting describes a meeting in a transport-friendly format.
type Meeting struct {
	ID                    int64  `json:"id"`
	Name                  string `json:"name"`
	Platform              string `json:"platform"`
	URL                   string `json:"url,omitempty"`
	PlatformID            string `json:"platformId,omitempty"`
	OwnerID               string `json:"ownerId"`
	Status                string `json:"status"`
	Stage                 string `json:"stage"`
	CreatedAt             string `json:"createdAt,omitempty"`
	UpdatedAt             string `json:"updatedAt,omitempty"`
	StartDate             string `json:"startDate,omitempty"`
	EndDate               string `json:"endDate,omitempty"`
	TranscriptionFilename string `json:"transcriptionFilename,omitempty"`
	ReportFilename        string `json:"reportFilename,omitempty"`
	LastHeartbeat         string `json:"lastHeartbeat,omitempty"`
}

// Transition is one entry of a meeting's history.
type Transition struct {
	ID              int64  `json:"id"`
	Status          string `json:"status"`
	Event           string `json:"event"`
	Actor           string `json:"actor"`
	CreatedAt       string `json:"createdAt"`
	PredictedNextAt string `json:"predictedNextAt,omitempty"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name    string `json:"name"`
	Ready   bool   `json:"ready"`
	Detail  string `json:"detail,omitempty"`
	Workers int    `json:"workers"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	QueueStats  map[string]int `json:"queueStats"`
	Pending     int            `json:"pending"`
	InProgress  int            `json:"inProgress"`
	Failed      int            `json:"failed"`
	Done        int            `json:"done"`
	LastError   string         `json:"lastError,omitempty"`
	LastMeeting *Meeting       `json:"lastMeeting,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	StoreDriver  string         `json:"storeDriver"`
	LockFilePath string         `json:"lockFilePath"`
	LogPath      string         `json:"logPath"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// MeetingListResponse wraps a collection of meetings.
type MeetingListResponse struct {
	Meetings []Meeting `json:"meetings"`
}

// MeetingResponse is a single meeting with its transition history.
type MeetingResponse struct {
	Meeting Meeting      `json:"meeting"`
	History []Transition `json:"history"`
}
