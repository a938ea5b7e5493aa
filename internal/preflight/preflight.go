package preflight

import (
	"context"

	"meetingflow/internal/blob"
	"meetingflow/internal/config"
	"meetingflow/internal/queue"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Targets are the live handles RunAll probes besides the filesystem.
type Targets struct {
	Repository queue.Repository
	Blobs      blob.Store
}

// RunAll executes every check that applies to cfg. Stages with no workers
// are not checked.
func RunAll(ctx context.Context, cfg *config.Config, targets Targets) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if targets.Repository != nil {
		results = append(results, CheckStore(ctx, targets.Repository))
	}
	if targets.Blobs != nil {
		results = append(results, CheckBlob(ctx, targets.Blobs, cfg.Blob.AudioFolder+"/"))
	}

	if cfg.Workflow.CaptureWorkers > 0 {
		results = append(results, CheckDirectoryAccess("Capture directory", cfg.CaptureDir()))
		recorder := ""
		if len(cfg.Capture.RecorderCommand) > 0 {
			recorder = cfg.Capture.RecorderCommand[0]
		}
		results = append(results, CheckBinary("Recorder", recorder))
	}
	if cfg.Workflow.TranscriptionWorkers > 0 {
		results = append(results, CheckEndpoint(ctx, "Transcription service", cfg.Inference.TranscriptionURL))
	}
	if cfg.Workflow.ReportWorkers > 0 {
		results = append(results, CheckEndpoint(ctx, "Report service", cfg.Inference.ReportURL))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, result := range results {
		if !result.Passed {
			out = append(out, result)
		}
	}
	return out
}
