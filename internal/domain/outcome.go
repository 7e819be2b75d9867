package domain

import "time"

// BatchFailure records one batch a target could not check or write.
type BatchFailure struct {
	Batch   string `json:"batch"`
	Stage   string `json:"stage"`
	Records int    `json:"records"`
	Error   string `json:"error"`
}

// TargetResult is the per-target accounting of one run.
type TargetResult struct {
	Name          string         `json:"name"`
	Kind          string         `json:"kind"`
	Inserted      int            `json:"inserted"`
	Skipped       int            `json:"skipped"`
	FailedBatches []BatchFailure `json:"failed_batches,omitempty"`
	Duration      time.Duration  `json:"duration_ns"`
}

// RunOutcome is handed to the reporting collaborator after every run, including
// failed ones. Map keys are target names, suffixed with #N when repeated.
type RunOutcome struct {
	Records         int               `json:"records"`
	Degraded        int               `json:"degraded"`
	Batches         int               `json:"batches"`
	Targets         []TargetResult    `json:"targets"`
	ConnectErrors   map[string]string `json:"connect_errors,omitempty"`
	InvalidTargets  map[string]string `json:"invalid_targets,omitempty"`
	OfflineArtifact string            `json:"offline_artifact,omitempty"`
}

// Inserted sums inserted records across targets.
func (o RunOutcome) Inserted() int {
	n := 0
	for _, t := range o.Targets {
		n += t.Inserted
	}
	return n
}

// Skipped sums skipped records across targets.
func (o RunOutcome) Skipped() int {
	n := 0
	for _, t := range o.Targets {
		n += t.Skipped
	}
	return n
}
