package payroll

import (
	"time"
)

// Status is the fate of one unit of work
type Status string

const (
	StatusLoaded  Status = "loaded"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Operations reported in outcomes
const (
	OpClientDetail   = "client_detail"
	OpEmployeePage   = "employee_page"
	OpEmployeeDetail = "employee_detail"
	OpEmployee       = "employee"
	OpCheckList      = "check_list"
	OpCheckDetail    = "check_detail"
	OpResolve        = "resolve"
	OpUpsertProfile  = "upsert_profile"
	OpUpsertCheck    = "upsert_check_line"
)

// Skip reasons
const (
	ReasonExists        = "already loaded"
	ReasonExceptionCode = "exception facility"
	ReasonEmptyCheck    = "empty check"
)

// Outcome is the result of one unit of work
type Outcome struct {
	Op         string
	Status     Status
	ClientID   string
	EmployeeID string
	Reason     string
	Err        error
}

// Checkpoint is a resume position: the client index in the client list and
// the employee page of that client. Page 0 means the client's first page.
type Checkpoint struct {
	ClientOffset int
	Page         int
}

// RunResult tallies one pass over all clients
type RunResult struct {
	Mode       Mode
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Clients    int
	Employees  int
	Checks     int
	Loaded     int
	Skipped    int
	Failed     int
	Pages      int
	Position   Checkpoint // Last position reached
	Failures   []Outcome
}

// Record tallies an outcome
func (r *RunResult) Record(o Outcome) {
	switch o.Status {
	case StatusLoaded:
		r.Loaded++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
		r.Failures = append(r.Failures, o)
	}
}

// Duration returns how long the pass took
func (r *RunResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary returns the counters as a flat map for progress output
func (r *RunResult) Summary() map[string]interface{} {
	return map[string]interface{}{
		"mode":          r.Mode.String(),
		"clients":       r.Clients,
		"employees":     r.Employees,
		"checks":        r.Checks,
		"loaded":        r.Loaded,
		"skipped":       r.Skipped,
		"failed":        r.Failed,
		"pages":         r.Pages,
		"client_offset": r.Position.ClientOffset,
		"page":          r.Position.Page,
		"duration":      r.Duration().Round(time.Millisecond).String(),
	}
}
