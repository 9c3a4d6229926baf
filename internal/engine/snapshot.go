package engine

import "github.com/verte-zerg/tuisplit/internal/model"

// State is the run lifecycle state.
type State int

// Lifecycle states.
const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateFinished
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a read-only view of the engine. Slices are never mutated after publishing.
type Snapshot struct {
	State     State                 `json:"state"`
	Running   bool                  `json:"running"`
	Paused    bool                  `json:"paused"`
	ElapsedMs int64                 `json:"elapsed_ms"`
	GroupID   int64                 `json:"group_id"`
	GroupName string                `json:"group_name"`
	Templates []model.SplitTemplate `json:"-"`

	BestCumulative []int64                `json:"best_cumulative"`
	BestSegments   []*int64               `json:"best_segments"`
	Current        []*int64               `json:"current"`
	CumulativeDiff []*int64               `json:"cumulative_diff"`
	Status         []model.Status         `json:"status"`
	Items          []model.ComparisonItem `json:"items"`

	HasAnyCompleteRun bool  `json:"has_any_complete_run"`
	LastRunCompleted  bool  `json:"last_run_completed"`
	PersonalBestMs    int64 `json:"personal_best_ms"`
	SumOfBestMs       int64 `json:"sum_of_best_ms"`
	SumOfBestComplete bool  `json:"sum_of_best_complete"`

	Saving       bool   `json:"saving"`
	LastRunID    int64  `json:"last_run_id"`
	SaveFailures int    `json:"save_failures"`
	Err          string `json:"error,omitempty"`
}
