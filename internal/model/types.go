// Package model defines shared data structures.
package model

import "time"

// TimerConfig defines timer settings.
type TimerConfig struct {
	GroupID     int64
	Tick        time.Duration
	Debounce    time.Duration
	SaveRetries int
}

// RunsConfig defines options for the runs screen.
type RunsConfig struct {
	GroupID     int64
	CurveWindow int
}

// KeyBindings maps timer actions to key names. Empty lists keep the defaults.
type KeyBindings struct {
	Split     []string
	Pause     []string
	Reset     []string
	NextGroup []string
	Quit      []string
}

// Group is a named speedrun category.
type Group struct {
	ID   int64
	Name string
}

// SplitTemplate is one named checkpoint of a group.
type SplitTemplate struct {
	ID           int64
	GroupID      int64
	IndexInGroup int
	Name         string
}

// Run is one persisted, completed attempt.
type Run struct {
	ID        int64
	GroupID   int64
	CreatedAt time.Time
}

// SegmentRecord stores the cumulative time of one split of a run.
type SegmentRecord struct {
	RunID      int64
	GroupID    int64
	SplitIndex int
	// TimeFromStartMs is cumulative from run start, not a segment duration.
	TimeFromStartMs int64
	RecordedAt      time.Time
}

// RunTotal is the largest cumulative time recorded for a run.
type RunTotal struct {
	RunID   int64
	TotalMs int64
}

// SplitTime is a (split index, cumulative time) pair.
type SplitTime struct {
	SplitIndex   int
	CumulativeMs int64
}

// BestSegment is the fastest segment duration recorded at an index.
type BestSegment struct {
	Index         int
	BestSegmentMs int64
}

// Status classifies a split against the baselines.
type Status int

// Split statuses.
const (
	StatusNone Status = iota
	StatusGold
	StatusGainGaining
	StatusGainLosing
	StatusLossGaining
	StatusLossLosing
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusGold:
		return "gold"
	case StatusGainGaining:
		return "gain-gaining"
	case StatusGainLosing:
		return "gain-losing"
	case StatusLossGaining:
		return "loss-gaining"
	case StatusLossLosing:
		return "loss-losing"
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ComparisonItem is one split row as shown to the user.
type ComparisonItem struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	CurrentMs   *int64 `json:"current_ms"`
	BestMs      int64  `json:"best_ms"`
	DiffMs      *int64 `json:"diff_ms"`
	SegmentMs   *int64 `json:"segment_ms"`
	BestSegment *int64 `json:"best_segment_ms"`
	SegmentDiff *int64 `json:"segment_diff_ms"`
	Status      Status `json:"status"`
}

// Dataset is a full backup of every group and run.
type Dataset struct {
	Groups    []BackupGroup    `json:"groups" yaml:"groups"`
	Templates []BackupTemplate `json:"templates" yaml:"templates"`
	Runs      []BackupRun      `json:"runs" yaml:"runs"`
	RunTimes  []BackupRunTime  `json:"runtimes" yaml:"runtimes"`
}

// BackupGroup is a group row in a Dataset.
type BackupGroup struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// BackupTemplate is a split template row in a Dataset.
type BackupTemplate struct {
	ID      int64  `json:"id" yaml:"id"`
	GroupID int64  `json:"groupId" yaml:"groupId"`
	Index   int    `json:"index" yaml:"index"`
	Name    string `json:"name" yaml:"name"`
}

// BackupRun is a run row in a Dataset.
type BackupRun struct {
	ID        int64 `json:"id" yaml:"id"`
	GroupID   int64 `json:"groupId" yaml:"groupId"`
	CreatedAt int64 `json:"createdAt" yaml:"createdAt"`
}

// BackupRunTime is a segment record row in a Dataset. Times are unix millis.
type BackupRunTime struct {
	RunID      int64 `json:"runId" yaml:"runId"`
	GroupID    int64 `json:"groupId" yaml:"groupId"`
	SplitIndex int   `json:"splitIndex" yaml:"splitIndex"`
	Time       int64 `json:"time" yaml:"time"`
	RecordedAt int64 `json:"recordedAt" yaml:"recordedAt"`
}
