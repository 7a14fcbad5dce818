// Package conflict detects and resolves semantic conflicts between the outputs
// of agents that worked on different tasks.
//
// Four detectors run pairwise over a set of outputs: diverging API contracts,
// duplicated declarations, different content for the same file, and
// contradicting explicit declarations. Some conflicts resolve automatically;
// the rest are escalated with three tailored options each.
package conflict

import "time"

// Type identifies the kind of a conflict.
type Type string

const (
	TypeAPIContract   Type = "api-contract"
	TypeDuplicateWork Type = "duplicate-work"
	TypeFileMerge     Type = "file-merge"
	TypeContradiction Type = "contradictory-impl"
)

// Severity ranks how much damage a conflict can do.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Base holds the fields every conflict carries. Index 0 is side A, the
// output that came first; index 1 is side B.
type Base struct {
	ID          string    `json:"id"`
	TaskIDs     [2]string `json:"task_ids"`
	Agents      [2]string `json:"agents"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	DetectedAt  time.Time `json:"detected_at"`
}

// Common returns the shared fields.
func (b Base) Common() Base { return b }

// Conflict is one of APIContract, DuplicateWork, FileMerge or Contradiction.
// The set is closed; consumers switch over the concrete types.
type Conflict interface {
	Common() Base
	Type() Type
	isConflict()
}

// APIContract is the same endpoint described differently by two tasks.
type APIContract struct {
	Base
	Endpoint string    `json:"endpoint"` // "VERB /path"
	Snippets [2]string `json:"snippets"`
}

// DuplicateKind classifies what was declared twice.
type DuplicateKind string

const (
	KindComponent DuplicateKind = "component"
	KindFunction  DuplicateKind = "function"
	KindModel     DuplicateKind = "model"
	KindEndpoint  DuplicateKind = "endpoint"
)

// DuplicateWork is a name declared by two tasks.
type DuplicateWork struct {
	Base
	Name string        `json:"name"`
	Kind DuplicateKind `json:"kind"`
}

// FileMerge is one file written with different content by two tasks.
type FileMerge struct {
	Base
	Path     string    `json:"path"`
	Contents [2]string `json:"contents"`
	// Merged holds both versions between conflict markers.
	Merged string `json:"merged"`
}

// Contradiction is one domain:key declared with different values.
type Contradiction struct {
	Base
	Domain string    `json:"domain"`
	Key    string    `json:"key"`
	Values [2]string `json:"values"`
}

func (APIContract) Type() Type   { return TypeAPIContract }
func (DuplicateWork) Type() Type { return TypeDuplicateWork }
func (FileMerge) Type() Type     { return TypeFileMerge }
func (Contradiction) Type() Type { return TypeContradiction }

func (APIContract) isConflict()   {}
func (DuplicateWork) isConflict() {}
func (FileMerge) isConflict()     {}
func (Contradiction) isConflict() {}

// Strategy is how a conflict was settled.
type Strategy string

const (
	StrategyUseA          Strategy = "use-a"
	StrategyUseB          Strategy = "use-b"
	StrategyMerge         Strategy = "merge"
	StrategyPauseAgent    Strategy = "pause-agent"
	StrategyFlagForReview Strategy = "flag-for-review"
)

// ResolvedBy records who chose a resolution.
type ResolvedBy string

const (
	ResolvedByAuto ResolvedBy = "auto"
	ResolvedByUser ResolvedBy = "user"
)

// Resolution settles one conflict.
type Resolution struct {
	ConflictID    string     `json:"conflict_id"`
	Strategy      Strategy   `json:"strategy"`
	ResolvedBy    ResolvedBy `json:"resolved_by"`
	WinningTaskID string     `json:"winning_task_id,omitempty"`
	MergedContent string     `json:"merged_content,omitempty"`
	PausedAgent   string     `json:"paused_agent,omitempty"`
	Note          string     `json:"note,omitempty"`
}

// Option is a resolution offered to a user.
type Option struct {
	Label       string     `json:"label"`
	Description string     `json:"description"`
	Resolution  Resolution `json:"resolution"`
}
