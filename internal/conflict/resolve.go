package conflict

import (
	"fmt"

	"github.com/Iron-Ham/ensemble/internal/event"
)

// AutoResolve applies the non-interactive rules. It reports false when the
// conflict has to be escalated to a user.
//
// Duplicate work goes to the architect role when exactly one side has it, and
// to the later task when one agent produced both sides. Low-severity
// contradictions are flagged for review.
func (r *Resolver) AutoResolve(c Conflict) (*Resolution, bool) {
	b := c.Common()
	switch c := c.(type) {
	case DuplicateWork:
		archA, archB := b.Agents[0] == r.architect, b.Agents[1] == r.architect
		switch {
		case archA && !archB:
			return r.auto(b, StrategyUseA, b.TaskIDs[0], fmt.Sprintf("%s is the architect role", b.Agents[0])), true
		case archB && !archA:
			return r.auto(b, StrategyUseB, b.TaskIDs[1], fmt.Sprintf("%s is the architect role", b.Agents[1])), true
		case b.Agents[0] == b.Agents[1]:
			return r.auto(b, StrategyUseB, b.TaskIDs[1], fmt.Sprintf("later declaration of %s by %s", c.Name, b.Agents[1])), true
		}
	case Contradiction:
		if b.Severity == SeverityLow {
			return r.auto(b, StrategyFlagForReview, "", fmt.Sprintf("%s:%s needs review", c.Domain, c.Key)), true
		}
	case APIContract, FileMerge:
	}
	return nil, false
}

func (r *Resolver) auto(b Base, s Strategy, winner, note string) *Resolution {
	return &Resolution{
		ConflictID:    b.ID,
		Strategy:      s,
		ResolvedBy:    ResolvedByAuto,
		WinningTaskID: winner,
		Note:          note,
	}
}

// UserResolutionOptions returns the three choices offered for c: side A,
// side B, and a type-specific third way.
func (r *Resolver) UserResolutionOptions(c Conflict) []Option {
	b := c.Common()
	choose := func(label, desc string, s Strategy, winner string) Option {
		return Option{
			Label:       label,
			Description: desc,
			Resolution: Resolution{
				ConflictID:    b.ID,
				Strategy:      s,
				ResolvedBy:    ResolvedByUser,
				WinningTaskID: winner,
			},
		}
	}
	a, bb := b.TaskIDs[0], b.TaskIDs[1]

	switch c := c.(type) {
	case FileMerge:
		merge := choose("Merge both versions",
			"Write the file with conflict markers and edit it by hand", StrategyMerge, "")
		merge.Resolution.MergedContent = c.Merged
		useA := choose("Accept "+a, fmt.Sprintf("Keep %s as written by %s (%s)", c.Path, a, b.Agents[0]), StrategyUseA, a)
		useA.Resolution.MergedContent = c.Contents[0]
		useB := choose("Accept "+bb, fmt.Sprintf("Keep %s as written by %s (%s)", c.Path, bb, b.Agents[1]), StrategyUseB, bb)
		useB.Resolution.MergedContent = c.Contents[1]
		return []Option{useA, useB, merge}

	case APIContract:
		pause := choose("Pause "+b.Agents[1],
			fmt.Sprintf("Stop %s until the %s contract is agreed", b.Agents[1], c.Endpoint), StrategyPauseAgent, "")
		pause.Resolution.PausedAgent = b.Agents[1]
		return []Option{
			choose("Use "+a+"'s contract", fmt.Sprintf("%s as defined by %s", c.Endpoint, a), StrategyUseA, a),
			choose("Use "+bb+"'s contract", fmt.Sprintf("%s as defined by %s", c.Endpoint, bb), StrategyUseB, bb),
			pause,
		}

	case DuplicateWork:
		return []Option{
			choose("Keep "+a+"'s "+c.Name, fmt.Sprintf("Discard the %s from %s", c.Kind, bb), StrategyUseA, a),
			choose("Keep "+bb+"'s "+c.Name, fmt.Sprintf("Discard the %s from %s", c.Kind, a), StrategyUseB, bb),
			choose("Flag for review", "Keep both and decide later", StrategyFlagForReview, ""),
		}

	case Contradiction:
		key := c.Domain + ":" + c.Key
		return []Option{
			choose(fmt.Sprintf("%s = %s", key, c.Values[0]), "Declared by "+a, StrategyUseA, a),
			choose(fmt.Sprintf("%s = %s", key, c.Values[1]), "Declared by "+bb, StrategyUseB, bb),
			choose("Flag for review", "Leave "+key+" undecided", StrategyFlagForReview, ""),
		}
	}
	return nil
}

// ApplyResolution records res. Applying a second resolution for the same
// conflict replaces the first but keeps its position in History.
func (r *Resolver) ApplyResolution(res Resolution) {
	r.mu.Lock()
	if _, ok := r.history[res.ConflictID]; !ok {
		r.order = append(r.order, res.ConflictID)
	}
	r.history[res.ConflictID] = res
	r.mu.Unlock()

	r.logger.Info("conflict resolved",
		"conflict_id", res.ConflictID,
		"strategy", res.Strategy,
		"resolved_by", res.ResolvedBy)
	r.bus.Publish(event.NewConflictResolvedEvent(res.ConflictID, string(res.Strategy), string(res.ResolvedBy)))
}

// History returns every applied resolution in first-application order.
func (r *Resolver) History() []Resolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Resolution, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.history[id])
	}
	return out
}

// ResolveAll auto-resolves and applies every conflict it can and returns the
// ones left for a user.
func (r *Resolver) ResolveAll(conflicts []Conflict) []Conflict {
	var pending []Conflict
	for _, c := range conflicts {
		if res, ok := r.AutoResolve(c); ok {
			r.ApplyResolution(*res)
			continue
		}
		pending = append(pending, c)
	}
	return pending
}
