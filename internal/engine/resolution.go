package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/slacklinehq/slackline/internal/conflict"
)

// PreviewResolution evaluates a strategy against a clone of the
// committed graph. Nothing the engine owns changes; the outcome
// describes exactly what a commit would do.
func (e *Engine) PreviewResolution(ctx context.Context, conflictID string, r conflict.Resolution) (*conflict.Outcome, error) {
	v := e.Snapshot()
	c, ok := v.findConflict(conflictID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", conflict.ErrConflictNotFound, conflictID)
	}
	return conflict.Resolve(ctx, v.Graph.Clone(), c, r, e.conflictOpts())
}

// CommitResolution applies a strategy to the live graph. The edit runs
// on a clone first and only a successful outcome is swapped in and
// rescheduled, so a failed strategy leaves no trace.
func (e *Engine) CommitResolution(ctx context.Context, conflictID string, r conflict.Resolution) (*conflict.Outcome, *View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	// e.view only changes under mu, so the direct read is consistent.
	c, ok := e.view.findConflict(conflictID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", conflict.ErrConflictNotFound, conflictID)
	}
	work := e.g.Clone()
	out, err := conflict.Resolve(ctx, work, c, r, e.conflictOpts())
	if err != nil {
		return nil, nil, err
	}
	e.g = work
	v, err := e.recomputeLocked(e.scopeForChanges(out.Changes))
	if err != nil {
		return nil, nil, err
	}
	e.log.Info("resolution committed",
		"conflict", conflictID,
		"strategy", r.Strategy,
		"resolved", out.Resolved,
		"changes", len(out.Changes))
	return out, v, nil
}

// scopeForChanges maps resolution edits to the components they touch.
func (e *Engine) scopeForChanges(changes []conflict.Change) map[string]bool {
	var ids []string
	for _, ch := range changes {
		if ch.TaskID != "" {
			ids = append(ids, ch.TaskID)
		}
		if ch.EdgeKey != "" {
			if from, to, ok := strings.Cut(ch.EdgeKey, "->"); ok {
				ids = append(ids, from, to)
			}
		}
	}
	return e.componentScope(ids...)
}
