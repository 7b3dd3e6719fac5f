// Package runner selects the next contact to present during a campaign
// run and drives the run state machine.
package runner

import (
	"context"
	"errors"

	"callsheet/internal/domain"
	"callsheet/internal/progress"
)

// Strategy is the traversal rule for a pass over the queue.
type Strategy string

const (
	// StrategyUnattempted presents contacts never attempted (first pass).
	StrategyUnattempted Strategy = "unattempted"
	// StrategyMissed presents contacts whose latest outcome is no_answer.
	StrategyMissed Strategy = "missed"
)

// Run states. A run begins idle, moves to running on "begin calls",
// reaches summary when the queue is exhausted, and may re-enter a missed
// pass from summary. Summary is the only state a run can terminate from.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateMissed  State = "missed"
	StateSummary State = "summary"
)

var ErrBadState = errors.New("run not in a state allowing this transition")

// PickNext scans queueIDs in order and returns the first id (excluding
// skipID) the strategy selects, or ok=false when no contact remains.
func PickNext(queueIDs []string, snap *domain.CampaignProgress, strategy Strategy, skipID string) (string, bool) {
	for _, id := range queueIDs {
		if id == skipID {
			continue
		}
		var cp domain.ContactProgress
		if snap != nil && snap.Contacts != nil {
			cp = snap.Contacts[id]
		}
		switch strategy {
		case StrategyMissed:
			if cp.Outcome == domain.OutcomeNoAnswer {
				return id, true
			}
		default:
			if cp.Attempts == 0 {
				return id, true
			}
		}
	}
	return "", false
}

// Run walks an operator through one campaign's fixed ordered queue. It
// holds no authoritative progress state: Advance reloads the freshest
// snapshot before every selection, so a Run can always be rebuilt from
// the store.
type Run struct {
	CampaignID string
	QueueIDs   []string
	State      State
	Strategy   Strategy
	Current    string

	store *progress.Store
}

func NewRun(campaignID string, queueIDs []string, store *progress.Store) *Run {
	return &Run{
		CampaignID: campaignID,
		QueueIDs:   queueIDs,
		State:      StateIdle,
		Strategy:   StrategyUnattempted,
		store:      store,
	}
}

// Begin starts the first pass: the snapshot is created or backfilled for
// the queue and the first unattempted contact is presented.
func (r *Run) Begin(ctx context.Context) (string, bool, error) {
	if r.State != StateIdle && r.State != StateSummary {
		return "", false, ErrBadState
	}
	if _, err := r.store.LoadOrInit(ctx, r.CampaignID, r.QueueIDs); err != nil {
		return "", false, err
	}
	r.Strategy = StrategyUnattempted
	r.State = StateRunning
	return r.Advance(ctx, "")
}

// RetryMissed re-enters a scan over contacts whose latest outcome is
// no_answer. Only allowed from summary.
func (r *Run) RetryMissed(ctx context.Context) (string, bool, error) {
	if r.State != StateSummary {
		return "", false, ErrBadState
	}
	r.Strategy = StrategyMissed
	r.State = StateMissed
	return r.Advance(ctx, "")
}

// Advance reloads the stored snapshot and picks the next contact under the
// current strategy. When recording a no_answer during a missed pass the
// just-processed id still matches the missed predicate, so callers pass it
// as skipID to avoid re-presenting it immediately. Exhaustion transitions
// the run to summary.
func (r *Run) Advance(ctx context.Context, skipID string) (string, bool, error) {
	if r.State != StateRunning && r.State != StateMissed {
		return "", false, ErrBadState
	}
	snap, err := r.store.Progress(ctx, r.CampaignID)
	if err != nil {
		return "", false, err
	}
	next, ok := PickNext(r.QueueIDs, snap, r.Strategy, skipID)
	if !ok {
		r.Current = ""
		r.State = StateSummary
		return "", false, nil
	}
	r.Current = next
	return next, true, nil
}
