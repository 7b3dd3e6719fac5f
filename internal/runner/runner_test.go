package runner_test

import (
	"context"
	"errors"
	"testing"

	"callsheet/internal/domain"
	"callsheet/internal/progress"
	"callsheet/internal/runner"
)

func snapWith(outcomes map[string]domain.ContactProgress) *domain.CampaignProgress {
	return &domain.CampaignProgress{CampaignID: "camp-1", Contacts: outcomes}
}

func TestPickNextUnattempted(t *testing.T) {
	queue := []string{"a", "b", "c"}
	snap := snapWith(map[string]domain.ContactProgress{
		"a": {ContactID: "a", Attempts: 1, Outcome: domain.OutcomeAnswered},
	})
	id, ok := runner.PickNext(queue, snap, runner.StrategyUnattempted, "")
	if !ok || id != "b" {
		t.Fatalf("PickNext = %q,%v want b,true", id, ok)
	}
	// nil snapshot: everything is unattempted
	id, ok = runner.PickNext(queue, nil, runner.StrategyUnattempted, "")
	if !ok || id != "a" {
		t.Fatalf("PickNext nil snap = %q,%v want a,true", id, ok)
	}
}

func TestPickNextMissedWithSkip(t *testing.T) {
	queue := []string{"a", "b", "c"}
	snap := snapWith(map[string]domain.ContactProgress{
		"a": {ContactID: "a", Attempts: 1, Outcome: domain.OutcomeNoAnswer},
		"b": {ContactID: "b", Attempts: 1, Outcome: domain.OutcomeAnswered},
		"c": {ContactID: "c", Attempts: 1, Outcome: domain.OutcomeNoAnswer},
	})
	id, ok := runner.PickNext(queue, snap, runner.StrategyMissed, "")
	if !ok || id != "a" {
		t.Fatalf("missed pass = %q,%v want a,true", id, ok)
	}
	// a was just re-recorded no_answer; skipping it moves on to c
	id, ok = runner.PickNext(queue, snap, runner.StrategyMissed, "a")
	if !ok || id != "c" {
		t.Fatalf("missed pass with skip = %q,%v want c,true", id, ok)
	}
}

func TestPickNextExhausted(t *testing.T) {
	queue := []string{"a", "b"}
	snap := snapWith(map[string]domain.ContactProgress{
		"a": {ContactID: "a", Attempts: 1, Outcome: domain.OutcomeAnswered},
		"b": {ContactID: "b", Attempts: 2, Outcome: domain.OutcomeAnswered},
	})
	if id, ok := runner.PickNext(queue, snap, runner.StrategyUnattempted, ""); ok {
		t.Fatalf("expected exhaustion, got %q", id)
	}
	if id, ok := runner.PickNext(queue, snap, runner.StrategyMissed, ""); ok {
		t.Fatalf("expected no missed contacts, got %q", id)
	}
}

func newRun(t *testing.T, queue []string) (*runner.Run, *progress.Store, context.Context) {
	t.Helper()
	store := progress.NewStore(progress.NewMemStore())
	return runner.NewRun("camp-1", queue, store), store, context.Background()
}

func TestRunFirstPass(t *testing.T) {
	run, store, ctx := newRun(t, []string{"a", "b", "c"})
	if run.State != runner.StateIdle {
		t.Fatalf("fresh run state = %s", run.State)
	}
	id, ok, err := run.Begin(ctx)
	if err != nil || !ok || id != "a" {
		t.Fatalf("begin = %q,%v,%v", id, ok, err)
	}
	if run.State != runner.StateRunning {
		t.Fatalf("state after begin = %s", run.State)
	}
	if _, err := store.RecordOutcome(ctx, "camp-1", "a", domain.OutcomeAnswered); err != nil {
		t.Fatal(err)
	}
	id, ok, err = run.Advance(ctx, "")
	if err != nil || !ok || id != "b" {
		t.Fatalf("advance = %q,%v,%v", id, ok, err)
	}
	for _, contact := range []string{"b", "c"} {
		if _, err := store.RecordOutcome(ctx, "camp-1", contact, domain.OutcomeNoAnswer); err != nil {
			t.Fatal(err)
		}
		if _, _, err := run.Advance(ctx, ""); err != nil {
			t.Fatal(err)
		}
	}
	if run.State != runner.StateSummary {
		t.Fatalf("state after exhaustion = %s", run.State)
	}
}

func TestRunMissedPass(t *testing.T) {
	run, store, ctx := newRun(t, []string{"a", "b", "c"})
	if _, _, err := run.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	outcomes := map[string]string{
		"a": domain.OutcomeAnswered,
		"b": domain.OutcomeNoAnswer,
		"c": domain.OutcomeNoAnswer,
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.RecordOutcome(ctx, "camp-1", id, outcomes[id]); err != nil {
			t.Fatal(err)
		}
		if _, _, err := run.Advance(ctx, ""); err != nil {
			t.Fatal(err)
		}
	}
	if run.State != runner.StateSummary {
		t.Fatalf("expected summary before retry, got %s", run.State)
	}
	id, ok, err := run.RetryMissed(ctx)
	if err != nil || !ok || id != "b" {
		t.Fatalf("retry missed = %q,%v,%v", id, ok, err)
	}
	if run.State != runner.StateMissed {
		t.Fatalf("state during missed pass = %s", run.State)
	}
	// b stays missed; skip it to reach c
	if _, err := store.RecordOutcome(ctx, "camp-1", "b", domain.OutcomeNoAnswer); err != nil {
		t.Fatal(err)
	}
	id, ok, err = run.Advance(ctx, "b")
	if err != nil || !ok || id != "c" {
		t.Fatalf("advance past skipped = %q,%v,%v", id, ok, err)
	}
	if _, err := store.RecordOutcome(ctx, "camp-1", "c", domain.OutcomeAnswered); err != nil {
		t.Fatal(err)
	}
	// b is still no_answer and only c is skipped, so b comes around again
	id, ok, err = run.Advance(ctx, "c")
	if err != nil || !ok || id != "b" {
		t.Fatalf("still-missed contact must be re-presented = %q,%v,%v", id, ok, err)
	}
	if _, err := store.RecordOutcome(ctx, "camp-1", "b", domain.OutcomeAnswered); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := run.Advance(ctx, "b"); err != nil || ok {
		t.Fatalf("missed pass should end, ok=%v err=%v", ok, err)
	}
	if run.State != runner.StateSummary {
		t.Fatalf("state after missed pass = %s", run.State)
	}
}

func TestRunStateGuards(t *testing.T) {
	run, _, ctx := newRun(t, []string{"a"})
	if _, _, err := run.Advance(ctx, ""); !errors.Is(err, runner.ErrBadState) {
		t.Fatalf("advance from idle: %v", err)
	}
	if _, _, err := run.RetryMissed(ctx); !errors.Is(err, runner.ErrBadState) {
		t.Fatalf("retry from idle: %v", err)
	}
	if _, _, err := run.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if _, _, err := run.Begin(ctx); !errors.Is(err, runner.ErrBadState) {
		t.Fatalf("begin while running: %v", err)
	}
}

func TestRunBeginFromSummaryRestartsFirstPass(t *testing.T) {
	run, store, ctx := newRun(t, []string{"a"})
	if _, _, err := run.Begin(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := store.RecordOutcome(ctx, "camp-1", "a", domain.OutcomeNoAnswer); err != nil {
		t.Fatal(err)
	}
	if _, _, err := run.Advance(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if run.State != runner.StateSummary {
		t.Fatalf("state = %s", run.State)
	}
	// everyone attempted: a fresh first pass goes straight back to summary
	if _, ok, err := run.Begin(ctx); err != nil || ok {
		t.Fatalf("begin from summary = ok=%v err=%v", ok, err)
	}
	if run.State != runner.StateSummary {
		t.Fatalf("state = %s", run.State)
	}
}
