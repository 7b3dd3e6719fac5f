// Package progress keeps the durable per-campaign call and survey history.
// Every mutating call re-reads the stored snapshot, applies the change and
// persists the whole document before returning; there is no partial-write
// state visible to callers.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callsheet/internal/domain"
)

// ErrNotInitialized is returned when a recording or summary operation runs
// for a campaign whose snapshot was never created via LoadOrInit.
var ErrNotInitialized = errors.New("campaign progress not initialized")

// SnapshotStore is the durable key-value slot behind the progress store.
// Get returns (nil, nil) when no snapshot exists. Put replaces the whole
// snapshot atomically. Delete is idempotent.
type SnapshotStore interface {
	GetSnapshot(ctx context.Context, campaignID string) (*domain.CampaignProgress, error)
	PutSnapshot(ctx context.Context, campaignID string, snap *domain.CampaignProgress) error
	DeleteSnapshot(ctx context.Context, campaignID string) error
}

// Store performs read-modify-write cycles against one snapshot per
// campaign. It assumes a single active writer; safety against stale state
// comes from reloading before every mutation, not from locking.
type Store struct {
	Snapshots SnapshotStore
	Now       func() time.Time
}

func NewStore(snapshots SnapshotStore) *Store {
	return &Store{Snapshots: snapshots, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// LoadOrInit loads the snapshot for a campaign, creating a zeroed one if
// absent, and backfills any queue ids not yet present. Repeated calls with
// the same queue ids change nothing beyond the backfill check.
func (s *Store) LoadOrInit(ctx context.Context, campaignID string, queueIDs []string) (domain.CampaignProgress, error) {
	snap, err := s.Snapshots.GetSnapshot(ctx, campaignID)
	if err != nil {
		return domain.CampaignProgress{}, err
	}
	if snap == nil {
		snap = &domain.CampaignProgress{
			CampaignID: campaignID,
			Contacts:   map[string]domain.ContactProgress{},
		}
	}
	if snap.Contacts == nil {
		snap.Contacts = map[string]domain.ContactProgress{}
	}
	for _, id := range queueIDs {
		if _, ok := snap.Contacts[id]; ok {
			continue
		}
		snap.Contacts[id] = domain.ContactProgress{ContactID: id}
		snap.Totals.Total++
	}
	if err := s.Snapshots.PutSnapshot(ctx, campaignID, snap); err != nil {
		return domain.CampaignProgress{}, err
	}
	return *snap, nil
}

// RecordOutcome records one call attempt: attempts increment, the latest
// outcome and call time are set, and a log entry is appended. Totals are
// recomputed by a full scan rather than incrementally so they can never
// drift from the contact map.
func (s *Store) RecordOutcome(ctx context.Context, campaignID, contactID, outcome string) (domain.CampaignProgress, error) {
	if outcome != domain.OutcomeAnswered && outcome != domain.OutcomeNoAnswer {
		return domain.CampaignProgress{}, fmt.Errorf("invalid outcome %q", outcome)
	}
	snap, err := s.load(ctx, campaignID)
	if err != nil {
		return domain.CampaignProgress{}, err
	}
	cp := snap.Contacts[contactID]
	cp.ContactID = contactID
	cp.Attempts++
	cp.LastCalledAt = s.now().UnixMilli()
	cp.Outcome = outcome
	cp.Logs = append(cp.Logs, domain.CallLogEntry{Outcome: outcome, At: cp.LastCalledAt})
	snap.Contacts[contactID] = cp
	recomputeTotals(snap)
	if err := s.Snapshots.PutSnapshot(ctx, campaignID, snap); err != nil {
		return domain.CampaignProgress{}, err
	}
	return *snap, nil
}

// RecordSurveyResponse stores the latest survey answer for a contact and
// appends a survey log entry. Call totals are not affected.
func (s *Store) RecordSurveyResponse(ctx context.Context, campaignID, contactID, answer string) (domain.CampaignProgress, error) {
	snap, err := s.load(ctx, campaignID)
	if err != nil {
		return domain.CampaignProgress{}, err
	}
	cp := snap.Contacts[contactID]
	cp.ContactID = contactID
	cp.SurveyAnswer = answer
	cp.SurveyLogs = append(cp.SurveyLogs, domain.SurveyLogEntry{Answer: answer, At: s.now().UnixMilli()})
	snap.Contacts[contactID] = cp
	if err := s.Snapshots.PutSnapshot(ctx, campaignID, snap); err != nil {
		return domain.CampaignProgress{}, err
	}
	return *snap, nil
}

// ClearMissedOutcomes clears the outcome of every contact currently at
// no_answer, resetting a retry pass, then recomputes totals.
func (s *Store) ClearMissedOutcomes(ctx context.Context, campaignID string) (domain.CampaignProgress, error) {
	snap, err := s.load(ctx, campaignID)
	if err != nil {
		return domain.CampaignProgress{}, err
	}
	for id, cp := range snap.Contacts {
		if cp.Outcome == domain.OutcomeNoAnswer {
			cp.Outcome = ""
			snap.Contacts[id] = cp
		}
	}
	recomputeTotals(snap)
	if err := s.Snapshots.PutSnapshot(ctx, campaignID, snap); err != nil {
		return domain.CampaignProgress{}, err
	}
	return *snap, nil
}

// MarkCompleted sets the advisory completed flag.
func (s *Store) MarkCompleted(ctx context.Context, campaignID string, completed bool) (domain.CampaignProgress, error) {
	snap, err := s.load(ctx, campaignID)
	if err != nil {
		return domain.CampaignProgress{}, err
	}
	snap.Completed = completed
	if err := s.Snapshots.PutSnapshot(ctx, campaignID, snap); err != nil {
		return domain.CampaignProgress{}, err
	}
	return *snap, nil
}

// Summary returns the aggregate totals for a campaign.
func (s *Store) Summary(ctx context.Context, campaignID string) (domain.ProgressTotals, error) {
	snap, err := s.load(ctx, campaignID)
	if err != nil {
		return domain.ProgressTotals{}, err
	}
	return snap.Totals, nil
}

// Progress returns the current snapshot or nil when none exists.
func (s *Store) Progress(ctx context.Context, campaignID string) (*domain.CampaignProgress, error) {
	return s.Snapshots.GetSnapshot(ctx, campaignID)
}

// Remove deletes a campaign's snapshot. Deleting an absent snapshot is
// not an error.
func (s *Store) Remove(ctx context.Context, campaignID string) error {
	return s.Snapshots.DeleteSnapshot(ctx, campaignID)
}

func (s *Store) load(ctx context.Context, campaignID string) (*domain.CampaignProgress, error) {
	snap, err := s.Snapshots.GetSnapshot(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("campaign %s: %w", campaignID, ErrNotInitialized)
	}
	if snap.Contacts == nil {
		snap.Contacts = map[string]domain.ContactProgress{}
	}
	return snap, nil
}

func recomputeTotals(snap *domain.CampaignProgress) {
	t := domain.ProgressTotals{Total: len(snap.Contacts)}
	for _, cp := range snap.Contacts {
		switch cp.Outcome {
		case domain.OutcomeAnswered:
			t.Made++
			t.Answered++
		case domain.OutcomeNoAnswer:
			t.Made++
			t.Missed++
		}
	}
	snap.Totals = t
}
