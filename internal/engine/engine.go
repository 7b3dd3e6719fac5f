package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"callsheet/internal/config"
	"callsheet/internal/domain"
	"callsheet/internal/events"
	"callsheet/internal/filter"
	"callsheet/internal/progress"
	"callsheet/internal/repo"
	"callsheet/internal/report"
	"callsheet/internal/runner"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Progress *progress.Store
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:       db,
		Repo:     r,
		Events:   events.Writer{DB: db},
		Progress: progress.NewStore(r),
		Config:   cfg,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// progressStore lets a zero-value Engine literal still work in tests.
func (e Engine) progressStore() *progress.Store {
	if e.Progress != nil {
		return e.Progress
	}
	return progress.NewStore(e.Repo)
}

// CampaignCreateOptions are parameters for creating a campaign.
type CampaignCreateOptions struct {
	Name    string
	Filters []domain.FilterCondition
	ActorID string
}

// CreateCampaign filters the roster, snapshots the resulting contact
// queue and initializes progress for it.
func (e Engine) CreateCampaign(ctx context.Context, opts CampaignCreateOptions, records []domain.Record) (domain.Campaign, error) {
	if opts.Name == "" {
		return domain.Campaign{}, errors.New("name is required")
	}
	filtered := filter.Apply(records, opts.Filters)
	c := domain.Campaign{
		ID:         uuid.NewString(),
		Name:       opts.Name,
		CreatedAt:  e.now().UTC().Format(time.RFC3339),
		Filters:    opts.Filters,
		ContactIDs: filter.DeriveQueue(filtered, e.idField()),
	}
	if c.Filters == nil {
		c.Filters = []domain.FilterCondition{}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Campaign{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertCampaignTx(ctx, tx, c); err != nil {
		return domain.Campaign{}, fmt.Errorf("insert campaign: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "campaign.create", c.ID, "campaign", c.ID, opts.ActorID, events.EventPayload{
		"name":     c.Name,
		"filters":  len(c.Filters),
		"contacts": len(c.ContactIDs),
	}); err != nil {
		return domain.Campaign{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Campaign{}, err
	}
	if _, err := e.progressStore().LoadOrInit(ctx, c.ID, c.ContactIDs); err != nil {
		return domain.Campaign{}, fmt.Errorf("init progress: %w", err)
	}
	return c, nil
}

func (e Engine) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	return e.Repo.GetCampaign(ctx, id)
}

func (e Engine) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	return e.Repo.ListCampaigns(ctx)
}

// DeleteCampaign removes the campaign and its progress snapshot.
func (e Engine) DeleteCampaign(ctx context.Context, id, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCampaign(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "campaign.delete", id, "campaign", id, actorID, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return e.progressStore().Remove(ctx, id)
}

// SetSurvey attaches or replaces the one survey a campaign carries.
func (e Engine) SetSurvey(ctx context.Context, campaignID, question string, options []string, actorID string) (domain.Campaign, error) {
	if question == "" {
		return domain.Campaign{}, errors.New("question is required")
	}
	if len(options) == 0 {
		return domain.Campaign{}, errors.New("at least one option is required")
	}
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.Campaign{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	created := now
	if c.Survey != nil && c.Survey.CreatedAt != "" {
		created = c.Survey.CreatedAt
	}
	c.Survey = &domain.Survey{
		Question:  question,
		Options:   options,
		CreatedAt: created,
		UpdatedAt: now,
		Active:    true,
	}
	if err := e.updateCampaign(ctx, c, "survey.set", "survey", actorID, events.EventPayload{"question": question}); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

// SetSurveyActive toggles whether the survey accepts responses, leaving
// its question and options untouched.
func (e Engine) SetSurveyActive(ctx context.Context, campaignID string, active bool, actorID string) (domain.Campaign, error) {
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.Campaign{}, err
	}
	if c.Survey == nil {
		return domain.Campaign{}, fmt.Errorf("campaign %s has no survey", campaignID)
	}
	c.Survey.Active = active
	c.Survey.UpdatedAt = e.now().UTC().Format(time.RFC3339)
	if err := e.updateCampaign(ctx, c, "survey.active", "survey", actorID, events.EventPayload{"active": active}); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

// AddReminder records callback dates for a contact. Dates accumulate
// across calls for the same contact.
func (e Engine) AddReminder(ctx context.Context, campaignID, contactID string, dates []string, actorID string) (domain.Campaign, error) {
	if contactID == "" {
		return domain.Campaign{}, errors.New("contact id is required")
	}
	if len(dates) == 0 {
		return domain.Campaign{}, errors.New("at least one date is required")
	}
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.Campaign{}, err
	}
	found := false
	for i, rem := range c.Reminders {
		if rem.ContactID == contactID {
			c.Reminders[i].Dates = append(rem.Dates, dates...)
			found = true
			break
		}
	}
	if !found {
		c.Reminders = append(c.Reminders, domain.Reminder{ContactID: contactID, Dates: dates})
	}
	if err := e.updateCampaign(ctx, c, "reminder.add", "contact", actorID, events.EventPayload{"contact_id": contactID, "dates": dates}); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

// RefreshQueue re-applies the campaign's filters against the current
// roster. New matches are appended to the queue and backfilled into
// progress; existing queue entries are never removed or reordered.
func (e Engine) RefreshQueue(ctx context.Context, campaignID string, records []domain.Record, actorID string) (domain.Campaign, error) {
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.Campaign{}, err
	}
	known := make(map[string]bool, len(c.ContactIDs))
	for _, id := range c.ContactIDs {
		known[id] = true
	}
	added := 0
	for _, id := range filter.DeriveQueue(filter.Apply(records, c.Filters), e.idField()) {
		if known[id] {
			continue
		}
		c.ContactIDs = append(c.ContactIDs, id)
		known[id] = true
		added++
	}
	if err := e.updateCampaign(ctx, c, "campaign.refresh", "campaign", actorID, events.EventPayload{"added": added, "contacts": len(c.ContactIDs)}); err != nil {
		return domain.Campaign{}, err
	}
	if _, err := e.progressStore().LoadOrInit(ctx, c.ID, c.ContactIDs); err != nil {
		return domain.Campaign{}, err
	}
	return c, nil
}

// RecordOutcome persists one call attempt and emits an audit event.
func (e Engine) RecordOutcome(ctx context.Context, campaignID, contactID, outcome, actorID string) (domain.CampaignProgress, error) {
	snap, err := e.progressStore().RecordOutcome(ctx, campaignID, contactID, outcome)
	if err != nil {
		return domain.CampaignProgress{}, err
	}
	err = e.appendEvent(ctx, "call.record", campaignID, "contact", contactID, actorID, events.EventPayload{
		"outcome":  outcome,
		"attempts": snap.Contacts[contactID].Attempts,
	})
	return snap, err
}

// RecordSurvey persists a survey answer and emits an audit event. The
// answer must be one of the survey's options when a survey is set.
func (e Engine) RecordSurvey(ctx context.Context, campaignID, contactID, answer, actorID string) (domain.CampaignProgress, error) {
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.CampaignProgress{}, err
	}
	if c.Survey == nil {
		return domain.CampaignProgress{}, fmt.Errorf("campaign %s has no survey", campaignID)
	}
	if !c.Survey.Active {
		return domain.CampaignProgress{}, fmt.Errorf("campaign %s survey is not active", campaignID)
	}
	valid := false
	for _, opt := range c.Survey.Options {
		if opt == answer {
			valid = true
			break
		}
	}
	if !valid {
		return domain.CampaignProgress{}, fmt.Errorf("answer %q is not a survey option", answer)
	}
	snap, err := e.progressStore().RecordSurveyResponse(ctx, campaignID, contactID, answer)
	if err != nil {
		return domain.CampaignProgress{}, err
	}
	err = e.appendEvent(ctx, "survey.record", campaignID, "contact", contactID, actorID, events.EventPayload{"answer": answer})
	return snap, err
}

// ClearMissed resets every no_answer outcome so a fresh missed pass can
// re-present those contacts.
func (e Engine) ClearMissed(ctx context.Context, campaignID, actorID string) (domain.CampaignProgress, error) {
	snap, err := e.progressStore().ClearMissedOutcomes(ctx, campaignID)
	if err != nil {
		return domain.CampaignProgress{}, err
	}
	err = e.appendEvent(ctx, "progress.clear_missed", campaignID, "campaign", campaignID, actorID, nil)
	return snap, err
}

// MarkCompleted flips the advisory completed flag on the snapshot.
func (e Engine) MarkCompleted(ctx context.Context, campaignID string, completed bool, actorID string) (domain.CampaignProgress, error) {
	snap, err := e.progressStore().MarkCompleted(ctx, campaignID, completed)
	if err != nil {
		return domain.CampaignProgress{}, err
	}
	err = e.appendEvent(ctx, "campaign.completed", campaignID, "campaign", campaignID, actorID, events.EventPayload{"completed": completed})
	return snap, err
}

func (e Engine) Summary(ctx context.Context, campaignID string) (domain.ProgressTotals, error) {
	return e.progressStore().Summary(ctx, campaignID)
}

func (e Engine) CampaignProgress(ctx context.Context, campaignID string) (*domain.CampaignProgress, error) {
	return e.progressStore().Progress(ctx, campaignID)
}

// NewRun builds an in-process run over the campaign's stored queue.
func (e Engine) NewRun(ctx context.Context, campaignID string) (*runner.Run, error) {
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	return runner.NewRun(c.ID, c.ContactIDs, e.progressStore()), nil
}

// NextContact is the stateless selection used by one-shot CLI calls: it
// ensures the snapshot exists, then picks the next contact for the
// strategy directly from durable state.
func (e Engine) NextContact(ctx context.Context, campaignID string, strategy runner.Strategy, skipID string) (string, bool, error) {
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return "", false, err
	}
	snap, err := e.progressStore().LoadOrInit(ctx, campaignID, c.ContactIDs)
	if err != nil {
		return "", false, err
	}
	id, ok := runner.PickNext(c.ContactIDs, &snap, strategy, skipID)
	return id, ok, nil
}

// reportOptions maps configured name field pairs onto report options.
func (e Engine) reportOptions() report.Options {
	var opts report.Options
	if e.Config == nil {
		return opts
	}
	opts.IDField = e.Config.Roster.IDField
	for _, pair := range e.Config.Report.NameFields {
		opts.NameFields = append(opts.NameFields, report.NamePair{First: pair.First, Last: pair.Last})
	}
	return opts
}

// idField is the configured roster identity field, empty for the default.
func (e Engine) idField() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Roster.IDField
}

// CallLogCSV renders the campaign's call audit log.
func (e Engine) CallLogCSV(ctx context.Context, campaignID string) (string, error) {
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return "", err
	}
	snap, err := e.progressStore().Progress(ctx, campaignID)
	if err != nil {
		return "", err
	}
	return report.CallLogCSV(c.ContactIDs, snap), nil
}

// SurveyLogCSV renders the campaign's survey audit log.
func (e Engine) SurveyLogCSV(ctx context.Context, campaignID string) (string, error) {
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return "", err
	}
	snap, err := e.progressStore().Progress(ctx, campaignID)
	if err != nil {
		return "", err
	}
	return report.SurveyLogCSV(c.ContactIDs, snap), nil
}

// SummaryCSV joins the filtered roster with progress into the summary
// export. The same roster used to create the campaign must be supplied.
func (e Engine) SummaryCSV(ctx context.Context, campaignID string, records []domain.Record) (string, error) {
	c, filtered, snap, err := e.reportInputs(ctx, campaignID, records)
	if err != nil {
		return "", err
	}
	return report.SummaryCSV(c, filtered, snap, e.reportOptions()), nil
}

// ReportRows returns the flat row set for the external row store.
func (e Engine) ReportRows(ctx context.Context, campaignID string, records []domain.Record) ([]report.CloudRow, error) {
	c, filtered, snap, err := e.reportInputs(ctx, campaignID, records)
	if err != nil {
		return nil, err
	}
	return report.Rows(c, filtered, snap, e.reportOptions()), nil
}

func (e Engine) reportInputs(ctx context.Context, campaignID string, records []domain.Record) (domain.Campaign, []domain.Record, *domain.CampaignProgress, error) {
	c, err := e.Repo.GetCampaign(ctx, campaignID)
	if err != nil {
		return domain.Campaign{}, nil, nil, err
	}
	snap, err := e.progressStore().Progress(ctx, campaignID)
	if err != nil {
		return domain.Campaign{}, nil, nil, err
	}
	return c, filter.Apply(records, c.Filters), snap, nil
}

func (e Engine) updateCampaign(ctx context.Context, c domain.Campaign, evtType, entityKind, actorID string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateCampaignTx(ctx, tx, c); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, evtType, c.ID, entityKind, c.ID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) appendEvent(ctx context.Context, evtType, campaignID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, evtType, campaignID, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}
