package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"callsheet/internal/config"
	"callsheet/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r Repo) InsertCampaign(ctx context.Context, c domain.Campaign) error {
	return insertCampaign(ctx, r.DB, c)
}

// InsertCampaignTx inserts a campaign inside an existing transaction.
func (r Repo) InsertCampaignTx(ctx context.Context, tx *sql.Tx, c domain.Campaign) error {
	return insertCampaign(ctx, tx, c)
}

func insertCampaign(ctx context.Context, ex execer, c domain.Campaign) error {
	filters, contactIDs, reminders, survey, err := marshalCampaign(c)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO campaigns(id,name,created_at,filters_json,contact_ids_json,reminders_json,survey_json) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.Name, c.CreatedAt, filters, contactIDs, reminders, survey)
	return err
}

// UpdateCampaign replaces the stored campaign as a whole object.
func (r Repo) UpdateCampaign(ctx context.Context, c domain.Campaign) error {
	return updateCampaign(ctx, r.DB, c)
}

// UpdateCampaignTx replaces a campaign inside an existing transaction.
func (r Repo) UpdateCampaignTx(ctx context.Context, tx *sql.Tx, c domain.Campaign) error {
	return updateCampaign(ctx, tx, c)
}

func updateCampaign(ctx context.Context, ex execer, c domain.Campaign) error {
	filters, contactIDs, reminders, survey, err := marshalCampaign(c)
	if err != nil {
		return err
	}
	res, err := ex.ExecContext(ctx, `UPDATE campaigns SET name=?, filters_json=?, contact_ids_json=?, reminders_json=?, survey_json=? WHERE id=?`,
		c.Name, filters, contactIDs, reminders, survey, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func marshalCampaign(c domain.Campaign) (filters, contactIDs string, reminders, survey any, err error) {
	f, err := json.Marshal(c.Filters)
	if err != nil {
		return "", "", nil, nil, err
	}
	ids, err := json.Marshal(c.ContactIDs)
	if err != nil {
		return "", "", nil, nil, err
	}
	reminders, err = marshalOptional(c.Reminders)
	if err != nil {
		return "", "", nil, nil, err
	}
	survey, err = marshalOptional(c.Survey)
	if err != nil {
		return "", "", nil, nil, err
	}
	return string(f), string(ids), reminders, survey, nil
}

func (r Repo) GetCampaign(ctx context.Context, id string) (domain.Campaign, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at,filters_json,contact_ids_json,reminders_json,survey_json FROM campaigns WHERE id=?`, id)
	return scanCampaign(row.Scan)
}

func (r Repo) ListCampaigns(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at,filters_json,contact_ids_json,reminders_json,survey_json FROM campaigns ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) DeleteCampaign(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM campaigns WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCampaign(scan func(...any) error) (domain.Campaign, error) {
	var c domain.Campaign
	var filters, contactIDs string
	var reminders, survey sql.NullString
	err := scan(&c.ID, &c.Name, &c.CreatedAt, &filters, &contactIDs, &reminders, &survey)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(filters), &c.Filters); err != nil {
		return c, fmt.Errorf("campaign %s filters: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(contactIDs), &c.ContactIDs); err != nil {
		return c, fmt.Errorf("campaign %s contact ids: %w", c.ID, err)
	}
	if reminders.Valid && reminders.String != "" {
		if err := json.Unmarshal([]byte(reminders.String), &c.Reminders); err != nil {
			return c, fmt.Errorf("campaign %s reminders: %w", c.ID, err)
		}
	}
	if survey.Valid && survey.String != "" {
		if err := json.Unmarshal([]byte(survey.String), &c.Survey); err != nil {
			return c, fmt.Errorf("campaign %s survey: %w", c.ID, err)
		}
	}
	return c, nil
}

func marshalOptional(v any) (any, error) {
	switch t := v.(type) {
	case []domain.Reminder:
		if len(t) == 0 {
			return nil, nil
		}
	case *domain.Survey:
		if t == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r Repo) UpsertWorkspaceConfig(ctx context.Context, name string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO workspace_configs(name,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(name) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, name, string(payload), now, now)
	return err
}

func (r Repo) GetWorkspaceConfig(ctx context.Context, name string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM workspace_configs WHERE name=?`, name).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, campaignID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, campaignID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, campaignID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if campaignID != "" {
		clauses = append(clauses, "campaign_id=?")
		args = append(args, campaignID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,campaign_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, campaignID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if campaignID != "" {
		clauses = append(clauses, "campaign_id=?")
		args = append(args, campaignID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,campaign_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the highest event id, 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context, campaignID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if campaignID != "" {
		query += ` WHERE campaign_id=?`
		args = append(args, campaignID)
	}
	var id int64
	if err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func scanEvent(scan func(...any) error) (domain.Event, error) {
	var e domain.Event
	var campaignID, entityID, payload sql.NullString
	if err := scan(&e.ID, &e.TS, &e.Type, &campaignID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
		return e, err
	}
	if campaignID.Valid {
		e.CampaignID = campaignID.String
	}
	if entityID.Valid {
		e.EntityID = entityID.String
	}
	if payload.Valid {
		e.Payload = payload.String
	}
	return e, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
