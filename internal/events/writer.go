package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// EventPayload is the structured body stored with an event.
type EventPayload map[string]any

// Writer appends rows to the append-only events table. Appends happen
// inside the caller's transaction so an event is recorded exactly when
// the change it describes commits.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, campaignID, entityKind, entityID, actorID string, payload EventPayload) error {
	body, err := encodePayload(payload)
	if err != nil {
		return err
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events(ts,type,campaign_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), evtType, orNull(campaignID), entityKind, orNull(entityID), actorID, body)
	return err
}

func encodePayload(payload EventPayload) (string, error) {
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	return string(data), nil
}

func orNull(v string) any {
	if v == "" {
		return nil
	}
	return v
}
