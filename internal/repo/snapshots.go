package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"callsheet/internal/domain"
)

// Progress snapshots are stored whole: one JSON document per campaign
// under an opaque namespaced key. A write is a single upsert, so readers
// never observe a torn snapshot. Repo satisfies progress.SnapshotStore.

func snapshotKey(campaignID string) string {
	return "progress:" + campaignID
}

func (r Repo) GetSnapshot(ctx context.Context, campaignID string) (*domain.CampaignProgress, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT snapshot_json FROM progress_snapshots WHERE key=?`, snapshotKey(campaignID)).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap domain.CampaignProgress
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", campaignID, err)
	}
	return &snap, nil
}

func (r Repo) PutSnapshot(ctx context.Context, campaignID string, snap *domain.CampaignProgress) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO progress_snapshots(key,campaign_id,snapshot_json,updated_at) VALUES (?,?,?,?)
ON CONFLICT(key) DO UPDATE SET snapshot_json=excluded.snapshot_json, updated_at=excluded.updated_at`,
		snapshotKey(campaignID), campaignID, string(payload), now)
	return err
}

func (r Repo) DeleteSnapshot(ctx context.Context, campaignID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM progress_snapshots WHERE key=?`, snapshotKey(campaignID))
	return err
}
