package main

import (
	"context"
	"testing"
	"time"

	"callsheet/internal/config"
	"callsheet/internal/db"
	"callsheet/internal/domain"
	"callsheet/internal/engine"
	"callsheet/internal/migrate"
)

func newTestEngine(t *testing.T) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	eng.Progress.Now = eng.Now
	return eng
}

// A survey set or deactivated while a calling session is open must be
// picked up on the very next answered call, not on restart.
func TestActiveSurveySeesMidSessionChanges(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	c, err := e.CreateCampaign(ctx, engine.CampaignCreateOptions{
		Name:    "mid-session",
		ActorID: "tester",
	}, []domain.Record{{"id": "s1", "name": "Ada"}})
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	if s := activeSurvey(ctx, e, c.ID); s != nil {
		t.Fatalf("survey before any was set = %+v", s)
	}

	if _, err := e.SetSurvey(ctx, c.ID, "Attending?", []string{"yes", "no"}, "tester"); err != nil {
		t.Fatalf("set survey: %v", err)
	}
	s := activeSurvey(ctx, e, c.ID)
	if s == nil || s.Question != "Attending?" {
		t.Fatalf("survey after set = %+v", s)
	}

	if _, err := e.SetSurveyActive(ctx, c.ID, false, "tester"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if s := activeSurvey(ctx, e, c.ID); s != nil {
		t.Fatalf("deactivated survey still offered = %+v", s)
	}

	if s := activeSurvey(ctx, e, "no-such-campaign"); s != nil {
		t.Fatalf("survey for unknown campaign = %+v", s)
	}
}
