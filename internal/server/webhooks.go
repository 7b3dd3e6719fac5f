package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"callsheet/internal/config"
	"callsheet/internal/domain"
	"callsheet/internal/engine"
)

const (
	webhookPollInterval = 2 * time.Second
	webhookTimeout      = 5 * time.Second
	webhookBatchSize    = 100
)

// startWebhookDispatcher runs one delivery loop per configured webhook.
// Each loop keeps its own cursor into the events table: delivery starts
// at the newest event present when the server comes up, and a failed POST
// halts the loop at that event so nothing is skipped.
func startWebhookDispatcher(e engine.Engine) {
	if e.Config == nil {
		return
	}
	for _, hook := range e.Config.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		go newHookDelivery(e, hook).loop()
	}
}

type hookDelivery struct {
	engine engine.Engine
	hook   config.WebhookConfig
	client *http.Client
	accept func(string) bool
	cursor int64
	primed bool
}

func newHookDelivery(e engine.Engine, hook config.WebhookConfig) *hookDelivery {
	timeout := webhookTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	return &hookDelivery{
		engine: e,
		hook:   hook,
		client: &http.Client{Timeout: timeout},
		accept: typeFilter(hook.Events),
	}
}

func (d *hookDelivery) loop() {
	ticker := time.NewTicker(webhookPollInterval)
	defer ticker.Stop()
	for {
		d.drain(context.Background())
		<-ticker.C
	}
}

func (d *hookDelivery) drain(ctx context.Context) {
	if !d.primed {
		latest, err := d.engine.Repo.LatestEventID(ctx, "")
		if err != nil {
			log.Printf("webhook %s: init cursor: %v", d.hook.URL, err)
			return
		}
		d.cursor = latest
		d.primed = true
	}
	batch, err := d.engine.Repo.EventsAfter(ctx, webhookBatchSize, d.cursor, "")
	if err != nil {
		log.Printf("webhook %s: fetch events: %v", d.hook.URL, err)
		return
	}
	for _, evt := range batch {
		if d.accept(evt.Type) {
			if err := d.deliver(ctx, evt); err != nil {
				log.Printf("webhook %s: deliver event %d: %v", d.hook.URL, evt.ID, err)
				return
			}
		}
		d.cursor = evt.ID
	}
}

func (d *hookDelivery) deliver(ctx context.Context, evt domain.Event) error {
	body, err := json.Marshal(hookPayload(evt))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Callsheet-Event", evt.Type)
	req.Header.Set("X-Callsheet-Delivery", fmt.Sprintf("%d", evt.ID))
	if evt.CampaignID != "" {
		req.Header.Set("X-Callsheet-Campaign", evt.CampaignID)
	}
	if strings.TrimSpace(d.hook.Secret) != "" {
		req.Header.Set("X-Callsheet-Secret", d.hook.Secret)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

func hookPayload(evt domain.Event) map[string]any {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	out := map[string]any{
		"id":          evt.ID,
		"type":        evt.Type,
		"entity_kind": evt.EntityKind,
		"actor_id":    evt.ActorID,
		"ts":          evt.TS,
		"payload":     payload,
	}
	if evt.CampaignID != "" {
		out["campaign_id"] = evt.CampaignID
	}
	if evt.EntityID != "" {
		out["entity_id"] = evt.EntityID
	}
	return out
}

func typeFilter(types []string) func(string) bool {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if t = strings.TrimSpace(t); t != "" {
			set[t] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(string) bool { return true }
	}
	return func(evt string) bool {
		_, ok := set[evt]
		return ok
	}
}
