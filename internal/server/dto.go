package server

import (
	"encoding/json"

	"callsheet/internal/domain"
	"callsheet/internal/report"
)

// Request payloads

type FilterRequest struct {
	Field string `json:"field"`
	Op    string `json:"op" enum:"=,~,>,>=,<,<="`
	Value string `json:"value"`
}

type CreateCampaignRequest struct {
	Name    string          `json:"name"`
	Filters []FilterRequest `json:"filters,omitempty"`
}

type SetSurveyRequest struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type AddReminderRequest struct {
	ContactID string   `json:"contact_id"`
	Dates     []string `json:"dates"`
}

type RecordCallRequest struct {
	ContactID string `json:"contact_id"`
	Outcome   string `json:"outcome" enum:"answered,no_answer"`
}

type RecordSurveyRequest struct {
	ContactID string `json:"contact_id"`
	Answer    string `json:"answer"`
}

type SetCompletedRequest struct {
	Completed bool `json:"completed"`
}

type SetSurveyActiveRequest struct {
	Active bool `json:"active"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Response payloads

type CampaignResponse struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	CreatedAt  string            `json:"created_at" format:"date-time"`
	Filters    []FilterRequest   `json:"filters"`
	ContactIDs []string          `json:"contact_ids"`
	Reminders  []domain.Reminder `json:"reminders,omitempty"`
	Survey     *domain.Survey    `json:"survey,omitempty"`
}

type TotalsResponse struct {
	Total     int  `json:"total"`
	Made      int  `json:"made"`
	Answered  int  `json:"answered"`
	Missed    int  `json:"missed"`
	Completed bool `json:"completed"`
}

type ProgressResponse struct {
	CampaignID string                            `json:"campaign_id"`
	Totals     domain.ProgressTotals             `json:"totals"`
	Contacts   map[string]domain.ContactProgress `json:"contacts"`
	Completed  bool                              `json:"completed"`
}

type NextContactResponse struct {
	ContactID string `json:"contact_id,omitempty"`
	Done      bool   `json:"done"`
	Strategy  string `json:"strategy" enum:"unattempted,missed"`
}

type ReportRowsResponse struct {
	Rows []report.CloudRow `json:"rows"`
}

type APIKeyCreatedResponse struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	Key     string `json:"key"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	TS         string          `json:"ts" format:"date-time"`
	Type       string          `json:"type"`
	CampaignID string          `json:"campaign_id,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

func filterConditions(filters []FilterRequest) []domain.FilterCondition {
	out := make([]domain.FilterCondition, 0, len(filters))
	for _, f := range filters {
		out = append(out, domain.FilterCondition{Field: f.Field, Op: f.Op, Value: f.Value})
	}
	return out
}

func campaignResponse(c domain.Campaign) CampaignResponse {
	filters := make([]FilterRequest, 0, len(c.Filters))
	for _, f := range c.Filters {
		filters = append(filters, FilterRequest{Field: f.Field, Op: f.Op, Value: f.Value})
	}
	return CampaignResponse{
		ID:         c.ID,
		Name:       c.Name,
		CreatedAt:  c.CreatedAt,
		Filters:    filters,
		ContactIDs: c.ContactIDs,
		Reminders:  c.Reminders,
		Survey:     c.Survey,
	}
}

func mapCampaigns(items []domain.Campaign) []CampaignResponse {
	out := make([]CampaignResponse, 0, len(items))
	for _, c := range items {
		out = append(out, campaignResponse(c))
	}
	return out
}

func progressResponse(snap domain.CampaignProgress) ProgressResponse {
	return ProgressResponse{
		CampaignID: snap.CampaignID,
		Totals:     snap.Totals,
		Contacts:   snap.Contacts,
		Completed:  snap.Completed,
	}
}

func eventResponse(e domain.Event) EventResponse {
	var payload json.RawMessage
	if e.Payload != "" && json.Valid([]byte(e.Payload)) {
		payload = json.RawMessage(e.Payload)
	}
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		CampaignID: e.CampaignID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    payload,
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse(e))
	}
	return out
}
