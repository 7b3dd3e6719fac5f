package domain

// Record is one roster entry. The field set is open and unvalidated;
// an optional "id" field gives the contact a durable identity.
type Record map[string]any

// Operator values accepted in filter conditions.
const (
	OpEquals   = "="
	OpContains = "~"
	OpGt       = ">"
	OpGte      = ">="
	OpLt       = "<"
	OpLte      = "<="
)

type FilterCondition struct {
	Field string `json:"field"`
	Op    string `json:"op" enum:"=,~,>,>=,<,<="`
	Value string `json:"value"`
}

type Survey struct {
	Question  string   `json:"question"`
	Options   []string `json:"options"`
	CreatedAt string   `json:"created_at" format:"date-time"`
	UpdatedAt string   `json:"updated_at" format:"date-time"`
	Active    bool     `json:"active"`
}

type Reminder struct {
	ContactID string   `json:"contact_id"`
	Dates     []string `json:"dates"`
}

// Campaign is a named, filtered subset of the roster plus survey and
// reminder metadata. ContactIDs is the queue snapshot taken at creation
// time; it grows via backfill when the queue is recomputed, never shrinks.
type Campaign struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	CreatedAt  string            `json:"created_at" format:"date-time"`
	Filters    []FilterCondition `json:"filters"`
	ContactIDs []string          `json:"contact_ids"`
	Reminders  []Reminder        `json:"reminders,omitempty"`
	Survey     *Survey           `json:"survey,omitempty"`
}

// Call outcomes.
const (
	OutcomeAnswered = "answered"
	OutcomeNoAnswer = "no_answer"
)

type CallLogEntry struct {
	Outcome string `json:"outcome" enum:"answered,no_answer"`
	At      int64  `json:"at"`
}

type SurveyLogEntry struct {
	Answer string `json:"answer"`
	At     int64  `json:"at"`
}

// ContactProgress tracks one contact within one campaign. Logs and
// SurveyLogs are append-only audit trails; Outcome, SurveyAnswer and
// LastCalledAt are projections of the last entry appended and are never
// authored independently. Timestamps are unix milliseconds.
type ContactProgress struct {
	ContactID    string           `json:"contact_id"`
	Outcome      string           `json:"outcome,omitempty" enum:"answered,no_answer"`
	Attempts     int              `json:"attempts"`
	LastCalledAt int64            `json:"last_called_at,omitempty"`
	Logs         []CallLogEntry   `json:"logs,omitempty"`
	SurveyAnswer string           `json:"survey_answer,omitempty"`
	SurveyLogs   []SurveyLogEntry `json:"survey_logs,omitempty"`
}

type ProgressTotals struct {
	Total    int `json:"total"`
	Made     int `json:"made"`
	Answered int `json:"answered"`
	Missed   int `json:"missed"`
}

// CampaignProgress is the whole durable snapshot for one campaign.
// Invariants: Totals.Made equals the number of contacts with an outcome
// set, Answered+Missed == Made, and Total tracks the queue length.
// Completed is advisory and never derived.
type CampaignProgress struct {
	CampaignID string                     `json:"campaign_id"`
	Totals     ProgressTotals             `json:"totals"`
	Contacts   map[string]ContactProgress `json:"contacts"`
	Completed  bool                       `json:"completed"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	CampaignID string `json:"campaign_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
