package report_test

import (
	"strings"
	"testing"

	"callsheet/internal/domain"
	"callsheet/internal/report"
)

func TestFullNameCandidates(t *testing.T) {
	candidates := report.DefaultNameFields
	cases := []struct {
		name string
		rec  domain.Record
		want string
	}{
		{"first and last", domain.Record{"first_name": "Jane", "last_name": "Doe"}, "Jane Doe"},
		{"camelCase pair", domain.Record{"firstName": "Jane", "lastName": "Doe"}, "Jane Doe"},
		{"full_name single", domain.Record{"full_name": "Jane Doe"}, "Jane Doe"},
		{"name fallback", domain.Record{"name": "Jane"}, "Jane"},
		{"first only", domain.Record{"first_name": "Jane"}, "Jane"},
		{"nothing matches", domain.Record{"email": "jane@example.com"}, ""},
		{"whitespace trimmed", domain.Record{"first_name": " Jane ", "last_name": " Doe "}, "Jane Doe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := report.FullName(tc.rec, candidates); got != tc.want {
				t.Fatalf("FullName = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveTimestampTakesLater(t *testing.T) {
	cp := domain.ContactProgress{
		ContactID:    "a",
		LastCalledAt: 100,
		SurveyAnswer: "yes",
		SurveyLogs: []domain.SurveyLogEntry{
			{Answer: "no", At: 400},
			{Answer: "yes", At: 50},
		},
	}
	// matching survey entry (50) is older than the call (100)
	if ts := report.ResolveTimestamp(cp); ts != 100 {
		t.Fatalf("ResolveTimestamp = %d, want 100", ts)
	}
	cp.SurveyLogs = append(cp.SurveyLogs, domain.SurveyLogEntry{Answer: "yes", At: 250})
	if ts := report.ResolveTimestamp(cp); ts != 250 {
		t.Fatalf("ResolveTimestamp = %d, want 250", ts)
	}
	// no survey answer: call time wins regardless of logs
	cp.SurveyAnswer = ""
	if ts := report.ResolveTimestamp(cp); ts != 100 {
		t.Fatalf("ResolveTimestamp without answer = %d, want 100", ts)
	}
	if ts := report.ResolveTimestamp(domain.ContactProgress{}); ts != 0 {
		t.Fatalf("empty contact = %d, want 0", ts)
	}
}

func TestFormatTimestamp(t *testing.T) {
	if got := report.FormatTimestamp(0); got != "" {
		t.Fatalf("zero should render empty, got %q", got)
	}
	if got := report.FormatTimestamp(1704067200000); got != "2024-01-01T00:00:00Z" {
		t.Fatalf("FormatTimestamp = %q", got)
	}
}

func fixtureCampaign() (domain.Campaign, []domain.Record, *domain.CampaignProgress) {
	c := domain.Campaign{
		ID:         "camp-1",
		Name:       "Spring Outreach",
		ContactIDs: []string{"s1", "s2"},
	}
	records := []domain.Record{
		{"id": "s1", "first_name": "Jane", "last_name": "Doe"},
		{"id": "s2", "first_name": "Bob", "last_name": `Smith, "Bob"`},
	}
	snap := &domain.CampaignProgress{
		CampaignID: "camp-1",
		Contacts: map[string]domain.ContactProgress{
			"s1": {
				ContactID:    "s1",
				Attempts:     1,
				Outcome:      domain.OutcomeAnswered,
				LastCalledAt: 1704067200000,
				Logs:         []domain.CallLogEntry{{Outcome: domain.OutcomeAnswered, At: 1704067200000}},
				SurveyAnswer: "yes",
				SurveyLogs:   []domain.SurveyLogEntry{{Answer: "yes", At: 1704067260000}},
			},
			"s2": {ContactID: "s2"},
		},
	}
	return c, records, snap
}

func TestSummaryCSV(t *testing.T) {
	c, records, snap := fixtureCampaign()
	out := report.SummaryCSV(c, records, snap, report.Options{})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines:\n%s", len(lines), out)
	}
	if lines[0] != "Full Name,Outcome,Response,Timestamp,Contact ID,Campaign ID,Campaign Name" {
		t.Fatalf("header = %q", lines[0])
	}
	// survey log entry is one minute after the call, so its timestamp wins
	if lines[1] != "Jane Doe,answered,yes,2024-01-01T00:01:00Z,s1,camp-1,Spring Outreach" {
		t.Fatalf("row 1 = %q", lines[1])
	}
	// embedded comma and quotes must be escaped per RFC 4180
	if !strings.Contains(lines[2], `"Bob Smith, ""Bob""",`) {
		t.Fatalf("row 2 escaping = %q", lines[2])
	}
	if !strings.HasSuffix(out, "\n") {
		t.Fatal("csv must end with a trailing newline")
	}
}

func TestRowsUncalledContact(t *testing.T) {
	c, records, snap := fixtureCampaign()
	rows := report.Rows(c, records, snap, report.Options{})
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	uncalled := rows[1]
	if uncalled.Outcome != "" || uncalled.Response != "" || uncalled.Timestamp != "" {
		t.Fatalf("uncalled contact should have empty progress cells: %+v", uncalled)
	}
	if uncalled.StudentID != "s2" || uncalled.CampaignID != "camp-1" || uncalled.CampaignName != "Spring Outreach" {
		t.Fatalf("identity fields: %+v", uncalled)
	}
}

func TestRowsPositionalIdentityJoin(t *testing.T) {
	c := domain.Campaign{ID: "camp-1", Name: "n", ContactIDs: []string{"0", "1"}}
	records := []domain.Record{
		{"name": "First"},
		{"name": "Second"},
	}
	snap := &domain.CampaignProgress{
		CampaignID: "camp-1",
		Contacts: map[string]domain.ContactProgress{
			"1": {ContactID: "1", Outcome: domain.OutcomeAnswered, LastCalledAt: 1000},
		},
	}
	rows := report.Rows(c, records, snap, report.Options{})
	if rows[0].Outcome != "" {
		t.Fatalf("row 0 should be uncalled: %+v", rows[0])
	}
	if rows[1].Outcome != domain.OutcomeAnswered {
		t.Fatalf("row 1 should join positionally: %+v", rows[1])
	}
}

func TestCallLogCSVQueueOrder(t *testing.T) {
	snap := &domain.CampaignProgress{
		CampaignID: "camp-1",
		Contacts: map[string]domain.ContactProgress{
			"b": {ContactID: "b", Logs: []domain.CallLogEntry{{Outcome: domain.OutcomeNoAnswer, At: 2000}}},
			"a": {ContactID: "a", Logs: []domain.CallLogEntry{
				{Outcome: domain.OutcomeNoAnswer, At: 1000},
				{Outcome: domain.OutcomeAnswered, At: 3000},
			}},
		},
	}
	out := report.CallLogCSV([]string{"a", "b", "c"}, snap)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	want := []string{
		"contact_id,outcome,timestamp",
		"a,no_answer,1970-01-01T00:00:01Z",
		"a,answered,1970-01-01T00:00:03Z",
		"b,no_answer,1970-01-01T00:00:02Z",
	}
	if len(lines) != len(want) {
		t.Fatalf("lines = %v", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestSurveyLogCSV(t *testing.T) {
	snap := &domain.CampaignProgress{
		CampaignID: "camp-1",
		Contacts: map[string]domain.ContactProgress{
			"a": {ContactID: "a", SurveyLogs: []domain.SurveyLogEntry{{Answer: "maybe, later", At: 1000}}},
		},
	}
	out := report.SurveyLogCSV([]string{"a"}, snap)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if lines[0] != "contact_id,answer,timestamp" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != `a,"maybe, later",1970-01-01T00:00:01Z` {
		t.Fatalf("row = %q", lines[1])
	}
}

func TestCSVWithNilSnapshot(t *testing.T) {
	out := report.CallLogCSV([]string{"a"}, nil)
	if out != "contact_id,outcome,timestamp\n" {
		t.Fatalf("nil snapshot call log = %q", out)
	}
	c := domain.Campaign{ID: "camp-1", Name: "n"}
	records := []domain.Record{{"id": "a", "name": "A"}}
	summary := report.SummaryCSV(c, records, nil, report.Options{})
	if !strings.Contains(summary, "A,,,,a,camp-1,n") {
		t.Fatalf("nil snapshot summary = %q", summary)
	}
}

func TestCustomNameFields(t *testing.T) {
	c := domain.Campaign{ID: "camp-1", Name: "n", ContactIDs: []string{"a"}}
	records := []domain.Record{{"id": "a", "guardian": "Pat Doe", "first_name": "Jane"}}
	rows := report.Rows(c, records, nil, report.Options{NameFields: []report.NamePair{{First: "guardian"}}})
	if rows[0].FullName != "Pat Doe" {
		t.Fatalf("custom candidates ignored: %+v", rows[0])
	}
}
