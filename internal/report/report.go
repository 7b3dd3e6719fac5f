// Package report joins filtered roster records with campaign progress into
// exportable tabular rows: audit-log CSVs, a per-contact summary CSV, and
// flat rows for an external row-oriented store.
package report

import (
	"encoding/csv"
	"strings"
	"time"

	"callsheet/internal/domain"
	"callsheet/internal/filter"
)

// NamePair is one candidate pair of record fields holding a contact's
// name. Last may be empty for single-field candidates.
type NamePair struct {
	First string `json:"first" yaml:"first"`
	Last  string `json:"last,omitempty" yaml:"last,omitempty"`
}

// DefaultNameFields are tried in order; the first candidate producing a
// non-empty value wins.
var DefaultNameFields = []NamePair{
	{First: "first_name", Last: "last_name"},
	{First: "firstName", Last: "lastName"},
	{First: "full_name"},
	{First: "name"},
}

// Options control record-to-row resolution. IDField overrides the roster
// field used for the identity join; it must match the field the campaign
// queue was derived with.
type Options struct {
	NameFields []NamePair
	IDField    string
}

func (o Options) nameFields() []NamePair {
	if len(o.NameFields) > 0 {
		return o.NameFields
	}
	return DefaultNameFields
}

// FullName resolves a display name from the record, or "" when no
// candidate matches. Rows never fail on an unresolved name.
func FullName(r domain.Record, candidates []NamePair) string {
	for _, c := range candidates {
		first := strings.TrimSpace(filter.FieldString(r, c.First))
		last := ""
		if c.Last != "" {
			last = strings.TrimSpace(filter.FieldString(r, c.Last))
		}
		name := strings.TrimSpace(first + " " + last)
		if name != "" {
			return name
		}
	}
	return ""
}

// CloudRow is the flat shape consumed by the external row store.
type CloudRow struct {
	FullName     string `json:"full_name"`
	Outcome      string `json:"outcome"`
	Response     string `json:"response"`
	Timestamp    string `json:"timestamp"`
	StudentID    string `json:"student_id"`
	CampaignID   string `json:"campaign_id"`
	CampaignName string `json:"campaign_name"`
}

// CallLogCSV renders one row per call log entry across the snapshot, in
// queue order, timestamps as ISO-8601.
func CallLogCSV(queueIDs []string, snap *domain.CampaignProgress) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write([]string{"contact_id", "outcome", "timestamp"})
	for _, id := range queueIDs {
		cp, ok := contactFor(snap, id)
		if !ok {
			continue
		}
		for _, entry := range cp.Logs {
			_ = w.Write([]string{id, entry.Outcome, FormatTimestamp(entry.At)})
		}
	}
	w.Flush()
	return sb.String()
}

// SurveyLogCSV renders one row per survey log entry, in queue order.
func SurveyLogCSV(queueIDs []string, snap *domain.CampaignProgress) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write([]string{"contact_id", "answer", "timestamp"})
	for _, id := range queueIDs {
		cp, ok := contactFor(snap, id)
		if !ok {
			continue
		}
		for _, entry := range cp.SurveyLogs {
			_ = w.Write([]string{id, entry.Answer, FormatTimestamp(entry.At)})
		}
	}
	w.Flush()
	return sb.String()
}

var summaryHeader = []string{"Full Name", "Outcome", "Response", "Timestamp", "Contact ID", "Campaign ID", "Campaign Name"}

// SummaryCSV renders one row per filtered contact, joining the record with
// its progress. Unresolved names and timestamps become empty cells rather
// than aborting the export.
func SummaryCSV(c domain.Campaign, filtered []domain.Record, snap *domain.CampaignProgress, opts Options) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write(summaryHeader)
	for _, row := range Rows(c, filtered, snap, opts) {
		_ = w.Write([]string{row.FullName, row.Outcome, row.Response, row.Timestamp, row.StudentID, row.CampaignID, row.CampaignName})
	}
	w.Flush()
	return sb.String()
}

// Rows produces the flat row set for both the summary CSV and the cloud
// boundary. Both use the same timestamp rule: the later of the last call
// time and the survey log entry carrying the current answer.
func Rows(c domain.Campaign, filtered []domain.Record, snap *domain.CampaignProgress, opts Options) []CloudRow {
	rows := make([]CloudRow, 0, len(filtered))
	for i, record := range filtered {
		id := filter.DeriveID(record, i, opts.IDField)
		cp, _ := contactFor(snap, id)
		rows = append(rows, CloudRow{
			FullName:     FullName(record, opts.nameFields()),
			Outcome:      cp.Outcome,
			Response:     cp.SurveyAnswer,
			Timestamp:    FormatTimestamp(ResolveTimestamp(cp)),
			StudentID:    id,
			CampaignID:   c.ID,
			CampaignName: c.Name,
		})
	}
	return rows
}

// ResolveTimestamp returns the most relevant moment for a contact: the
// later of the last call time and the timestamp of the survey log entry
// whose answer equals the current answer. Zero when neither exists.
func ResolveTimestamp(cp domain.ContactProgress) int64 {
	ts := cp.LastCalledAt
	if cp.SurveyAnswer != "" {
		for _, entry := range cp.SurveyLogs {
			if entry.Answer == cp.SurveyAnswer && entry.At > ts {
				ts = entry.At
			}
		}
	}
	return ts
}

// FormatTimestamp renders unix milliseconds as ISO-8601 UTC, or "" for
// the zero value.
func FormatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func contactFor(snap *domain.CampaignProgress, id string) (domain.ContactProgress, bool) {
	if snap == nil || snap.Contacts == nil {
		return domain.ContactProgress{}, false
	}
	cp, ok := snap.Contacts[id]
	return cp, ok
}
