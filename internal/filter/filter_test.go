package filter_test

import (
	"reflect"
	"testing"

	"callsheet/internal/domain"
	"callsheet/internal/filter"
)

func rec(kv ...any) domain.Record {
	r := domain.Record{}
	for i := 0; i+1 < len(kv); i += 2 {
		r[kv[i].(string)] = kv[i+1]
	}
	return r
}

func TestMatchesOperators(t *testing.T) {
	cases := []struct {
		name string
		rec  domain.Record
		cond domain.FilterCondition
		want bool
	}{
		{"equals case-insensitive", rec("state", "TX"), domain.FilterCondition{Field: "state", Op: "=", Value: "tx"}, true},
		{"equals mismatch", rec("state", "TX"), domain.FilterCondition{Field: "state", Op: "=", Value: "CA"}, false},
		{"contains case-insensitive", rec("name", "Alice Smith"), domain.FilterCondition{Field: "name", Op: "~", Value: "SMITH"}, true},
		{"contains mismatch", rec("name", "Alice"), domain.FilterCondition{Field: "name", Op: "~", Value: "bob"}, false},
		{"gt numeric", rec("grade", "4"), domain.FilterCondition{Field: "grade", Op: ">", Value: "3"}, true},
		{"gt equal", rec("grade", "3"), domain.FilterCondition{Field: "grade", Op: ">", Value: "3"}, false},
		{"gte equal", rec("grade", "3"), domain.FilterCondition{Field: "grade", Op: ">=", Value: "3"}, true},
		{"lt", rec("grade", "2"), domain.FilterCondition{Field: "grade", Op: "<", Value: "3"}, true},
		{"lte", rec("grade", "3.5"), domain.FilterCondition{Field: "grade", Op: "<=", Value: "3.5"}, true},
		{"numeric from float field", rec("grade", 4.0), domain.FilterCondition{Field: "grade", Op: ">", Value: "3"}, true},
		{"unparseable record value", rec("grade", "abc"), domain.FilterCondition{Field: "grade", Op: ">", Value: "3"}, false},
		{"unparseable filter value", rec("grade", "4"), domain.FilterCondition{Field: "grade", Op: ">", Value: "abc"}, false},
		{"missing field equals empty", rec(), domain.FilterCondition{Field: "state", Op: "=", Value: ""}, true},
		{"missing field numeric", rec(), domain.FilterCondition{Field: "grade", Op: ">", Value: "0"}, false},
		{"nil value coerces to empty", rec("state", nil), domain.FilterCondition{Field: "state", Op: "=", Value: ""}, true},
		{"unknown operator", rec("state", "TX"), domain.FilterCondition{Field: "state", Op: "!", Value: "TX"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := filter.Matches(tc.rec, []domain.FilterCondition{tc.cond})
			if got != tc.want {
				t.Fatalf("Matches(%v, %v) = %v, want %v", tc.rec, tc.cond, got, tc.want)
			}
		})
	}
}

func TestApplyConjunctionAndOrder(t *testing.T) {
	records := []domain.Record{
		rec("id", "a", "state", "TX", "grade", "4"),
		rec("id", "b", "state", "TX", "grade", "2"),
		rec("id", "c", "state", "CA", "grade", "5"),
		rec("id", "d", "state", "tx", "grade", "3"),
	}
	conditions := []domain.FilterCondition{
		{Field: "state", Op: "=", Value: "TX"},
		{Field: "grade", Op: ">=", Value: "3"},
	}
	got := filter.Apply(records, conditions)
	want := []string{"a", "d"}
	var ids []string
	for _, r := range got {
		ids = append(ids, r["id"].(string))
	}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("Apply = %v, want %v", ids, want)
	}
}

func TestApplyEmptyConditions(t *testing.T) {
	records := []domain.Record{rec("id", "a"), rec("id", "b")}
	got := filter.Apply(records, nil)
	if len(got) != 2 {
		t.Fatalf("empty conditions should match all, got %d", len(got))
	}
	// returned slice must be a copy
	got[0] = nil
	if records[0] == nil {
		t.Fatal("Apply must not alias the input slice")
	}
}

func TestDeriveID(t *testing.T) {
	if id := filter.DeriveID(rec("id", "s-42"), 7, ""); id != "s-42" {
		t.Fatalf("id field should win, got %q", id)
	}
	if id := filter.DeriveID(rec("name", "Alice"), 7, ""); id != "7" {
		t.Fatalf("positional fallback, got %q", id)
	}
	if id := filter.DeriveID(rec("id", 12.0), 0, ""); id != "12" {
		t.Fatalf("numeric id should format cleanly, got %q", id)
	}
	if id := filter.DeriveID(rec("id", nil), 3, ""); id != "3" {
		t.Fatalf("nil id falls back to position, got %q", id)
	}
}

func TestDeriveIDConfiguredField(t *testing.T) {
	r := domain.Record{"sid": "n-9", "id": "wrong"}
	if id := filter.DeriveID(r, 0, "sid"); id != "n-9" {
		t.Fatalf("configured field should win, got %q", id)
	}
	if id := filter.DeriveID(rec("id", "s-1"), 4, "sid"); id != "4" {
		t.Fatalf("missing configured field falls back to position, got %q", id)
	}
}

func TestDeriveQueueStable(t *testing.T) {
	filtered := []domain.Record{
		rec("id", "x"),
		rec("name", "no id"),
		rec("id", "y"),
	}
	first := filter.DeriveQueue(filtered, "")
	second := filter.DeriveQueue(filtered, "")
	want := []string{"x", "1", "y"}
	if !reflect.DeepEqual(first, want) {
		t.Fatalf("DeriveQueue = %v, want %v", first, want)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("DeriveQueue not deterministic: %v vs %v", first, second)
	}
	custom := filter.DeriveQueue([]domain.Record{
		rec("sid", "a"),
		rec("id", "ignored"),
	}, "sid")
	if !reflect.DeepEqual(custom, []string{"a", "1"}) {
		t.Fatalf("DeriveQueue with configured field = %v", custom)
	}
}

func TestParseCondition(t *testing.T) {
	cases := []struct {
		expr string
		want domain.FilterCondition
	}{
		{"state=TX", domain.FilterCondition{Field: "state", Op: "=", Value: "TX"}},
		{"name~smith", domain.FilterCondition{Field: "name", Op: "~", Value: "smith"}},
		{"grade>=3", domain.FilterCondition{Field: "grade", Op: ">=", Value: "3"}},
		{"grade<=3.5", domain.FilterCondition{Field: "grade", Op: "<=", Value: "3.5"}},
		{"grade>3", domain.FilterCondition{Field: "grade", Op: ">", Value: "3"}},
		{" grade < 10 ", domain.FilterCondition{Field: "grade", Op: "<", Value: "10"}},
	}
	for _, tc := range cases {
		got, err := filter.ParseCondition(tc.expr)
		if err != nil {
			t.Fatalf("ParseCondition(%q): %v", tc.expr, err)
		}
		if got != tc.want {
			t.Fatalf("ParseCondition(%q) = %+v, want %+v", tc.expr, got, tc.want)
		}
	}
	if _, err := filter.ParseCondition("nonsense"); err == nil {
		t.Fatal("expected error for expression without operator")
	}
	if _, err := filter.ParseCondition("=value"); err == nil {
		t.Fatal("expected error for empty field")
	}
}
