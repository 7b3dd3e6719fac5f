// Package filter evaluates conjunctive predicate lists against open roster
// records and derives stable contact identifiers for the filtered set.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"callsheet/internal/domain"
)

// Apply returns the ordered subset of records matching every condition.
// Order is preserved and matches are never reordered. An empty condition
// list matches every record.
func Apply(records []domain.Record, conditions []domain.FilterCondition) []domain.Record {
	if len(conditions) == 0 {
		out := make([]domain.Record, len(records))
		copy(out, records)
		return out
	}
	var out []domain.Record
	for _, r := range records {
		if Matches(r, conditions) {
			out = append(out, r)
		}
	}
	return out
}

// Matches reports whether the record satisfies all conditions.
func Matches(r domain.Record, conditions []domain.FilterCondition) bool {
	for _, c := range conditions {
		if !matchCondition(r, c) {
			return false
		}
	}
	return true
}

func matchCondition(r domain.Record, c domain.FilterCondition) bool {
	got := FieldString(r, c.Field)
	switch c.Op {
	case domain.OpEquals:
		return strings.EqualFold(got, c.Value)
	case domain.OpContains:
		return strings.Contains(strings.ToLower(got), strings.ToLower(c.Value))
	case domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		lhs, err1 := strconv.ParseFloat(strings.TrimSpace(got), 64)
		rhs, err2 := strconv.ParseFloat(strings.TrimSpace(c.Value), 64)
		if err1 != nil || err2 != nil {
			// unparseable side means non-match, never an error
			return false
		}
		switch c.Op {
		case domain.OpGt:
			return lhs > rhs
		case domain.OpGte:
			return lhs >= rhs
		case domain.OpLt:
			return lhs < rhs
		default:
			return lhs <= rhs
		}
	default:
		return false
	}
}

// FieldString reads a record field as a string. Missing fields and nil
// values coerce to the empty string.
func FieldString(r domain.Record, field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprint(v)
	}
}

// DefaultIDField is the roster field consulted for identity when no
// other field is configured.
const DefaultIDField = "id"

// DeriveID maps a record plus its position in the filtered ordered set to
// a stable identifier. A non-nil value in idField (DefaultIDField when
// empty) wins; otherwise the positional index is used. The positional
// fallback silently reassigns identities if roster content or ordering
// changes between runs, so rosters should carry a durable unique id on
// every record.
func DeriveID(r domain.Record, position int, idField string) string {
	if idField == "" {
		idField = DefaultIDField
	}
	if v, ok := r[idField]; ok && v != nil {
		return FieldString(r, idField)
	}
	return strconv.Itoa(position)
}

// DeriveQueue returns the ordered identifier list for an already-filtered
// record set. For a fixed (roster, filters, idField) triple the result is
// identical on every call.
func DeriveQueue(filtered []domain.Record, idField string) []string {
	ids := make([]string, len(filtered))
	for i, r := range filtered {
		ids[i] = DeriveID(r, i, idField)
	}
	return ids
}

// ParseCondition parses a compact "field<op>value" expression, e.g.
// "state=TX", "name~smith" or "grade>=3". Multi-character operators are
// tried first so ">=" is not read as ">" with value "=3".
func ParseCondition(expr string) (domain.FilterCondition, error) {
	for _, op := range []string{domain.OpGte, domain.OpLte, domain.OpEquals, domain.OpContains, domain.OpGt, domain.OpLt} {
		idx := strings.Index(expr, op)
		if idx <= 0 {
			continue
		}
		return domain.FilterCondition{
			Field: strings.TrimSpace(expr[:idx]),
			Op:    op,
			Value: strings.TrimSpace(expr[idx+len(op):]),
		}, nil
	}
	return domain.FilterCondition{}, fmt.Errorf("invalid filter expression %q (want field<op>value with op one of =, ~, >, >=, <, <=)", expr)
}
