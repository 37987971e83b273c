package contract

import (
	"strconv"
	"strings"
	"time"
)

// Validate applies the contract to normalized input. It checks every field
// independently and returns all violations at once; the Query is only
// meaningful when the violation list is empty. Unknown parameters are
// ignored.
func Validate(params map[string]string, d Defaults) (Query, []Violation) {
	q := Query{
		Page:     1,
		PageSize: d.PageSize,
		SortBy:   DefaultSortBy,
		SortDir:  DefaultSortDir,
	}
	var violations []Violation
	bad := func(field, constraint, received string) {
		violations = append(violations, Violation{Field: field, Constraint: constraint, Received: received})
	}

	if v, ok := params["country"]; !ok {
		bad("country", "required", "")
	} else if trimmed := strings.TrimSpace(v); len(trimmed) < 2 {
		bad("country", "min_length", v)
	} else {
		q.Country = trimmed
	}

	q.StartDate = parseDate(params, "start_date", bad)
	q.EndDate = parseDate(params, "end_date", bad)

	if v, ok := params["page"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		switch {
		case err != nil:
			bad("page", "integer", v)
		case n < 1:
			bad("page", "min", v)
		default:
			q.Page = n
		}
	}

	if v, ok := params["page_size"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		switch {
		case err != nil:
			bad("page_size", "integer", v)
		case n < 1 || n > d.MaxPageSize:
			// Out-of-range page size is a client error, never clamped.
			bad("page_size", "range", v)
		default:
			q.PageSize = n
		}
	}

	if v, ok := params["sort_by"]; ok {
		if !inSet(v, SortByValues) {
			bad("sort_by", "enum", v)
		} else {
			q.SortBy = v
		}
	}

	if v, ok := params["sort_dir"]; ok {
		if !inSet(v, SortDirValues) {
			bad("sort_dir", "enum", v)
		} else {
			q.SortDir = v
		}
	}

	if v, ok := params["q"]; ok {
		trimmed := strings.TrimSpace(v)
		if len(trimmed) > MaxSearchLen {
			bad("q", "max_length", v)
		} else {
			// Empty after trim counts as absent, not a violation.
			q.Q = trimmed
		}
	}

	q.EventType = optional(params, "event_type")
	q.SubEventType = optional(params, "sub_event_type")
	q.Actor1 = optional(params, "actor1")
	q.Actor2 = optional(params, "actor2")

	return q, violations
}

func parseDate(params map[string]string, field string, bad func(string, string, string)) time.Time {
	v, ok := params[field]
	if !ok {
		bad(field, "required", "")
		return time.Time{}
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(v))
	if err != nil {
		bad(field, "date", v)
		return time.Time{}
	}
	return t
}

func optional(params map[string]string, field string) string {
	return strings.TrimSpace(params[field])
}

func inSet(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
