// Package contract defines the query-string contract of the Trendfinder API:
// which parameters exist, their types, bounds and defaults, plus the
// normalizer and validator that turn untrusted input into a typed query.
package contract

import "time"

// DateLayout is the only accepted calendar-date form.
const DateLayout = "2006-01-02"

// MaxSearchLen bounds the free-text q parameter after trimming.
const MaxSearchLen = 200

const (
	DefaultSortBy  = "event_date"
	DefaultSortDir = "desc"
)

// SortByValues is the closed set for sort_by. Matching is case-sensitive.
var SortByValues = []string{"event_date", "fatalities", "country"}

// SortDirValues is the closed set for sort_dir. The enum check is
// case-sensitive; only the later SQL-direction interpretation is not.
var SortDirValues = []string{"asc", "desc"}

// Query is the validated, fully-typed snapshot of the contract fields.
// It is created once per request and never shared across requests.
// Optional string fields use "" for absent.
type Query struct {
	Country   string
	StartDate time.Time
	EndDate   time.Time

	Page     int
	PageSize int

	SortBy  string
	SortDir string

	Q            string
	EventType    string
	SubEventType string
	Actor1       string
	Actor2       string
}

// Violation reports a single field-level contract breach.
type Violation struct {
	Field      string `json:"field"`
	Constraint string `json:"constraint"`
	Received   string `json:"received"`
}

// Defaults carries the configurable paging bounds applied during validation.
type Defaults struct {
	PageSize    int
	MaxPageSize int
}
