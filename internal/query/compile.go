// Package query compiles a validated query into a parameterized SQL
// statement pair. Compilation is pure: no I/O, same input same output.
package query

import (
	"strings"

	"trendfinder/internal/contract"
)

// Compiled is the executable form of a validated query. Args holds the
// filter parameters shared by both statements; the page statement takes
// limit and offset as two extra trailing parameters.
type Compiled struct {
	WhereSQL  string
	OrderSQL  string
	Args      []any
	Limit     int
	Offset    int
	CountSQL  string
	SelectSQL string
}

// filterColumns fixes the order of the equality filters. Order matters for
// parameter positions, not semantics.
var filterColumns = []string{"country", "event_type", "sub_event_type", "actor1", "actor2"}

// sortColumns maps sort_by onto physical columns. sort_by is already
// enum-validated, but values never reach statement text unmapped.
var sortColumns = map[string]string{
	"event_date": "event_date",
	"fatalities": "fatalities",
	"country":    "country",
}

// projected is the fixed column set of the page statement, in order.
// The date column is aliased in per configuration.
var projected = []string{
	"event_id",
	"country",
	"admin1",
	"event_type",
	"sub_event_type",
	"actor1",
	"actor2",
	"fatalities",
	"latitude",
	"longitude",
}

// Compile builds the filter, order and pagination clauses plus the two
// statements. All filter values travel as bound parameters.
func Compile(q contract.Query, table, dateField string) Compiled {
	var (
		where []string
		args  []any
	)

	// end_date is an exclusive upper bound.
	where = append(where, dateField+" >= ?", dateField+" < ?")
	args = append(args, q.StartDate.Format(contract.DateLayout), q.EndDate.Format(contract.DateLayout))

	for _, col := range filterColumns {
		if v := filterValue(q, col); v != "" {
			where = append(where, col+" = ?")
			args = append(args, v)
		}
	}

	if q.Q != "" {
		where = append(where, "(title LIKE ? OR notes LIKE ?)")
		like := "%" + q.Q + "%"
		args = append(args, like, like)
	}

	whereSQL := " WHERE " + strings.Join(where, " AND ")

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = dateField
	}
	direction := "ASC"
	if strings.ToLower(q.SortDir) == "desc" {
		direction = "DESC"
	}
	orderSQL := " ORDER BY " + column + " " + direction

	columns := make([]string, 0, len(projected)+1)
	columns = append(columns, projected[0], dateField+" AS event_date")
	columns = append(columns, projected[1:]...)

	limit := q.PageSize
	offset := (q.Page - 1) * q.PageSize

	return Compiled{
		WhereSQL:  whereSQL,
		OrderSQL:  orderSQL,
		Args:      args,
		Limit:     limit,
		Offset:    offset,
		CountSQL:  "SELECT COUNT(1) AS total FROM " + table + whereSQL,
		SelectSQL: "SELECT " + strings.Join(columns, ", ") + " FROM " + table + whereSQL + orderSQL + " LIMIT ? OFFSET ?",
	}
}

// SelectArgs returns the filter parameters with limit and offset appended,
// matching the page statement's placeholder order.
func (c Compiled) SelectArgs() []any {
	out := make([]any, 0, len(c.Args)+2)
	out = append(out, c.Args...)
	return append(out, c.Limit, c.Offset)
}

func filterValue(q contract.Query, col string) string {
	switch col {
	case "country":
		return q.Country
	case "event_type":
		return q.EventType
	case "sub_event_type":
		return q.SubEventType
	case "actor1":
		return q.Actor1
	case "actor2":
		return q.Actor2
	}
	return ""
}
