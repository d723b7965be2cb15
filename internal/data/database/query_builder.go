// Package database builds parameterized list queries with sanitized identifiers.
package database

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ConditionType is a comparison operator.
type ConditionType string

const (
	Equal              ConditionType = "="
	NotEqual           ConditionType = "!="
	LessThan           ConditionType = "<"
	GreaterThanOrEqual ConditionType = ">="
	Any                ConditionType = "ANY"

	noLimit = -1
)

// Condition is one AND-ed predicate.
type Condition struct {
	Field string
	Type  ConditionType
	Value any
}

// WhereCond builds a condition. For Any, value must be a slice (bound as a Postgres array).
func WhereCond(field string, condType ConditionType, value any) Condition {
	return Condition{Field: field, Type: condType, Value: value}
}

// ListQueryOptions describes a SELECT over one table.
type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	OrderBy    []string
	Limit      int
	Offset     int
}

// ListQueryOption mutates ListQueryOptions.
type ListQueryOption func(*ListQueryOptions)

// NewListQueryOptions creates options for table.
func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	o := &ListQueryOptions{Table: table, Limit: noLimit, Offset: noLimit}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithColumns sets the selected columns.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) { o.Columns = cols }
}

// WithCondition adds a predicate.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) { o.Conditions = append(o.Conditions, cond) }
}

// WithOrderBy appends an ordering term; direction must be ASC or DESC.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		term := pgx.Identifier(strings.Split(column, ".")).Sanitize()
		if d := strings.ToUpper(direction); d == "ASC" || d == "DESC" {
			term += " " + d
		}
		o.OrderBy = append(o.OrderBy, term)
	}
}

// WithLimit sets the limit. Accepts 0.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the offset. Accepts 0.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly selects COUNT(*) and ignores ordering and pagination.
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) { o.CountOnly = true }
}

// BuildListQuery renders the query and its positional arguments.
func BuildListQuery(o *ListQueryOptions) (string, []any) {
	if o == nil {
		return "", nil
	}

	var b strings.Builder
	switch {
	case o.CountOnly:
		b.WriteString("SELECT COUNT(*)")
	case len(o.Columns) == 0:
		b.WriteString("SELECT *")
	default:
		cols := make([]string, len(o.Columns))
		for i, c := range o.Columns {
			cols[i] = pgx.Identifier(strings.Split(c, ".")).Sanitize()
		}
		b.WriteString("SELECT " + strings.Join(cols, ", "))
	}
	b.WriteString(" FROM " + pgx.Identifier{o.Table}.Sanitize())

	var args []any
	preds := make([]string, 0, len(o.Conditions))
	for _, c := range o.Conditions {
		field := pgx.Identifier{c.Field}.Sanitize()
		args = append(args, c.Value)
		if c.Type == Any {
			preds = append(preds, fmt.Sprintf("%s = ANY($%d)", field, len(args)))
			continue
		}
		preds = append(preds, fmt.Sprintf("%s %s $%d", field, c.Type, len(args)))
	}
	if len(preds) > 0 {
		b.WriteString(" WHERE " + strings.Join(preds, " AND "))
	}
	if o.CountOnly {
		return b.String(), args
	}

	if len(o.OrderBy) > 0 {
		b.WriteString(" ORDER BY " + strings.Join(o.OrderBy, ", "))
	}
	if o.Limit != noLimit {
		args = append(args, o.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	if o.Offset != noLimit {
		args = append(args, o.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	return b.String(), args
}
