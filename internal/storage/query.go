package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is one equality predicate on a dotted document path such as
// "stageInfo.action".
type Condition struct {
	Field string
	Value string
}

// Query is a backend neutral conjunction of equality conditions. The
// partition key, when set, scopes the query to one partition on backends
// that have them.
type Query struct {
	PartitionKey string
	Conditions   []Condition
}

func NewQuery(partitionKey string) Query {
	return Query{PartitionKey: partitionKey}
}

func (q Query) Where(field, value string) Query {
	q.Conditions = append(append([]Condition(nil), q.Conditions...), Condition{Field: field, Value: value})
	return q
}

// CollectionHandle carries the dialect tokens of one backend so a single
// logical query renders correctly against it. Handles are built once by an
// adapter and never modified.
type CollectionHandle struct {
	// Name is the logical container name.
	Name string
	// NameForQuery is the container name as written in a FROM clause.
	NameForQuery string
	// Variable is the row alias, empty when the dialect has none.
	Variable string
	// VariablePrefix is written before every field reference.
	VariablePrefix string
	Projection     string
	OpenBracket    string
	CloseBracket   string
	// Element renders one path segment.
	Element func(string) string
	// Field, when set, renders a whole path and replaces the default of
	// joining Element(segment) with dots after VariablePrefix.
	Field       func(segments []string) string
	Placeholder func(n int) string
}

// FieldRef renders a dotted document path in the handle's dialect.
func (h CollectionHandle) FieldRef(path string) string {
	segments := strings.Split(path, ".")
	if h.Field != nil {
		return h.Field(segments)
	}
	rendered := make([]string, len(segments))
	for i, s := range segments {
		if h.Element != nil {
			s = h.Element(s)
		}
		rendered[i] = s
	}
	return h.VariablePrefix + strings.Join(rendered, ".")
}

// Render produces the query text and its positional parameters:
//
//	SELECT <projection> FROM <name> <alias> WHERE (<field> = <param> AND ...)
func (h CollectionHandle) Render(q Query) (string, []any) {
	projection := h.Projection
	if projection == "" {
		projection = "*"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", projection, h.NameForQuery)
	if h.Variable != "" {
		b.WriteString(" " + h.Variable)
	}
	if len(q.Conditions) == 0 {
		return b.String(), nil
	}

	params := make([]any, 0, len(q.Conditions))
	b.WriteString(" WHERE " + h.OpenBracket)
	for i, c := range q.Conditions {
		if i > 0 {
			b.WriteString(" AND ")
		}
		placeholder := "?"
		if h.Placeholder != nil {
			placeholder = h.Placeholder(i + 1)
		}
		fmt.Fprintf(&b, "%s = %s", h.FieldRef(c.Field), placeholder)
		params = append(params, c.Value)
	}
	b.WriteString(h.CloseBracket)
	return b.String(), params
}

// CosmosHandle renders Cosmos DB SQL: SELECT * FROM Reports r WHERE (r.uploadId = @p1).
func CosmosHandle(container string) CollectionHandle {
	return CollectionHandle{
		Name:           container,
		NameForQuery:   container,
		Variable:       "r",
		VariablePrefix: "r.",
		OpenBracket:    "(",
		CloseBracket:   ")",
		Placeholder:    func(n int) string { return "@p" + strconv.Itoa(n) },
	}
}

// DynamoHandle renders DynamoDB PartiQL with quoted identifiers.
func DynamoHandle(table string) CollectionHandle {
	return CollectionHandle{
		Name:         table,
		NameForQuery: strconv.Quote(table),
		OpenBracket:  "(",
		CloseBracket: ")",
		Element:      strconv.Quote,
		Placeholder:  func(int) string { return "?" },
	}
}

// PostgresHandle renders JSONB path access on a table whose doc column holds
// the document: r.doc->'stageInfo'->>'service'.
func PostgresHandle(table string) CollectionHandle {
	return CollectionHandle{
		Name:           table,
		NameForQuery:   table,
		Variable:       "r",
		VariablePrefix: "r.doc",
		Projection:     "r.doc",
		OpenBracket:    "(",
		CloseBracket:   ")",
		Element:        sqlLiteral,
		Placeholder:    func(n int) string { return "$" + strconv.Itoa(n) },
		Field: func(segments []string) string {
			var b strings.Builder
			b.WriteString("r.doc")
			for i, s := range segments {
				if i == len(segments)-1 {
					b.WriteString("->>")
				} else {
					b.WriteString("->")
				}
				b.WriteString(sqlLiteral(s))
			}
			return b.String()
		},
	}
}

// CouchbaseHandle renders SQL++ with backticked identifiers and unwraps rows
// with RAW: SELECT RAW r FROM `Reports` r WHERE (r.`uploadId` = $1).
func CouchbaseHandle(collection string) CollectionHandle {
	return CollectionHandle{
		Name:           collection,
		NameForQuery:   backtick(collection),
		Variable:       "r",
		VariablePrefix: "r.",
		Projection:     "RAW r",
		OpenBracket:    "(",
		CloseBracket:   ")",
		Element:        backtick,
		Placeholder:    func(n int) string { return "$" + strconv.Itoa(n) },
	}
}

func backtick(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func sqlLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// DocumentHandle describes schemaless backends that evaluate a Query
// structurally instead of from rendered text.
func DocumentHandle(name string) CollectionHandle {
	return CollectionHandle{
		Name:         name,
		NameForQuery: name,
		OpenBracket:  "(",
		CloseBracket: ")",
	}
}
