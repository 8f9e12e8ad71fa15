// Package query turns a parsed list request into schema-qualified SQL over a catalog entity and
// executes it as one page plus a total count.
package query

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/zenGate-Global/appraisal-saas/platform/go/problem"
)

const (
	DefaultOffset = 0
	DefaultLimit  = 100
)

const (
	keyOffset = "offset"
	keyLimit  = "limit"
	keyQ      = "q"
	keySort   = "sort"
	keyFields = "fields"
	keyAction = "action"
)

var (
	reservedKeys = map[string]struct{}{
		keyOffset: {}, keyLimit: {}, keyQ: {}, keySort: {}, keyFields: {}, keyAction: {},
	}
	searchPairPattern = regexp.MustCompile(`^\w+:\w+$`)
)

// SortKey orders by one column.
type SortKey struct {
	Column string
	Desc   bool
}

// SearchTerm is one q entry. Field is set for field:value pairs and empty for bare terms.
type SearchTerm struct {
	Field string
	Value string
}

// IsPair reports whether the term is an exact field:value pair.
func (t SearchTerm) IsPair() bool {
	return t.Field != ""
}

// RelationFilter is a relation.column=value filter applied to a joined relation.
type RelationFilter struct {
	Relation string
	Column   string
	Values   []string
}

// Request is the validated form of a list query string.
type Request struct {
	Offset int
	Limit  int
	Sort   []SortKey
	Search []SearchTerm
	Fields []string

	// Action is accepted for client compatibility and never affects the query.
	Action  string
	Filters map[string][]string

	// Relations carries dotted relation.column filters.
	Relations []RelationFilter
}

// NewRequest returns a Request with default paging and no filters.
func NewRequest() Request {
	return Request{Offset: DefaultOffset, Limit: DefaultLimit, Filters: map[string][]string{}}
}

// FilterKeys returns the column filter keys in a stable order.
func (r Request) FilterKeys() []string {
	keys := make([]string, 0, len(r.Filters))
	for k := range r.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Parse builds a Request from a query string. It validates syntax only; column names are
// checked against the entity when the request is executed.
func Parse(values url.Values) (Request, error) {
	req := NewRequest()

	var err error
	if req.Offset, err = parseNonNegative(values, keyOffset, DefaultOffset); err != nil {
		return Request{}, err
	}
	if req.Limit, err = parsePositive(values, keyLimit, DefaultLimit); err != nil {
		return Request{}, err
	}

	for _, raw := range splitList(values[keySort]) {
		key := SortKey{Column: raw}
		switch {
		case strings.HasPrefix(raw, "-"):
			key = SortKey{Column: raw[1:], Desc: true}
		case strings.HasPrefix(raw, "+"):
			key.Column = raw[1:]
		}
		if key.Column == "" {
			return Request{}, problem.BadRequest("Invalid sort column: %s", raw)
		}
		req.Sort = append(req.Sort, key)
	}

	for _, raw := range values[keyQ] {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		req.Search = append(req.Search, ParseSearchTerm(raw))
	}

	req.Fields = splitList(values[keyFields])
	req.Action = strings.TrimSpace(values.Get(keyAction))

	relations := map[[2]string][]string{}
	for key, vals := range values {
		if _, reserved := reservedKeys[key]; reserved {
			continue
		}
		vals = nonEmpty(vals)
		if len(vals) == 0 {
			continue
		}
		if rel, col, dotted := strings.Cut(key, "."); dotted {
			if rel == "" || col == "" {
				return Request{}, problem.BadRequest("Invalid filter column: %s", key)
			}
			k := [2]string{rel, col}
			relations[k] = append(relations[k], vals...)
			continue
		}
		req.Filters[key] = append(req.Filters[key], vals...)
	}

	for k, vals := range relations {
		req.Relations = append(req.Relations, RelationFilter{Relation: k[0], Column: k[1], Values: vals})
	}
	sort.Slice(req.Relations, func(i, j int) bool {
		a, b := req.Relations[i], req.Relations[j]
		if a.Relation != b.Relation {
			return a.Relation < b.Relation
		}
		return a.Column < b.Column
	})

	return req, nil
}

// ParseSearchTerm classifies a q entry: word:word is an exact pair, anything else a bare term.
func ParseSearchTerm(raw string) SearchTerm {
	if searchPairPattern.MatchString(raw) {
		field, value, _ := strings.Cut(raw, ":")
		return SearchTerm{Field: field, Value: value}
	}
	return SearchTerm{Value: raw}
}

func parseNonNegative(values url.Values, key string, def int) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, problem.BadRequest("%s must be an integer", key)
	}
	if n < 0 {
		return 0, problem.BadRequest("%s must not be negative", key)
	}
	return n, nil
}

func parsePositive(values url.Values, key string, def int) (int, error) {
	n, err := parseNonNegative(values, key, def)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, problem.BadRequest("%s must be positive", key)
	}
	return n, nil
}

// splitList flattens repeated and comma separated values.
func splitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func nonEmpty(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
