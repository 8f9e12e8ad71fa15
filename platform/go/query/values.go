package query

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/appraisal-saas/platform/go/catalog"
	"github.com/zenGate-Global/appraisal-saas/platform/go/problem"
)

const nullLiteral = "null"

var temporalLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// temporalOps maps the accepted range prefixes onto comparison operators.
var temporalOps = map[string]string{
	"gte": ">=",
	"lte": "<=",
	"gt":  ">",
	"lt":  "<",
}

// isNull reports whether raw selects rows where the column is NULL. A literal 0 on an integer
// column is treated the same way.
func isNull(col catalog.Column, raw string) bool {
	if strings.EqualFold(raw, nullLiteral) {
		return true
	}
	return col.Type == catalog.Int && raw == "0"
}

// parseValue converts raw into the Go value bound for col.
func parseValue(col catalog.Column, raw string) (any, error) {
	switch col.Type {
	case catalog.Int:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, problem.BadRequest("Invalid value for %s: %q is not an integer", col.Name, raw)
		}
		return n, nil
	case catalog.Float:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, problem.BadRequest("Invalid value for %s: %q is not a number", col.Name, raw)
		}
		return f, nil
	case catalog.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, problem.BadRequest("Invalid value for %s: %q is not a boolean", col.Name, raw)
		}
		return b, nil
	case catalog.Enum:
		if !slices.Contains(col.Values, raw) {
			return nil, problem.BadRequest("Invalid value for %s: %q is not one of %s", col.Name, raw, strings.Join(col.Values, ", "))
		}
		return raw, nil
	case catalog.UUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, problem.BadRequest("Invalid value for %s: %q is not a UUID", col.Name, raw)
		}
		return id.String(), nil
	case catalog.Timestamp, catalog.Date:
		return parseTemporal(col, raw)
	default:
		return raw, nil
	}
}

func parseTemporal(col catalog.Column, raw string) (time.Time, error) {
	candidates := []string{raw}
	// a literal "+" in an offset arrives as a space once the query string is decoded
	if i := strings.LastIndexByte(raw, ' '); i > len(time.DateOnly) {
		candidates = append(candidates, raw[:i]+"+"+raw[i+1:])
	}
	for _, candidate := range candidates {
		for _, layout := range temporalLayouts {
			if t, err := time.Parse(layout, candidate); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, problem.BadRequest("Invalid datetime format for %s: %q", col.Name, raw)
}

// splitTemporal separates an optional range prefix from the timestamp.
func splitTemporal(raw string) (op, value string) {
	if prefix, rest, ok := strings.Cut(raw, ":"); ok {
		if sqlOp, known := temporalOps[strings.ToLower(prefix)]; known {
			return sqlOp, rest
		}
	}
	return "=", raw
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern matching raw anywhere in the value.
func containsPattern(raw string) string {
	return "%" + likeEscaper.Replace(raw) + "%"
}
