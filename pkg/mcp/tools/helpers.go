package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"

	"github.com/ekaya-inc/agenda-sync/pkg/models"
)

// localTimeLayouts are accepted for times given without a UTC offset. They
// are interpreted in the event's timezone.
var localTimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// trimString removes leading and trailing whitespace from a string.
func trimString(s string) string {
	return strings.TrimSpace(s)
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	return args
}

// getOptionalString extracts an optional string argument, trimmed.
func getOptionalString(req mcp.CallToolRequest, key string) string {
	val, _ := arguments(req)[key].(string)
	return trimString(val)
}

// getOptionalStringPtr distinguishes an absent argument from an empty one.
func getOptionalStringPtr(req mcp.CallToolRequest, key string) *string {
	val, ok := arguments(req)[key].(string)
	if !ok {
		return nil
	}
	val = trimString(val)
	return &val
}

// getOptionalBool extracts an optional boolean argument.
func getOptionalBool(req mcp.CallToolRequest, key string) (bool, bool) {
	val, ok := arguments(req)[key].(bool)
	return val, ok
}

// getOptionalInt extracts an optional integer argument. JSON numbers arrive
// as float64; fractional values are rejected.
func getOptionalInt(req mcp.CallToolRequest, key string) (int64, bool, error) {
	raw, present := arguments(req)[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	f, ok := raw.(float64)
	if !ok {
		return 0, false, fmt.Errorf("%s must be a number", key)
	}
	if f != math.Trunc(f) {
		return 0, false, fmt.Errorf("%s must be an integer, got %v", key, f)
	}
	return int64(f), true, nil
}

// getOptionalDecimal extracts a money or percentage argument given either as
// a JSON number or as a numeric string.
func getOptionalDecimal(req mcp.CallToolRequest, key string) (*decimal.Decimal, error) {
	raw, present := arguments(req)[key]
	if !present || raw == nil {
		return nil, nil
	}
	var d decimal.Decimal
	switch v := raw.(type) {
	case float64:
		d = decimal.NewFromFloat(v)
	case string:
		parsed, err := decimal.NewFromString(trimString(v))
		if err != nil {
			return nil, fmt.Errorf("%s must be numeric, got %q", key, v)
		}
		d = parsed
	default:
		return nil, fmt.Errorf("%s must be a number", key)
	}
	return &d, nil
}

// getOptionalTime parses an optional time argument. RFC 3339 values keep
// their offset; values without one are read in loc.
func getOptionalTime(req mcp.CallToolRequest, key string, loc *time.Location) (*time.Time, error) {
	s := getOptionalString(req, key)
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return &t, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range localTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q, expected RFC 3339 (2025-11-25T09:30:00-06:00)", s)
}

// decodeArgument re-encodes the argument key into dst. Used for arrays of
// objects, which arrive as []any of map[string]any.
func decodeArgument(req mcp.CallToolRequest, key string, dst any) error {
	raw, present := arguments(req)[key]
	if !present {
		return fmt.Errorf("%s is required", key)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("%s has an invalid shape: %w", key, err)
	}
	return nil
}

// loadLocation resolves an IANA name or fixed offset, falling back to def
// when name is empty.
func loadLocation(name, def string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = def
	}
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	return models.LoadTimezone(name)
}

// eventLocation is the zone used to read offset-less times of an event.
// An unknown zone reads them as UTC and is left for event validation to
// reject with its own reason.
func eventLocation(name, def string) *time.Location {
	loc, err := loadLocation(name, def)
	if err != nil {
		return time.UTC
	}
	return loc
}
