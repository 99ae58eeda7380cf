package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/milestonesync/internal/records"
)

var errTimeFormat = errors.New("use RFC3339 or YYYY-MM-DDTHH:MM")

// wallClockLayouts are accepted in addition to RFC3339 and read in the
// configured zone.
var wallClockLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// StringArg returns a trimmed string argument, or "" when absent or not a string.
func StringArg(args map[string]interface{}, name string) string {
	if v, ok := args[name].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// RequiredString returns a non-empty string argument.
func RequiredString(args map[string]interface{}, name string) (string, error) {
	v := StringArg(args, name)
	if v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}

// FlowArg parses the required "flow" argument.
func FlowArg(args map[string]interface{}) (records.FlowType, error) {
	v, err := RequiredString(args, "flow")
	if err != nil {
		return "", err
	}
	return records.ParseFlow(v)
}

// TimeArg parses a required time argument with ParseTime.
func TimeArg(args map[string]interface{}, name string, loc *time.Location) (time.Time, error) {
	v, err := RequiredString(args, name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := ParseTime(v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	return t, nil
}

// ParseTime parses an operator-supplied time. RFC3339 carries its own offset;
// a bare wall-clock value is read in loc.
func ParseTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errTimeFormat
}

// MinutesArg reads an optional number of minutes. Zero means unset.
func MinutesArg(args map[string]interface{}, name string) (time.Duration, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return 0, nil
	}
	n, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s cannot be negative", name)
	}
	return time.Duration(n) * time.Minute, nil
}

// JSONResult renders v as an indented JSON text result.
func JSONResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}
