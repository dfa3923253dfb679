package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskmcp/taskmcp/internal/types"
)

// Timestamps are stored as RFC3339 strings in UTC with a fixed-width
// nanosecond fraction, so lexicographic ordering in SQL matches chronological
// ordering. RFC3339Nano would trim trailing zeros and break that property.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	// RFC3339Nano accepts both the fixed-width form we write and any
	// second- or milli-precision timestamps written by other tooling.
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func marshalInt64s(ids []int64) string {
	if len(ids) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func unmarshalInt64s(s string) ([]int64, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(s), &ids); err != nil {
		return nil, fmt.Errorf("failed to parse id list %q: %w", s, err)
	}
	return ids, nil
}

func marshalStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func unmarshalStrings(s string) ([]string, error) {
	if s == "" || s == "[]" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("failed to parse string list %q: %w", s, err)
	}
	return out, nil
}

func marshalWorkspaceMetadata(m *types.WorkspaceMetadata) any {
	if m == nil {
		return nil
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func unmarshalWorkspaceMetadata(s sql.NullString) (*types.WorkspaceMetadata, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m types.WorkspaceMetadata
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("failed to parse workspace_metadata %q: %w", s.String, err)
	}
	return &m, nil
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
