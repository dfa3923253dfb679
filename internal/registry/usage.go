package registry

import (
	"context"
	"fmt"
	"time"
)

// ToolStat is the per-tool aggregate inside UsageStats.
type ToolStat struct {
	ToolName    string  `json:"tool_name"`
	Calls       int     `json:"calls"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

// DayStat is one day of the usage timeline.
type DayStat struct {
	Day   string `json:"day"`
	Calls int    `json:"calls"`
}

// UsageStats aggregates tool_usage over a trailing window.
type UsageStats struct {
	Days       int        `json:"days"`
	TotalCalls int        `json:"total_calls"`
	Tools      []ToolStat `json:"tools"`
	Timeline   []DayStat  `json:"timeline"`
}

// RecordUsage appends one telemetry row. Callers treat failures as
// non-fatal: a dropped usage row must never fail the operation it measures.
func (r *Registry) RecordUsage(ctx context.Context, toolName, workspaceID string, success bool, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tool_usage (tool_name, workspace_id, timestamp, success)
		VALUES (?, ?, ?, ?)
	`, toolName, workspaceID, now.UTC().Format(timeFormat), boolToInt(success))
	if err != nil {
		return fmt.Errorf("failed to record tool usage: %w", err)
	}
	return nil
}

// GetUsageStats aggregates usage over the last days days, optionally
// restricted to one tool. All aggregation happens in SQL.
func (r *Registry) GetUsageStats(ctx context.Context, days int, toolName string) (*UsageStats, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(timeFormat)

	where := "WHERE timestamp >= ?"
	args := []any{cutoff}
	if toolName != "" {
		where += " AND tool_name = ?"
		args = append(args, toolName)
	}

	stats := &UsageStats{Days: days}
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tool_usage "+where, args...).Scan(&stats.TotalCalls)
	if err != nil {
		return nil, fmt.Errorf("failed to count tool usage: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT tool_name, COUNT(*), SUM(success)
		FROM tool_usage `+where+`
		GROUP BY tool_name ORDER BY COUNT(*) DESC, tool_name ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tool usage: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var ts ToolStat
		if err := rows.Scan(&ts.ToolName, &ts.Calls, &ts.Successes); err != nil {
			return nil, fmt.Errorf("failed to scan tool stat: %w", err)
		}
		if ts.Calls > 0 {
			ts.SuccessRate = float64(ts.Successes) / float64(ts.Calls)
		}
		stats.Tools = append(stats.Tools, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Timestamps are fixed-width ISO text, so the date is a prefix slice.
	dayRows, err := r.db.QueryContext(ctx, `
		SELECT substr(timestamp, 1, 10) AS day, COUNT(*)
		FROM tool_usage `+where+`
		GROUP BY day ORDER BY day ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate usage timeline: %w", err)
	}
	defer func() { _ = dayRows.Close() }()
	for dayRows.Next() {
		var ds DayStat
		if err := dayRows.Scan(&ds.Day, &ds.Calls); err != nil {
			return nil, fmt.Errorf("failed to scan day stat: %w", err)
		}
		stats.Timeline = append(stats.Timeline, ds)
	}
	return stats, dayRows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
