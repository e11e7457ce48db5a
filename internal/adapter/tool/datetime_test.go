package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDateToolName(t *testing.T) {
	tool := NewDateTool("Asia/Seoul", newTestLogger())
	if tool.Name() != "get_current_date" {
		t.Errorf("got %q, want %q", tool.Name(), "get_current_date")
	}
}

func TestDateToolReportsZoneLocalDate(t *testing.T) {
	tool := NewDateTool("Asia/Seoul", newTestLogger())
	// 23:30 UTC on Jan 1 is already Jan 2 in Seoul (UTC+9).
	tool.now = func() time.Time {
		return time.Date(2025, 1, 1, 23, 30, 0, 0, time.UTC)
	}

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("expected success: %s", result.Content)
	}

	var payload struct {
		CurrentDate string `json:"current_date"`
	}
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if payload.CurrentDate != "2025-01-02" {
		t.Errorf("got %q, want %q", payload.CurrentDate, "2025-01-02")
	}
}

func TestDateToolDegradesOnBadZone(t *testing.T) {
	tool := NewDateTool("Not/AZone", newTestLogger())

	result, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(result.Content, "timezone data is unavailable") {
		t.Errorf("expected degraded payload: %s", result.Content)
	}
}
