package telegram

import (
	"database/sql"
	"testing"
	"time"

	"forecast_bot/internal/app"
	"forecast_bot/internal/domain/run"
	"forecast_bot/internal/domain/schedule"

	"github.com/stretchr/testify/assert"
)

func TestParseRunNowArgs(t *testing.T) {
	tests := []struct {
		args      []string
		id        int64
		broadcast bool
		problem   bool
	}{
		{args: []string{"3"}, id: 3},
		{args: []string{"3", "test"}, id: 3},
		{args: []string{"3", "broadcast"}, id: 3, broadcast: true},
		{args: []string{"3", "ALL"}, id: 3, broadcast: true},
		{args: nil, problem: true},
		{args: []string{"x"}, problem: true},
		{args: []string{"-1"}, problem: true},
		{args: []string{"3", "loud"}, problem: true},
	}
	for _, tt := range tests {
		id, broadcast, problem := parseRunNowArgs(tt.args)
		if tt.problem {
			assert.NotEmpty(t, problem, "args %v", tt.args)
			continue
		}
		assert.Empty(t, problem, "args %v", tt.args)
		assert.Equal(t, tt.id, id)
		assert.Equal(t, tt.broadcast, broadcast)
	}
}

func TestFormatScheduleList(t *testing.T) {
	statuses := []app.ScheduleStatus{
		{
			Schedule: &schedule.Schedule{
				ID: 1, Enabled: true, TimeOfDay: schedule.TimeOfDay{Hour: 8},
				Countries: []string{"uk", "fr"}, Topics: []string{"economy"},
				Language: "en", TimeHorizon: "24h", Depth: "standard",
				Title: sql.NullString{String: "Morning <Briefing>", Valid: true},
			},
			Today: &run.Record{Status: run.StatusSuccess, RecipientCount: 10, FailureCount: 1},
		},
		{
			Schedule: &schedule.Schedule{ID: 2, TimeOfDay: schedule.TimeOfDay{Hour: 18, Minute: 30}},
			Today: &run.Record{
				Status:       run.StatusFailed,
				ErrorSummary: sql.NullString{String: "fetch: timeout", Valid: true},
				StartedAt:    time.Now(),
			},
		},
	}

	text := formatScheduleList(statuses)

	assert.Contains(t, text, "🟢 <b>ID 1</b> | 08:00 UTC | Morning &lt;Briefing&gt;")
	assert.Contains(t, text, "Countries: uk, fr")
	assert.Contains(t, text, "Today: success (10 recipients, 1 failed)")
	assert.Contains(t, text, "🔴 <b>ID 2</b> | 18:30 UTC | Schedule 2")
	assert.Contains(t, text, "Today: failed: fetch: timeout")
	assert.Equal(t, "No schedules defined.", formatScheduleList(nil))
}

func TestFormatRunReport(t *testing.T) {
	assert.Equal(t, "Error: schedule 9 not found.", formatRunReport(9, nil, app.ErrScheduleNotFound))

	text := formatRunReport(1, &app.RunReport{Mode: app.ModeManualTest, Topics: 2, Sent: 1, Recipients: 1}, nil)
	assert.Contains(t, text, "✅ Run of schedule 1 finished.")
	assert.Contains(t, text, "Sent: 1/1")
}
