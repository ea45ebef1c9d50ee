package biztime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		end  time.Time
		want int
	}{
		{"same instant", now, 0},
		{"half a day", now.Add(12 * time.Hour), 0},
		{"three days", now.Add(72 * time.Hour), 3},
		{"three and a half days", now.Add(84 * time.Hour), 3},
		{"past", now.Add(-49 * time.Hour), -2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntil(now, tt.end))
		})
	}
}

func TestSystemClock_IsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, SystemClock().Now().Location())
	assert.Equal(t, "2026-03-01 12:00 UTC", FormatDate(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))
}
