package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWatermark_NewerThan(t *testing.T) {
	tests := []struct {
		name   string
		remote Watermark
		stored Watermark
		want   bool
	}{
		{"newer time", "2024-01-02T00:00:00", "2024-01-01T23:59:59", true},
		{"equal", "2024-01-01T10:00:00", "2024-01-01T10:00:00", false},
		{"older", "2023-12-31T10:00:00", "2024-01-01T10:00:00", false},
		{"fractional seconds", "2024-01-01T10:00:00.5", "2024-01-01T10:00:00", true},
		{"mixed layouts", "2024-01-01 10:00:01", "2024-01-01T10:00:00Z", true},
		{"nothing stored", "2024-01-01T10:00:00", "", true},
		{"remote missing", "", "2024-01-01T10:00:00", true},
		{"unparseable falls back to text", "b", "a", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.remote.NewerThan(tt.stored))
		})
	}
}

func TestSyncReport_Status(t *testing.T) {
	ok := PhaseReport{Name: PhaseCategories, OK: true}
	failed := PhaseReport{Name: PhaseGuides, Error: "boom"}

	r := SyncReport{Categories: ok, Guides: PhaseReport{Name: PhaseGuides, OK: true}}
	assert.Equal(t, RunSuccess, r.Status())

	r.Guides.Failed = 2
	assert.Equal(t, RunPartial, r.Status())
	assert.Contains(t, r.Message(), "guides: 2 items failed")

	r = SyncReport{Categories: ok, Guides: failed}
	assert.Equal(t, RunPartial, r.Status())
	assert.Contains(t, r.Message(), "guides: boom")

	r = SyncReport{Categories: PhaseReport{Name: PhaseCategories, Error: "down"}, Guides: failed}
	assert.Equal(t, RunFailed, r.Status())
	assert.Equal(t, "sync failed: categories: down; guides: boom", r.Message())
}

func TestStatusFromInactive(t *testing.T) {
	assert.Equal(t, StatusDraft, StatusFromInactive(true))
	assert.Equal(t, StatusPublish, StatusFromInactive(false))
}
