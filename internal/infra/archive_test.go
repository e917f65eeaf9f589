package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timerapps/timerd/internal/domain"
)

func openTestArchive(t *testing.T) *UsageArchive {
	t.Helper()
	key, err := EnsureKey(NewFileKeyProvider(t.TempDir()))
	require.NoError(t, err)

	a, err := NewUsageArchive(t.TempDir(), key)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// TestArchive_ArchiveDayAndTotals verifies day records land in the archive
func TestArchive_ArchiveDayAndTotals(t *testing.T) {
	a := openTestArchive(t)

	blockedAt := time.Date(2026, 8, 22, 21, 0, 0, 0, time.UTC)
	day := map[string]domain.DailyUsageRecord{
		"com.example.game": {
			Name:             "Game",
			TotalMinutesUsed: 45,
			LimitMinutes:     45,
			LimitReached:     true,
			BlockedAt:        &blockedAt,
			Sessions:         []domain.SessionRecord{{DurationMinutes: 45}},
		},
		"com.example.video": {
			Name:             "Video",
			TotalMinutesUsed: 12,
			LimitMinutes:     60,
		},
	}
	require.NoError(t, a.ArchiveDay("2026-08-22", day))

	totals, err := a.TotalsByApp()
	require.NoError(t, err)
	assert.Equal(t, 45, totals["com.example.game"])
	assert.Equal(t, 12, totals["com.example.video"])
}

// TestArchive_ReplaysAreIdempotent verifies re-archiving a day overwrites
func TestArchive_ReplaysAreIdempotent(t *testing.T) {
	a := openTestArchive(t)

	day := map[string]domain.DailyUsageRecord{
		"com.example.game": {Name: "Game", TotalMinutesUsed: 30, LimitMinutes: 45},
	}
	require.NoError(t, a.ArchiveDay("2026-08-22", day))

	day["com.example.game"] = domain.DailyUsageRecord{
		Name: "Game", TotalMinutesUsed: 44, LimitMinutes: 45,
	}
	require.NoError(t, a.ArchiveDay("2026-08-22", day))

	totals, err := a.TotalsByApp()
	require.NoError(t, err)
	assert.Equal(t, 44, totals["com.example.game"])
}

// TestArchive_SumsAcrossDays verifies lifetime totals aggregate
func TestArchive_SumsAcrossDays(t *testing.T) {
	a := openTestArchive(t)

	require.NoError(t, a.ArchiveDay("2026-08-21", map[string]domain.DailyUsageRecord{
		"com.example.game": {Name: "Game", TotalMinutesUsed: 20, LimitMinutes: 45},
	}))
	require.NoError(t, a.ArchiveDay("2026-08-22", map[string]domain.DailyUsageRecord{
		"com.example.game": {Name: "Game", TotalMinutesUsed: 25, LimitMinutes: 45},
	}))

	totals, err := a.TotalsByApp()
	require.NoError(t, err)
	assert.Equal(t, 45, totals["com.example.game"])
}

// TestArchive_EmptyDayIsNoOp verifies nothing is written for an empty map
func TestArchive_EmptyDayIsNoOp(t *testing.T) {
	a := openTestArchive(t)

	require.NoError(t, a.ArchiveDay("2026-08-22", nil))

	totals, err := a.TotalsByApp()
	require.NoError(t, err)
	assert.Empty(t, totals)
}
