package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/timerapps/timerd/internal/domain"
)

func testApp(limitMinutes int) domain.MonitoredApp {
	return domain.MonitoredApp{
		Package:      "com.example.app",
		Name:         "Example",
		LimitMinutes: limitMinutes,
		Action:       domain.ActionKill,
		Enabled:      true,
	}
}

// TestTrack_SeedsFromLedger verifies lazy init seeds accumulated time
func TestTrack_SeedsFromLedger(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())

	assert.False(t, tk.Tracked("com.example.app"))
	tk.Track("com.example.app", 420)

	assert.True(t, tk.Tracked("com.example.app"))
	assert.Equal(t, domain.StateInactive, tk.State("com.example.app"))
	assert.Equal(t, 420, tk.UsedSeconds("com.example.app"))
}

// TestTrack_NegativeSeedClampedToZero verifies a bad seed never goes negative
func TestTrack_NegativeSeedClampedToZero(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	tk.Track("com.example.app", -5)
	assert.Equal(t, 0, tk.UsedSeconds("com.example.app"))
}

// TestTrack_SecondCallIsNoOp verifies an existing record is never reseeded
func TestTrack_SecondCallIsNoOp(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	tk.Track("com.example.app", 100)
	tk.Track("com.example.app", 999)
	assert.Equal(t, 100, tk.UsedSeconds("com.example.app"))
}

// TestAdvance_AccumulatesWhileActive verifies time accrues across ticks
func TestAdvance_AccumulatesWhileActive(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	app := testApp(10)
	tk.Track(app.Package, 0)

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)

	// First active tick starts monitoring; no time has elapsed yet.
	tk.Advance(app, true, now)
	assert.Equal(t, domain.StateMonitoring, tk.State(app.Package))
	assert.Equal(t, 0, tk.UsedSeconds(app.Package))

	// Each subsequent tick flushes elapsed time.
	tk.Advance(app, true, now.Add(5*time.Second))
	assert.Equal(t, 5, tk.UsedSeconds(app.Package))

	tk.Advance(app, true, now.Add(12*time.Second))
	assert.Equal(t, 12, tk.UsedSeconds(app.Package))
}

// TestAdvance_TruncatesPartialSeconds verifies the meter only undercounts
func TestAdvance_TruncatesPartialSeconds(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	app := testApp(10)
	tk.Track(app.Package, 0)

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	tk.Advance(app, true, now)
	tk.Advance(app, true, now.Add(4900*time.Millisecond))

	assert.Equal(t, 4, tk.UsedSeconds(app.Package))
}

// TestAdvance_PauseResume verifies background time never accrues
func TestAdvance_PauseResume(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	app := testApp(10)
	tk.Track(app.Package, 0)

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	tk.Advance(app, true, now)
	tk.Advance(app, true, now.Add(30*time.Second))

	// App leaves the foreground: monitoring pauses with 30s on the clock.
	out := tk.Advance(app, false, now.Add(30*time.Second))
	assert.Equal(t, domain.StatePaused, tk.State(app.Package))
	assert.Equal(t, 30, tk.UsedSeconds(app.Package))
	require.NotNil(t, out.EndedSession)

	// An hour in the background adds nothing.
	tk.Advance(app, false, now.Add(time.Hour))
	assert.Equal(t, 30, tk.UsedSeconds(app.Package))

	// Resume picks up exactly where it left off.
	tk.Advance(app, true, now.Add(time.Hour))
	tk.Advance(app, true, now.Add(time.Hour+10*time.Second))
	assert.Equal(t, 40, tk.UsedSeconds(app.Package))
}

// TestAdvance_InactiveStaysInactive verifies a never-used app keeps its state
func TestAdvance_InactiveStaysInactive(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	app := testApp(10)
	tk.Track(app.Package, 0)

	out := tk.Advance(app, false, time.Now())

	assert.Equal(t, domain.StateInactive, tk.State(app.Package))
	assert.Nil(t, out.EndedSession)
	assert.False(t, out.LimitHit)
}

// TestAdvance_UntrackedIsNoOp verifies advancing an unknown app does nothing
func TestAdvance_UntrackedIsNoOp(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	out := tk.Advance(testApp(10), true, time.Now())
	assert.Zero(t, out)
}

// TestAdvance_LimitHitReported verifies LimitHit fires once accumulation
// reaches the limit, and keeps firing until the caller confirms a block
func TestAdvance_LimitHitReported(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	app := testApp(1) // 60 seconds
	tk.Track(app.Package, 0)

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	tk.Advance(app, true, now)

	out := tk.Advance(app, true, now.Add(59*time.Second))
	assert.False(t, out.LimitHit)

	out = tk.Advance(app, true, now.Add(60*time.Second))
	assert.True(t, out.LimitHit)

	// Enforcement failed: next tick reports the hit again.
	out = tk.Advance(app, true, now.Add(65*time.Second))
	assert.True(t, out.LimitHit)
}

// TestAdvance_LimitHitWhilePaused verifies a seeded-over-limit app is
// reported even without foreground activity
func TestAdvance_LimitHitWhilePaused(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	app := testApp(1)
	tk.Track(app.Package, 120) // seeded past the limit

	out := tk.Advance(app, false, time.Now())
	assert.True(t, out.LimitHit)
}

// TestBlock_IsSticky verifies a blocked timer never advances or resumes
func TestBlock_IsSticky(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	app := testApp(1)
	tk.Track(app.Package, 0)

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	tk.Advance(app, true, now)
	tk.Advance(app, true, now.Add(60*time.Second))
	tk.Block(app.Package, now.Add(60*time.Second))

	assert.Equal(t, domain.StateBlocked, tk.State(app.Package))

	// Foreground activity after the block changes nothing.
	out := tk.Advance(app, true, now.Add(2*time.Minute))
	assert.Zero(t, out)
	assert.Equal(t, domain.StateBlocked, tk.State(app.Package))
	assert.Equal(t, 60, tk.UsedSeconds(app.Package))
}

// TestBlock_ClosesOpenSession verifies the cut-short session is returned
func TestBlock_ClosesOpenSession(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	app := testApp(1)
	tk.Track(app.Package, 0)

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	tk.Advance(app, true, now)
	tk.Advance(app, true, now.Add(60*time.Second))

	ended := tk.Block(app.Package, now.Add(60*time.Second))
	require.NotNil(t, ended)
	assert.Equal(t, now, ended.Start)
	assert.Equal(t, 1, ended.DurationMinutes)

	// No open session on a second block.
	assert.Nil(t, tk.Block(app.Package, now.Add(2*time.Minute)))
}

// TestAdvance_WarningFiresOnce verifies the low-time warning is one-shot
func TestAdvance_WarningFiresOnce(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	app := testApp(10) // 600 seconds
	tk.Track(app.Package, 0)

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	tk.Advance(app, true, now)

	// 299s used: remaining 301 is outside the window.
	out := tk.Advance(app, true, now.Add(299*time.Second))
	assert.False(t, out.WarningDue)

	// 300s used: remaining exactly 300 enters the window.
	out = tk.Advance(app, true, now.Add(300*time.Second))
	assert.True(t, out.WarningDue)

	// Never again this day.
	out = tk.Advance(app, true, now.Add(305*time.Second))
	assert.False(t, out.WarningDue)
}

// TestAdvance_NoWarningAtZeroRemaining verifies the window is (0, 300]
func TestAdvance_NoWarningAtZeroRemaining(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	app := testApp(1)
	tk.Track(app.Package, 60) // already at the limit

	out := tk.Advance(app, true, time.Now())
	assert.False(t, out.WarningDue)
	assert.True(t, out.LimitHit)
}

// TestAdvance_WarningSurvivesPause verifies the one-shot flag persists
// across pause and resume
func TestAdvance_WarningSurvivesPause(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	app := testApp(10)
	tk.Track(app.Package, 0)

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	tk.Advance(app, true, now)
	out := tk.Advance(app, true, now.Add(310*time.Second))
	require.True(t, out.WarningDue)

	tk.Advance(app, false, now.Add(315*time.Second))
	out = tk.Advance(app, true, now.Add(400*time.Second))
	assert.False(t, out.WarningDue)
}

// TestReset_ReturnsToFreshState verifies reset zeroes time and state
func TestReset_ReturnsToFreshState(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	app := testApp(1)
	tk.Track(app.Package, 0)

	now := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	tk.Advance(app, true, now)
	tk.Advance(app, true, now.Add(60*time.Second))
	tk.Block(app.Package, now.Add(60*time.Second))

	require.True(t, tk.Reset(app.Package))
	assert.Equal(t, domain.StateInactive, tk.State(app.Package))
	assert.Equal(t, 0, tk.UsedSeconds(app.Package))

	// The app is usable again after a reset.
	out := tk.Advance(app, true, now.Add(2*time.Minute))
	assert.Equal(t, domain.StateMonitoring, tk.State(app.Package))
	assert.False(t, out.LimitHit)
}

// TestReset_UnknownApp verifies resetting an untracked app reports false
func TestReset_UnknownApp(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	assert.False(t, tk.Reset("com.unknown"))
}

// TestClear_DropsAllRecords verifies the rollover wipe
func TestClear_DropsAllRecords(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	tk.Track("com.a", 100)
	tk.Track("com.b", 200)

	tk.Clear()

	assert.False(t, tk.Tracked("com.a"))
	assert.False(t, tk.Tracked("com.b"))
	assert.Empty(t, tk.AllUsedSeconds())
}

// TestAllUsedSeconds verifies the per-app snapshot
func TestAllUsedSeconds(t *testing.T) {
	tk := NewTimekeeper(zap.NewNop())
	tk.Track("com.a", 90)
	tk.Track("com.b", 45)

	totals := tk.AllUsedSeconds()
	assert.Equal(t, map[string]int{"com.a": 90, "com.b": 45}, totals)
}
