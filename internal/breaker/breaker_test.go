package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBreaker(t *testing.T, config *Config) (*Breaker, *time.Time) {
	t.Helper()
	b := New(config, zap.NewNop())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerStaysClosedBelowMinSamples(t *testing.T) {
	b, _ := newTestBreaker(t, &Config{
		WindowSize:         10,
		ErrorRateThreshold: 0.5,
		MinSamples:         5,
		Cooldown:           time.Minute,
	})

	// Four straight failures: 100% error rate but under min samples.
	for i := 0; i < 4; i++ {
		b.RecordExecution("flaky", false)
	}
	assert.False(t, b.IsOpen("flaky"))
	assert.Equal(t, 1.0, b.GetStatus("flaky").ErrorRate)
}

func TestBreakerOpensAboveThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, &Config{
		WindowSize:         10,
		ErrorRateThreshold: 0.5,
		MinSamples:         5,
		Cooldown:           time.Minute,
	})

	b.RecordExecution("flaky", true)
	b.RecordExecution("flaky", true)
	b.RecordExecution("flaky", false)
	b.RecordExecution("flaky", false)
	require.False(t, b.IsOpen("flaky"))

	// Fifth sample pushes the rate to 3/5 = 0.6 > 0.5.
	b.RecordExecution("flaky", false)
	assert.True(t, b.IsOpen("flaky"))

	status := b.GetStatus("flaky")
	assert.InDelta(t, 0.6, status.ErrorRate, 1e-9)
	assert.Equal(t, 60.0, status.CooldownRemaining)
}

func TestBreakerExactThresholdDoesNotOpen(t *testing.T) {
	b, _ := newTestBreaker(t, &Config{
		WindowSize:         10,
		ErrorRateThreshold: 0.5,
		MinSamples:         4,
		Cooldown:           time.Minute,
	})

	b.RecordExecution("borderline", true)
	b.RecordExecution("borderline", false)
	b.RecordExecution("borderline", true)
	b.RecordExecution("borderline", false)

	// Exactly at threshold stays closed; only exceeding it opens.
	assert.False(t, b.IsOpen("borderline"))
}

func TestBreakerAutoClosesAfterCooldown(t *testing.T) {
	b, now := newTestBreaker(t, &Config{
		WindowSize:         10,
		ErrorRateThreshold: 0.5,
		MinSamples:         2,
		Cooldown:           30 * time.Second,
	})

	b.RecordExecution("flaky", false)
	b.RecordExecution("flaky", false)
	require.True(t, b.IsOpen("flaky"))

	*now = now.Add(29 * time.Second)
	assert.True(t, b.IsOpen("flaky"))
	assert.InDelta(t, 1.0, b.GetStatus("flaky").CooldownRemaining, 1e-9)

	*now = now.Add(time.Second)
	assert.False(t, b.IsOpen("flaky"))
	status := b.GetStatus("flaky")
	assert.Equal(t, 0.0, status.ErrorRate)
	assert.Equal(t, 0.0, status.CooldownRemaining)
}

func TestBreakerFailureWhileOpenRestartsCooldown(t *testing.T) {
	b, now := newTestBreaker(t, &Config{
		WindowSize:         10,
		ErrorRateThreshold: 0.5,
		MinSamples:         2,
		Cooldown:           30 * time.Second,
	})

	b.RecordExecution("flaky", false)
	b.RecordExecution("flaky", false)
	require.True(t, b.IsOpen("flaky"))

	*now = now.Add(25 * time.Second)
	b.RecordExecution("flaky", false)

	// Without the restart this would have closed at 30s.
	*now = now.Add(10 * time.Second)
	assert.True(t, b.IsOpen("flaky"))

	*now = now.Add(20 * time.Second)
	assert.False(t, b.IsOpen("flaky"))
}

func TestBreakerWindowEvictsOldFailures(t *testing.T) {
	b, _ := newTestBreaker(t, &Config{
		WindowSize:         4,
		ErrorRateThreshold: 0.5,
		MinSamples:         4,
		Cooldown:           time.Minute,
	})

	b.RecordExecution("recovering", false)
	b.RecordExecution("recovering", false)
	b.RecordExecution("recovering", true)
	b.RecordExecution("recovering", true)
	// Successes push the two failures out of the window.
	b.RecordExecution("recovering", true)
	b.RecordExecution("recovering", true)

	assert.False(t, b.IsOpen("recovering"))
	assert.Equal(t, 0.0, b.GetStatus("recovering").ErrorRate)
}

func TestBreakerSkillsAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(t, &Config{
		WindowSize:         10,
		ErrorRateThreshold: 0.5,
		MinSamples:         2,
		Cooldown:           time.Minute,
	})

	b.RecordExecution("bad", false)
	b.RecordExecution("bad", false)
	b.RecordExecution("good", true)
	b.RecordExecution("good", true)

	assert.True(t, b.IsOpen("bad"))
	assert.False(t, b.IsOpen("good"))
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(t, &Config{
		WindowSize:         10,
		ErrorRateThreshold: 0.5,
		MinSamples:         2,
		Cooldown:           time.Minute,
	})

	b.RecordExecution("flaky", false)
	b.RecordExecution("flaky", false)
	require.True(t, b.IsOpen("flaky"))

	b.Reset("flaky")
	assert.False(t, b.IsOpen("flaky"))
	assert.Equal(t, 0.0, b.GetStatus("flaky").ErrorRate)
}

func TestBreakerUnknownSkillStatus(t *testing.T) {
	b, _ := newTestBreaker(t, nil)

	assert.False(t, b.IsOpen("never-seen"))
	status := b.GetStatus("never-seen")
	assert.Equal(t, 0.0, status.ErrorRate)
	assert.Equal(t, 0.0, status.CooldownRemaining)
}

func TestBreakerConcurrentRecords(t *testing.T) {
	b := New(DefaultConfig(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(fail bool) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.RecordExecution("shared", !fail)
				b.IsOpen("shared")
				b.GetStatus("shared")
			}
		}(i%2 == 0)
	}
	wg.Wait()

	rate := b.GetStatus("shared").ErrorRate
	assert.GreaterOrEqual(t, rate, 0.0)
	assert.LessOrEqual(t, rate, 1.0)
}
