package virtual

import (
	"context"
	"testing"
	"time"

	"github.com/sharetube/playsync/internal/playback"
	"github.com/sharetube/playsync/pkg/debounce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(p *Player) []playback.PlayerEvent {
	var events []playback.PlayerEvent
	for {
		select {
		case ev := <-p.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

const testURL = "https://youtu.be/dQw4w9WgXcQ"

// cued returns a player whose media already went through its first buffering.
func cued(t *testing.T, clock *debounce.ManualClock) *Player {
	t.Helper()
	p := New(clock, time.Second)
	p.Load(testURL)
	clock.Advance(DefaultCueDelay)
	require.False(t, p.Buffering())
	drain(p)
	return p
}

func kinds(events []playback.PlayerEvent) []playback.EventKind {
	var ks []playback.EventKind
	for _, ev := range events {
		ks = append(ks, ev.Kind)
	}
	return ks
}

func TestPositionFollowsClockAndRate(t *testing.T) {
	clock := debounce.NewManualClock(time.Unix(0, 0))
	p := cued(t, clock)

	p.Seek(10)
	clock.Advance(5 * time.Second)
	assert.Equal(t, 10.0, p.CurrentTime(), "paused player must not advance")

	p.Play()
	clock.Advance(2 * time.Second)
	assert.InDelta(t, 12.0, p.CurrentTime(), 1e-9)

	p.SetRate(2)
	clock.Advance(time.Second)
	assert.InDelta(t, 14.0, p.CurrentTime(), 1e-9)

	p.Stall()
	clock.Advance(3 * time.Second)
	assert.InDelta(t, 14.0, p.CurrentTime(), 1e-9)

	p.Recover()
	clock.Advance(time.Second)
	assert.InDelta(t, 16.0, p.CurrentTime(), 1e-9)

	events := drain(p)
	require.Len(t, events, 2)
	assert.Equal(t, playback.EventBufferStart, events[0].Kind)
	assert.Equal(t, playback.EventBufferEnd, events[1].Kind)
}

func TestControllerCallsAreSilent(t *testing.T) {
	clock := debounce.NewManualClock(time.Unix(0, 0))
	p := cued(t, clock)

	p.Play()
	p.Pause()
	p.Seek(3)
	p.SetRate(1.5)
	assert.Empty(t, drain(p))

	p.UserPlay()
	p.UserRate(2)
	p.UserPause()
	p.Load(testURL)

	assert.Equal(t, []playback.EventKind{
		playback.EventPlay,
		playback.EventRateChange,
		playback.EventPause,
		playback.EventReady,
		playback.EventBufferStart,
	}, kinds(drain(p)))
	assert.Equal(t, 0.0, p.CurrentTime())
}

func TestLoadBuffersOnce(t *testing.T) {
	clock := debounce.NewManualClock(time.Unix(0, 0))
	p := New(clock, time.Second)

	p.Load(testURL)
	p.Play()
	assert.Equal(t, []playback.EventKind{playback.EventReady, playback.EventBufferStart}, kinds(drain(p)))
	assert.True(t, p.Buffering())

	clock.Advance(DefaultCueDelay - time.Millisecond)
	assert.Empty(t, drain(p))
	assert.Equal(t, 0.0, p.CurrentTime(), "position is frozen while cueing")

	clock.Advance(time.Millisecond)
	assert.Equal(t, []playback.EventKind{playback.EventBufferEnd}, kinds(drain(p)))
	assert.False(t, p.Buffering())

	clock.Advance(time.Second)
	assert.InDelta(t, 1.0, p.CurrentTime(), 1e-9)

	// buffered media plays and pauses without reporting
	p.Pause()
	p.Play()
	assert.Empty(t, drain(p))
}

func TestPlayBuffersFreshMedia(t *testing.T) {
	clock := debounce.NewManualClock(time.Unix(0, 0))
	p := New(clock, time.Second)

	p.Play()
	p.Play()
	assert.Equal(t, []playback.EventKind{playback.EventBufferStart}, kinds(drain(p)))

	clock.Advance(DefaultCueDelay)
	assert.Equal(t, []playback.EventKind{playback.EventBufferEnd}, kinds(drain(p)))
	assert.True(t, p.IsPlaying())
}

func TestStallReplacesCue(t *testing.T) {
	clock := debounce.NewManualClock(time.Unix(0, 0))
	p := New(clock, time.Second)

	p.Play()
	p.Stall()
	clock.Advance(DefaultCueDelay)
	assert.Equal(t, []playback.EventKind{playback.EventBufferStart, playback.EventBufferStart}, kinds(drain(p)))
	assert.True(t, p.Buffering(), "only the recovery ends a stall")

	p.Recover()
	assert.Equal(t, []playback.EventKind{playback.EventBufferEnd}, kinds(drain(p)))
	assert.False(t, p.Buffering())
}

func TestProgressTicks(t *testing.T) {
	clock := debounce.NewManualClock(time.Unix(0, 0))
	p := cued(t, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	clock.Advance(2 * time.Second)
	assert.Empty(t, drain(p), "no progress while paused")

	p.Play()
	clock.Advance(3 * time.Second)
	events := drain(p)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, playback.EventProgress, ev.Kind)
		assert.InDelta(t, float64(i+1), ev.Time, 1e-9)
	}
}
