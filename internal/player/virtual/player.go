package virtual

import (
	"context"
	"sync"
	"time"

	"github.com/sharetube/playsync/internal/playback"
	"github.com/sharetube/playsync/pkg/debounce"
)

const (
	DefaultTickInterval = time.Second
	// DefaultCueDelay is how long fresh media buffers before it can play.
	DefaultCueDelay = 500 * time.Millisecond
	eventsBuffer    = 64
)

// Player is a headless media player whose position advances with the clock
// while it is playing and not stalled. Controller calls are silent except
// that fresh media buffers once: loading it, or playing media that never
// buffered, reports a buffer start and, after the cue delay, a buffer end.
type Player struct {
	mu       sync.Mutex
	clock    debounce.Clock
	tick     time.Duration
	cueDelay time.Duration
	events   chan playback.PlayerEvent
	position float64
	rate     float64
	playing  bool
	stalled  bool
	buffered bool
	cueing   bool
	cueSeq   uint64
	cueTimer debounce.Timer
	url      string
	since    time.Time
	ticker   debounce.Timer
	dropped  int
}

func New(clock debounce.Clock, tick time.Duration) *Player {
	if clock == nil {
		clock = debounce.RealClock()
	}
	if tick <= 0 {
		tick = DefaultTickInterval
	}

	return &Player{
		clock:    clock,
		tick:     tick,
		cueDelay: DefaultCueDelay,
		events:   make(chan playback.PlayerEvent, eventsBuffer),
		rate:     playback.DefaultPlaybackRate,
		since:    clock.Now(),
	}
}

// SetCueDelay changes how long fresh media buffers. Non-positive values are
// ignored.
func (p *Player) SetCueDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if d > 0 {
		p.cueDelay = d
	}
}

// Events is the player's outbound event queue.
func (p *Player) Events() <-chan playback.PlayerEvent {
	return p.events
}

// Start emits a progress event every tick until ctx is done.
func (p *Player) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var fire func()
	fire = func() {
		if ctx.Err() != nil {
			return
		}

		p.mu.Lock()
		defer p.mu.Unlock()

		if p.playing && !p.frozen() {
			p.emit(playback.PlayerEvent{Kind: playback.EventProgress, Time: p.currentTime()})
		}
		p.ticker = p.clock.AfterFunc(p.tick, fire)
	}
	p.ticker = p.clock.AfterFunc(p.tick, fire)

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.ticker != nil {
			p.ticker.Stop()
		}
	}()
}

func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settle()
	p.playing = true
	if !p.buffered {
		p.cue()
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settle()
	p.playing = false
}

func (p *Player) Seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settle()
	p.position = max(t, 0)
}

func (p *Player) SetRate(r float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r <= 0 {
		return
	}
	p.settle()
	p.rate = r
}

func (p *Player) CurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.currentTime()
}

// Load switches media, reports ready and buffers the new media.
func (p *Player) Load(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.url = url
	p.position = 0
	p.since = p.clock.Now()
	p.buffered = false
	p.emit(playback.PlayerEvent{Kind: playback.EventReady})

	if p.cueing {
		p.scheduleCueEnd()
		return
	}
	p.cue()
}

func (p *Player) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.url
}

func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.playing
}

func (p *Player) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.rate
}

// Dropped is the number of events lost to a full queue.
func (p *Player) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.dropped
}

// UserPlay simulates the viewer pressing play.
func (p *Player) UserPlay() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settle()
	p.playing = true
	p.emit(playback.PlayerEvent{Kind: playback.EventPlay, Time: p.position})
	if !p.buffered {
		p.cue()
	}
}

func (p *Player) UserPause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settle()
	p.playing = false
	p.emit(playback.PlayerEvent{Kind: playback.EventPause, Time: p.position})
}

func (p *Player) UserRate(r float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r <= 0 {
		return
	}
	p.settle()
	p.rate = r
	p.emit(playback.PlayerEvent{Kind: playback.EventRateChange, Rate: r})
}

// Stall freezes the position and reports a buffer start.
func (p *Player) Stall() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settle()
	p.stalled = true
	p.stopCue()
	p.emit(playback.PlayerEvent{Kind: playback.EventBufferStart, Time: p.position})
}

// Recover ends a stall.
func (p *Player) Recover() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.settle()
	p.stalled = false
	p.buffered = true
	p.emit(playback.PlayerEvent{Kind: playback.EventBufferEnd, Time: p.position})
}

// Buffering reports whether the player is stalled or cueing fresh media.
func (p *Player) Buffering() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.frozen()
}

// cue starts the first buffering of the current media. A manual stall
// already reported its own buffer start.
func (p *Player) cue() {
	if p.cueing || p.stalled {
		return
	}

	p.settle()
	p.cueing = true
	p.emit(playback.PlayerEvent{Kind: playback.EventBufferStart, Time: p.position})
	p.scheduleCueEnd()
}

func (p *Player) scheduleCueEnd() {
	if p.cueTimer != nil {
		p.cueTimer.Stop()
	}
	p.cueSeq++
	seq := p.cueSeq

	p.cueTimer = p.clock.AfterFunc(p.cueDelay, func() {
		p.mu.Lock()
		defer p.mu.Unlock()

		if seq != p.cueSeq || !p.cueing {
			return
		}
		p.settle()
		p.cueing = false
		p.buffered = true
		p.emit(playback.PlayerEvent{Kind: playback.EventBufferEnd, Time: p.position})
	})
}

func (p *Player) stopCue() {
	if !p.cueing {
		return
	}
	p.cueing = false
	p.cueSeq++
	if p.cueTimer != nil {
		p.cueTimer.Stop()
	}
}

// settle folds the time elapsed since the last change into position.
func (p *Player) settle() {
	p.position = p.currentTime()
	p.since = p.clock.Now()
}

func (p *Player) frozen() bool {
	return p.stalled || p.cueing
}

func (p *Player) currentTime() float64 {
	if !p.playing || p.frozen() {
		return p.position
	}

	return p.position + p.clock.Now().Sub(p.since).Seconds()*p.rate
}

func (p *Player) emit(ev playback.PlayerEvent) {
	select {
	case p.events <- ev:
	default:
		p.dropped++
	}
}
