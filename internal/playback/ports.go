package playback

import (
	"context"

	"github.com/sharetube/playsync/internal/protocol"
)

// MediaDriver is the controllable player. Implementations must not call back
// into the Controller synchronously; player events go through the event queue.
type MediaDriver interface {
	Play()
	Pause()
	Seek(t float64)
	SetRate(r float64)
	CurrentTime() float64
	Load(url string)
	// Buffering reports whether the media is stalled or still loading; a
	// buffer end event follows while it is true.
	Buffering() bool
}

// Publisher sends messages on the room bus.
type Publisher interface {
	Publish(ctx context.Context, msg protocol.Message) error
}

// URLStore persists the room's media URL. It is fire-and-forget from the
// protocol's point of view.
type URLStore interface {
	PutURL(ctx context.Context, roomID, url string) error
}

type EventKind int

const (
	EventPlay EventKind = iota + 1
	EventPause
	EventProgress
	EventBufferStart
	EventBufferEnd
	EventReady
	EventRateChange
)

func (k EventKind) String() string {
	switch k {
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventProgress:
		return "progress"
	case EventBufferStart:
		return "buffer_start"
	case EventBufferEnd:
		return "buffer_end"
	case EventReady:
		return "ready"
	case EventRateChange:
		return "rate_change"
	default:
		return "unknown"
	}
}

// PlayerEvent is emitted by a MediaDriver. Time is set for progress events,
// Rate for rate changes.
type PlayerEvent struct {
	Kind EventKind
	Time float64
	Rate float64
}
