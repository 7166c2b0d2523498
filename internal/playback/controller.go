package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sharetube/playsync/internal/protocol"
	"github.com/sharetube/playsync/pkg/debounce"
)

const (
	DefaultDebounceDelay   = 250 * time.Millisecond
	DefaultRoomStatusRetry = time.Second
	persistTimeout         = 10 * time.Second
)

var ErrUnknownMessage = errors.New("unknown message type")

type Config struct {
	RoomID          string
	ConnectionID    string
	DebounceDelay   time.Duration
	RoomStatusRetry time.Duration
	Clock           debounce.Clock
}

// Controller is the playback sync controller of one peer. It is the only
// place local state changes: every entry point runs to completion under mu.
type Controller struct {
	mu      sync.Mutex
	state   State
	baseCtx context.Context

	roomID      string
	driver      MediaDriver
	bus         Publisher
	urls        URLStore
	clock       debounce.Clock
	debouncer   *debounce.Debouncer
	playingSeq  uint64
	statusRetry time.Duration
	logger      *slog.Logger
}

// NewController wires a controller. urls may be nil.
func NewController(driver MediaDriver, bus Publisher, urls URLStore, cfg *Config, logger *slog.Logger) *Controller {
	clock := cfg.Clock
	if clock == nil {
		clock = debounce.RealClock()
	}
	delay := cfg.DebounceDelay
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	retry := cfg.RoomStatusRetry
	if retry <= 0 {
		retry = DefaultRoomStatusRetry
	}

	return &Controller{
		state:       NewState(cfg.ConnectionID),
		baseCtx:     context.Background(),
		roomID:      cfg.RoomID,
		driver:      driver,
		bus:         bus,
		urls:        urls,
		clock:       clock,
		debouncer:   debounce.New(clock, delay),
		statusRetry: retry,
		logger:      logger.With(slog.String("room_id", cfg.RoomID)),
	}
}

// State returns a copy of the current local state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.Clone()
}

func (c *Controller) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state.Disabled()
}

// Connected must be called whenever the bus (re)connects, with the
// connection id assigned by the bus.
func (c *Controller) Connected(ctx context.Context, connectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.debouncer.Cancel()
	c.playingSeq++
	c.commit(ctx, "connected")(Connected(c.state, connectionID))
}

// SubmitURL sets a new video for the whole room.
func (c *Controller) SubmitURL(ctx context.Context, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.commit(ctx, "submit_url")(SubmitURL(c.state, url))
}

func (c *Controller) HandleLocalPlayerEvent(ctx context.Context, ev PlayerEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	apply := c.commit(ctx, ev.Kind.String())
	switch ev.Kind {
	case EventPlay:
		apply(LocalPlay(c.state, c.driver.CurrentTime()))
	case EventPause:
		apply(LocalPause(c.state))
	case EventProgress:
		apply(Progress(c.state, ev.Time))
	case EventBufferStart:
		apply(BufferStart(c.state))
	case EventBufferEnd:
		apply(BufferEnd(c.state, c.driver.CurrentTime()))
	case EventReady:
		apply(RequestSettings(c.state))
	case EventRateChange:
		apply(LocalRate(c.state, ev.Rate))
	}
}

func (c *Controller) HandleBusMessage(ctx context.Context, msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if msg.To != None && msg.To != c.state.Self {
		// addressed to a connection this peer no longer has
		c.logger.DebugContext(ctx, "dropping stale addressed message", "type", msg.Type, "to", msg.To)
		return nil
	}

	apply := c.commit(ctx, msg.Type)
	switch msg.Type {
	case protocol.TypeReceiveTiming:
		p, err := protocol.Decode[protocol.TimingPayload](msg)
		if err != nil {
			return err
		}
		apply(ReceiveTiming(c.state, p.Timing, c.driver.CurrentTime()))
	case protocol.TypeHold:
		p, err := protocol.Decode[protocol.HoldPayload](msg)
		if err != nil {
			return err
		}
		apply(Hold(c.state, p.HolderID, msg.To != ""))
	case protocol.TypeRelease:
		apply(Release(c.state, msg.From, msg.To != ""))
	case protocol.TypePrepareRelease:
		p, err := protocol.Decode[protocol.TimingPayload](msg)
		if err != nil {
			return err
		}
		apply(PrepareRelease(c.state, p.Timing))
	case protocol.TypeRequestRelease:
		p, err := protocol.Decode[protocol.TimingPayload](msg)
		if err != nil {
			return err
		}
		apply(RequestRelease(c.state, msg.From, p.Timing))
	case protocol.TypeRequestReleaseReady:
		p, err := protocol.Decode[protocol.ReleaseReadyPayload](msg)
		if err != nil {
			return err
		}
		apply(ReleaseReady(c.state, p))
	case protocol.TypePlay:
		apply(Play(c.state))
	case protocol.TypePause:
		apply(Pause(c.state))
	case protocol.TypePlaybackRateChange:
		p, err := protocol.Decode[protocol.RatePayload](msg)
		if err != nil {
			return err
		}
		apply(ReceiveRate(c.state, p.Rate))
	case protocol.TypeReceiveURL:
		p, err := protocol.Decode[protocol.URLPayload](msg)
		if err != nil {
			return err
		}
		apply(ReceiveURL(c.state, p.URL))
	case protocol.TypeRequestSettings:
		apply(QuerySettings(c.state, msg.From))
	case protocol.TypeReplySettings:
		p, err := protocol.Decode[protocol.ReplySettingsPayload](msg)
		if err != nil {
			return err
		}
		apply(ReceiveSettings(c.state, p))
		if c.state.Phase() == PhaseHoldingSelf && !c.driver.Buffering() {
			// ready media reports no buffer end; the claim ends here
			apply(BufferEnd(c.state, c.driver.CurrentTime()))
		}
	case protocol.TypeSetBufferer:
		p, err := protocol.Decode[protocol.SetBuffererPayload](msg)
		if err != nil {
			return err
		}
		apply(SetBufferer(c.state, p.HolderID, p.HostID))
	case protocol.TypeRoomStatus:
		p, err := protocol.Decode[protocol.RoomStatusPayload](msg)
		if err != nil {
			return err
		}
		apply(RoomStatus(c.state, p.IsBusy))
	case protocol.TypeMembers:
		p, err := protocol.Decode[protocol.MembersPayload](msg)
		if err != nil {
			return err
		}
		apply(Members(c.state, p.Members))
	case protocol.TypeError:
		p, _ := protocol.Decode[protocol.ErrorPayload](msg)
		c.logger.WarnContext(ctx, "relay reported error", "message", p.Message)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Type)
	}

	return nil
}

// Run serializes player events, bus messages and reconnect notifications
// until ctx is done.
func (c *Controller) Run(ctx context.Context, events <-chan PlayerEvent, messages <-chan protocol.Message, connected <-chan string) error {
	c.mu.Lock()
	c.baseCtx = ctx
	c.mu.Unlock()
	defer c.debouncer.Cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.HandleLocalPlayerEvent(ctx, ev)
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			if err := c.HandleBusMessage(ctx, msg); err != nil {
				c.logger.WarnContext(ctx, "failed to handle bus message", "type", msg.Type, "error", err)
			}
		case id, ok := <-connected:
			if !ok {
				connected = nil
				continue
			}
			c.Connected(ctx, id)
		}
	}
}

// commit returns a function storing the next state and executing its effects.
// Callers hold mu.
func (c *Controller) commit(ctx context.Context, cause string) func(State, []Effect) {
	return func(next State, effects []Effect) {
		prev := c.state
		c.state = next

		if prev.Phase() != next.Phase() {
			c.logger.DebugContext(ctx, "buffer phase changed",
				"connection_id", next.Self,
				"cause", cause,
				"from", prev.Phase().String(),
				"to", next.Phase().String(),
				"holder_id", next.HolderID,
			)
		}

		for _, e := range effects {
			c.execute(ctx, e)
		}
	}
}

func (c *Controller) execute(ctx context.Context, e Effect) {
	switch e := e.(type) {
	case Publish:
		c.publish(ctx, e)
	case Seek:
		c.driver.Seek(e.Timing)
	case SetPlaying:
		if e.Debounced {
			c.schedulePlaying(e.Playing)
			return
		}
		c.debouncer.Cancel()
		c.playingSeq++
		c.state.IsPlaying = e.Playing
		c.drive(e.Playing)
	case SetRate:
		c.driver.SetRate(e.Rate)
	case LoadMedia:
		c.driver.Load(e.URL)
	case PersistURL:
		c.persist(e.URL)
	case RetryRoomStatus:
		c.clock.AfterFunc(c.statusRetry, c.retryRoomStatus)
	}
}

func (c *Controller) publish(ctx context.Context, p Publish) {
	msg, err := protocol.New(p.Type, p.Payload)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to build message", "type", p.Type, "error", err)
		return
	}
	msg.RoomID = c.roomID
	msg.From = c.state.Self
	msg.To = p.To

	if err := c.bus.Publish(ctx, msg); err != nil {
		c.logger.WarnContext(ctx, "failed to publish", "type", p.Type, "to", p.To, "error", err)
	}
}

// schedulePlaying debounces a play/pause. A callback that lost the race
// against a newer request is discarded by the sequence check.
func (c *Controller) schedulePlaying(playing bool) {
	c.playingSeq++
	seq := c.playingSeq

	c.debouncer.Schedule(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.playingSeq != seq {
			return
		}
		c.state.IsPlaying = playing
		c.drive(playing)
	})
}

func (c *Controller) drive(playing bool) {
	if playing {
		c.driver.Play()
	} else {
		c.driver.Pause()
	}
}

func (c *Controller) persist(url string) {
	if c.urls == nil {
		return
	}

	ctx, roomID, logger := c.baseCtx, c.roomID, c.logger
	go func() {
		ctx, cancel := context.WithTimeout(ctx, persistTimeout)
		defer cancel()

		if err := c.urls.PutURL(ctx, roomID, url); err != nil {
			logger.WarnContext(ctx, "failed to persist media url", "url", url, "error", err)
		}
	}()
}

func (c *Controller) retryRoomStatus() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Joined {
		return
	}
	c.publish(c.baseCtx, Publish{Type: protocol.TypeRequestRoomStatus})
}
