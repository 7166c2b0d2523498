package relay_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharetube/playsync/internal/playback"
	"github.com/sharetube/playsync/internal/player/virtual"
	"github.com/sharetube/playsync/internal/protocol"
	roomRedis "github.com/sharetube/playsync/internal/repository/room/redis"
	"github.com/sharetube/playsync/internal/service/relay"
	"github.com/sharetube/playsync/pkg/debounce"
)

const (
	simRoom       = "sim"
	simRoomLimit  = 8
	quiesceRounds = 40
)

type simPeer struct {
	id      string
	ctrl    *playback.Controller
	player  *virtual.Player
	stalled bool
}

// network carries messages between peers and the relay. Outboxes and inboxes
// are FIFO per peer; the order in which peers are served is random.
type network struct {
	mu      sync.Mutex
	outbox  map[string][]protocol.Message
	inbox   map[string][]protocol.Message
	service interface {
		Connect(context.Context, *relay.ConnectParams) (relay.ConnectResponse, error)
		Route(context.Context, *relay.RouteParams) (relay.RouteResponse, error)
		GetRoom(context.Context, string) (relay.GetRoomResponse, error)
	}
}

type peerBus struct {
	net *network
	id  func() string
}

func (b peerBus) Publish(_ context.Context, msg protocol.Message) error {
	b.net.mu.Lock()
	defer b.net.mu.Unlock()

	id := b.id()
	b.net.outbox[id] = append(b.net.outbox[id], msg)
	return nil
}

func pop(queues map[string][]protocol.Message, id string) (protocol.Message, bool) {
	q := queues[id]
	if len(q) == 0 {
		return protocol.Message{}, false
	}
	queues[id] = q[1:]
	return q[0], true
}

type simulation struct {
	t      *testing.T
	ctx    context.Context
	rnd    *rand.Rand
	clock  *debounce.ManualClock
	net    *network
	logger *slog.Logger
	peers  []*simPeer
}

func newSimulation(t *testing.T, seed uint64, n int) *simulation {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := relay.NewService(roomRedis.NewRepo(rc, time.Hour, logger), relay.NewMetrics(prometheus.NewRegistry()), simRoomLimit, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sim := &simulation{
		t:      t,
		ctx:    ctx,
		rnd:    rand.New(rand.NewPCG(seed, seed)),
		clock:  debounce.NewManualClock(time.Unix(0, 0)),
		logger: logger,
		net: &network{
			outbox:  make(map[string][]protocol.Message),
			inbox:   make(map[string][]protocol.Message),
			service: service,
		},
	}

	for range n {
		sim.join()
	}

	return sim
}

// join connects a new peer with a fresh player.
func (s *simulation) join() *simPeer {
	resp, err := s.net.service.Connect(s.ctx, &relay.ConnectParams{RoomID: simRoom, UserID: "u", CanVideo: true})
	require.NoError(s.t, err)

	p := &simPeer{id: resp.ConnectionID, player: virtual.New(s.clock, 0)}
	p.ctrl = playback.NewController(p.player, peerBus{net: s.net, id: func() string { return p.id }}, nil, &playback.Config{
		RoomID:       simRoom,
		ConnectionID: p.id,
		Clock:        s.clock,
	}, s.logger)
	p.player.Start(s.ctx)
	p.ctrl.Connected(s.ctx, p.id)

	s.peers = append(s.peers, p)
	return p
}

// route hands one queued message of peer p to the relay. Every HOLD leaving
// the relay must name the relay's current holder.
func (s *simulation) route(p *simPeer) bool {
	s.net.mu.Lock()
	msg, ok := pop(s.net.outbox, p.id)
	s.net.mu.Unlock()
	if !ok {
		return false
	}

	ctx := context.Background()
	resp, err := s.net.service.Route(ctx, &relay.RouteParams{RoomID: simRoom, SenderID: p.id, Message: msg})
	if err != nil {
		require.ErrorIs(s.t, err, relay.ErrPermissionDenied, "routing %s from %s", msg.Type, p.id)
		return true
	}

	room, err := s.net.service.GetRoom(ctx, simRoom)
	require.NoError(s.t, err)

	s.net.mu.Lock()
	defer s.net.mu.Unlock()
	for _, d := range resp.Deliveries {
		if d.Message.Type == protocol.TypeHold {
			hold, err := protocol.Decode[protocol.HoldPayload](d.Message)
			require.NoError(s.t, err)
			require.Equal(s.t, room.HolderID, hold.HolderID, "hold delivered for a peer that does not hold")
		}
		s.net.inbox[d.To] = append(s.net.inbox[d.To], d.Message)
	}

	return true
}

func (s *simulation) receive(p *simPeer) bool {
	s.net.mu.Lock()
	msg, ok := pop(s.net.inbox, p.id)
	s.net.mu.Unlock()
	if !ok {
		return false
	}

	require.NoError(s.t, p.ctrl.HandleBusMessage(context.Background(), msg))
	return true
}

func (s *simulation) events(p *simPeer) bool {
	handled := false
	for {
		select {
		case ev := <-p.player.Events():
			p.ctrl.HandleLocalPlayerEvent(context.Background(), ev)
			handled = true
		default:
			return handled
		}
	}
}

// settle serves every queue until nothing moves.
func (s *simulation) settle() {
	for moved := true; moved; {
		moved = false
		for _, p := range s.peers {
			moved = s.events(p) || moved
			moved = s.route(p) || moved
			moved = s.receive(p) || moved
		}
	}
}

// step performs one random action.
func (s *simulation) step(stalls bool) {
	p := s.peers[s.rnd.IntN(len(s.peers))]

	switch n := s.rnd.IntN(10); {
	case n < 3:
		s.route(p)
	case n < 6:
		s.receive(p)
	case n < 8:
		s.events(p)
	case n < 9:
		s.clock.Advance(time.Duration(s.rnd.IntN(300)) * time.Millisecond)
	default:
		if !stalls {
			return
		}
		if p.stalled {
			p.player.Recover()
		} else {
			p.player.Stall()
		}
		p.stalled = !p.stalled
	}
}

func (s *simulation) quiesce() {
	for _, p := range s.peers {
		if p.stalled {
			p.player.Recover()
			p.stalled = false
		}
	}
	for range quiesceRounds {
		s.settle()
		s.clock.Advance(playback.DefaultDebounceDelay)
	}
	s.settle()
}

func (s *simulation) host() *simPeer {
	for _, p := range s.peers {
		if p.ctrl.State().IsHost() {
			return p
		}
	}
	s.t.Fatal("no host")
	return nil
}

func TestSimulatedRoom(t *testing.T) {
	for seed := uint64(1); seed <= 8; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			sim := newSimulation(t, seed, 4)
			sim.settle()

			for _, p := range sim.peers {
				require.True(t, p.ctrl.State().Joined, "peer %s not admitted", p.id)
			}

			host := sim.host()
			host.player.UserPlay()
			sim.settle()

			for range 600 {
				sim.step(true)
			}
			sim.quiesce()

			room, err := sim.net.service.GetRoom(context.Background(), simRoom)
			require.NoError(t, err)
			assert.Empty(t, room.HolderID, "hold left behind")
			for _, p := range sim.peers {
				st := p.ctrl.State()
				assert.Equal(t, playback.PhaseFree, st.Phase(), "peer %s", p.id)
				assert.True(t, st.IsPlaying, "peer %s", p.id)
				assert.Zero(t, p.player.Dropped(), "peer %s", p.id)
			}

			// the host jumps ahead; one progress tick pulls everybody along
			host.player.Seek(host.player.CurrentTime() + 30)
			sim.clock.Advance(virtual.DefaultTickInterval)
			sim.settle()

			want := host.player.CurrentTime()
			for _, p := range sim.peers {
				assert.LessOrEqual(t, math.Abs(p.player.CurrentTime()-want), playback.DriftThreshold, "peer %s", p.id)
			}
		})
	}
}

// Conflicting claims issued before either peer hears of the other resolve
// to the one the relay granted.
func TestSimulatedConcurrentClaims(t *testing.T) {
	sim := newSimulation(t, 42, 3)
	sim.settle()
	host := sim.host()
	host.player.UserPlay()
	sim.quiesce()

	a, b := sim.peers[1], sim.peers[2]
	a.player.Stall()
	b.player.Stall()
	sim.events(a)
	sim.events(b)
	require.Equal(t, playback.PhaseHoldingSelf, a.ctrl.State().Phase())
	require.Equal(t, playback.PhaseHoldingSelf, b.ctrl.State().Phase())

	sim.route(b)
	sim.route(a)
	sim.settle()

	room, err := sim.net.service.GetRoom(context.Background(), simRoom)
	require.NoError(t, err)
	assert.Equal(t, b.id, room.HolderID)
	for _, p := range sim.peers {
		assert.Equal(t, b.id, p.ctrl.State().HolderID, "peer %s", p.id)
	}

	a.player.Recover()
	b.player.Recover()
	sim.quiesce()

	room, err = sim.net.service.GetRoom(context.Background(), simRoom)
	require.NoError(t, err)
	assert.Empty(t, room.HolderID)
	for _, p := range sim.peers {
		assert.Equal(t, playback.PhaseFree, p.ctrl.State().Phase(), "peer %s", p.id)
	}
}

// requireSettled checks that nobody holds and every peer plays.
func (s *simulation) requireSettled() {
	s.t.Helper()
	room, err := s.net.service.GetRoom(context.Background(), simRoom)
	require.NoError(s.t, err)
	require.Empty(s.t, room.HolderID, "room left busy")
	for _, p := range s.peers {
		st := p.ctrl.State()
		assert.Equal(s.t, playback.PhaseFree, st.Phase(), "peer %s", p.id)
		assert.True(s.t, st.IsPlaying, "peer %s", p.id)
		assert.True(s.t, p.player.IsPlaying(), "peer %s player", p.id)
		assert.False(s.t, p.player.Buffering(), "peer %s player", p.id)
	}
}

// A peer admitted into a playing room buffers its media once, then the
// room resumes without it holding anyone up.
func TestSimulatedLateJoinerInPlayingRoom(t *testing.T) {
	sim := newSimulation(t, 7, 2)
	sim.settle()
	host := sim.host()
	host.player.UserPlay()
	sim.quiesce()
	sim.requireSettled()

	late := sim.join()
	sim.settle()
	require.True(t, late.ctrl.State().Joined)

	sim.quiesce()
	sim.requireSettled()
	assert.False(t, late.ctrl.State().InitialSyncPending)

	sim.clock.Advance(virtual.DefaultTickInterval)
	sim.settle()
	want := host.player.CurrentTime()
	assert.LessOrEqual(t, math.Abs(late.player.CurrentTime()-want), playback.DriftThreshold)
}

// A new video buffers on every peer as an initial sync; the next stall after
// it goes through the host handshake.
func TestSimulatedURLChangeBuffersAsInitialSync(t *testing.T) {
	sim := newSimulation(t, 11, 3)
	sim.settle()
	host := sim.host()
	host.player.UserPlay()
	sim.quiesce()

	host.ctrl.SubmitURL(sim.ctx, "https://youtu.be/dQw4w9WgXcQ")
	sim.quiesce()
	sim.requireSettled()
	for _, p := range sim.peers {
		assert.Equal(t, "https://youtu.be/dQw4w9WgXcQ", p.player.URL(), "peer %s", p.id)
		assert.False(t, p.ctrl.State().InitialSyncPending, "peer %s", p.id)
	}

	follower := sim.peers[1]
	if follower == host {
		follower = sim.peers[0]
	}
	follower.player.Stall()
	sim.settle()
	require.Equal(t, playback.PhaseHoldingSelf, follower.ctrl.State().Phase())
	follower.player.Recover()
	sim.events(follower)
	assert.True(t, follower.ctrl.State().ReleaseRequested, "stall after the initial sync waits for the host")
	assert.Equal(t, playback.PhaseHoldingSelf, follower.ctrl.State().Phase())

	sim.quiesce()
	sim.requireSettled()
}
