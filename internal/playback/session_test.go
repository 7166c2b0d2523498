package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharetube/playsync/internal/protocol"
)

func TestAdmission(t *testing.T) {
	s := NewState("")

	s, effects := Connected(s, "p2")
	assert.Equal(t, "p2", s.Self)
	assert.Equal(t, []Effect{Publish{Type: protocol.TypeRequestRoomStatus}}, effects)

	s, effects = RoomStatus(s, true)
	assert.False(t, s.Joined)
	assert.Equal(t, []Effect{RetryRoomStatus{}}, effects)

	s, effects = RoomStatus(s, false)
	assert.True(t, s.Joined)
	assert.Equal(t, []Effect{Publish{Type: protocol.TypeJoin}}, effects)

	s, effects = Members(s, members("p1", "p1", "p2"))
	assert.Equal(t, "p1", s.HostID)
	assert.True(t, s.SettingsRequested)
	assert.Equal(t, []Effect{Publish{Type: protocol.TypeRequestSettings}}, effects)

	// later snapshots do not ask again
	_, effects = Members(s, members("p1", "p1", "p2", "p3"))
	assert.Empty(t, effects)
}

func TestReconnectResetsHoldAndAdmission(t *testing.T) {
	s := joined("p2", "p1", "p1", "p2")
	s, _ = Hold(s, "p1", false)
	s.AwaitingAckFrom = "p1"

	s, _ = Connected(s, "p2-new")

	assert.Equal(t, "p2-new", s.Self)
	assert.Equal(t, PhaseFree, s.Phase())
	assert.False(t, s.Joined)
	assert.False(t, s.SettingsRequested)
}

func TestHostDoesNotRequestSettings(t *testing.T) {
	s := NewState("p1")
	s.Joined = true

	s, effects := Members(s, members("p1", "p1"))

	assert.True(t, s.IsHost())
	assert.Empty(t, effects)
}

func TestLocalPlayPause(t *testing.T) {
	host := joined("p1", "p1", "p1", "p2")

	host, effects := LocalPlay(host, 9)
	assert.True(t, host.IsPlaying)
	assert.Equal(t, []string{protocol.TypeSendTiming, protocol.TypePlayAll}, publishedTypes(effects))

	// already playing: only the timing goes out
	host, effects = LocalPlay(host, 9.5)
	assert.Equal(t, []string{protocol.TypeSendTiming}, publishedTypes(effects))

	host, effects = LocalPause(host)
	assert.False(t, host.IsPlaying)
	assert.Equal(t, []string{protocol.TypePauseAll}, publishedTypes(effects))

	// a play during a peer's hold is not broadcast and the player is paused again
	host.HolderID = "p2"
	_, effects = LocalPlay(host, 10)
	assert.Equal(t, []Effect{SetPlaying{Playing: false}}, effects)
}

func TestLocalPlayWhileHoldingSelf(t *testing.T) {
	s := joined("p2", "p1", "p1", "p2")
	s, _ = BufferStart(s)

	// still buffering: the player is meant to be playing
	_, effects := LocalPlay(s, 3)
	assert.Empty(t, effects)

	// waiting for the host to release: stay paused
	s, _ = BufferEnd(s, 3)
	_, effects = LocalPlay(s, 3)
	assert.Equal(t, []Effect{SetPlaying{Playing: false}}, effects)
}

func TestRate(t *testing.T) {
	s := joined("p2", "p1", "p1", "p2")

	s, effects := LocalRate(s, 1.5)
	assert.Equal(t, 1.5, s.PlaybackRate)
	assert.Equal(t, []Effect{Publish{Type: protocol.TypePlaybackRateChangeAll, Payload: protocol.RatePayload{Rate: 1.5}}}, effects)

	// the player echoing an applied rate is not rebroadcast
	s, effects = ReceiveRate(s, 2)
	assert.Equal(t, []Effect{SetRate{Rate: 2}}, effects)
	_, effects = LocalRate(s, 2)
	assert.Empty(t, effects)

	_, effects = ReceiveRate(s, 0)
	assert.Empty(t, effects)
}

func TestURL(t *testing.T) {
	s := joined("p1", "p1", "p1", "p2")

	s, effects := SubmitURL(s, "https://youtu.be/dQw4w9WgXcQ")
	assert.True(t, s.InitialSyncPending)
	assert.Equal(t, []Effect{
		PersistURL{URL: "https://youtu.be/dQw4w9WgXcQ"},
		Publish{Type: protocol.TypeSendURL, Payload: protocol.URLPayload{URL: "https://youtu.be/dQw4w9WgXcQ"}},
		LoadMedia{URL: "https://youtu.be/dQw4w9WgXcQ"},
	}, effects)

	other := joined("p2", "p1", "p1", "p2")
	other, effects = ReceiveURL(other, "https://youtu.be/dQw4w9WgXcQ")
	assert.True(t, other.InitialSyncPending)
	assert.Equal(t, []Effect{LoadMedia{URL: "https://youtu.be/dQw4w9WgXcQ"}}, effects)
}

func TestSettingsSync(t *testing.T) {
	host := joined("p1", "p1", "p1", "p2")
	host.IsPlaying = true
	host.PlaybackRate = 1.25

	_, effects := QuerySettings(host, "p2")
	require.Len(t, effects, 1)
	reply := effects[0].(Publish)
	assert.Equal(t, "p2", reply.To)
	payload := reply.Payload.(protocol.ReplySettingsPayload)
	assert.Equal(t, protocol.Settings{IsPlaying: true, PlaybackRate: 1.25}, payload.Settings)

	// followers never answer
	_, effects = QuerySettings(joined("p3", "p1", "p1", "p2", "p3"), "p2")
	assert.Empty(t, effects)

	// a playing room is entered through the hold
	p2 := joined("p2", "p1", "p1", "p2")
	p2, effects = ReceiveSettings(p2, payload)
	assert.Equal(t, 1.25, p2.PlaybackRate)
	assert.Equal(t, PhaseHoldingSelf, p2.Phase())
	assert.Contains(t, publishedTypes(effects), protocol.TypeRequestHold)

	// replies for someone else are ignored
	p3 := joined("p3", "p1", "p1", "p2", "p3")
	next, effects := ReceiveSettings(p3, payload)
	assert.Equal(t, p3, next)
	assert.Empty(t, effects)
}

func TestReceiveSettingsPaused(t *testing.T) {
	p2 := joined("p2", "p1", "p1", "p2")
	p2.IsPlaying = true

	p2, effects := ReceiveSettings(p2, protocol.ReplySettingsPayload{
		RecipientID: "p2",
		Settings:    protocol.Settings{PlaybackRate: 1},
	})

	assert.False(t, p2.IsPlaying)
	assert.Equal(t, PhaseFree, p2.Phase())
	assert.Equal(t, []Effect{SetRate{Rate: 1}, SetPlaying{Playing: false}}, effects)
}
