package playback

import (
	"golang.org/x/exp/slices"

	"github.com/sharetube/playsync/internal/protocol"
)

// Connected starts room admission. It also runs after every reconnect: the
// connection id may have changed, so local hold and admission state restart
// from scratch.
func Connected(s State, self string) (State, []Effect) {
	if self != None {
		s.Self = self
	}
	s.HolderID = None
	s.ClaimPending = false
	s.ReleaseRequested = false
	s.AwaitingAckFrom = None
	s.PendingAcks = nil
	s.Joined = false
	s.SettingsRequested = false

	return s, []Effect{Publish{Type: protocol.TypeRequestRoomStatus}}
}

// RoomStatus admits this peer once the room is not mid-stall.
func RoomStatus(s State, isBusy bool) (State, []Effect) {
	if s.Joined {
		return s, nil
	}
	if isBusy {
		return s, []Effect{RetryRoomStatus{}}
	}

	s.Joined = true
	return s, []Effect{Publish{Type: protocol.TypeJoin}}
}

// Members applies a membership snapshot. The first snapshot after admission
// triggers the settings catch-up on non-host peers.
func Members(s State, members []protocol.Member) (State, []Effect) {
	s.Members = slices.Clone(members)
	s.HostID = None
	for _, m := range members {
		if m.IsHost {
			s.HostID = m.ConnectionID
			break
		}
	}

	if s.Joined && !s.SettingsRequested {
		return RequestSettings(s)
	}

	return s, nil
}

// LocalPlay handles the player's play event. now is the player position.
// During a hold the player is put back to the paused state it must be in.
func LocalPlay(s State, now float64) (State, []Effect) {
	if s.HolderID == s.Self && !s.ReleaseRequested {
		return s, nil
	}
	if s.HolderID != None {
		return s, []Effect{SetPlaying{Playing: false}}
	}

	var effects []Effect
	if s.IsHost() {
		s.Timing = now
		effects = append(effects, Publish{Type: protocol.TypeSendTiming, Payload: protocol.TimingPayload{Timing: now}})
	}
	if !s.IsPlaying {
		s.IsPlaying = true
		effects = append(effects, Publish{Type: protocol.TypePlayAll})
	}

	return s, effects
}

// LocalPause handles the player's pause event.
func LocalPause(s State) (State, []Effect) {
	if !s.IsPlaying || s.HolderID != None {
		return s, nil
	}

	s.IsPlaying = false
	return s, []Effect{Publish{Type: protocol.TypePauseAll}}
}

// Play applies a PLAY from another peer.
func Play(s State) (State, []Effect) {
	s.IsPlaying = true
	return s, []Effect{SetPlaying{Playing: true}}
}

// Pause applies a PAUSE from another peer.
func Pause(s State) (State, []Effect) {
	s.IsPlaying = false
	return s, []Effect{SetPlaying{Playing: false}}
}

// LocalRate handles a rate change made on the local player. A change that
// only mirrors the current rate is not rebroadcast.
func LocalRate(s State, rate float64) (State, []Effect) {
	if rate <= 0 || rate == s.PlaybackRate {
		return s, nil
	}

	s.PlaybackRate = rate
	return s, []Effect{Publish{Type: protocol.TypePlaybackRateChangeAll, Payload: protocol.RatePayload{Rate: rate}}}
}

// ReceiveRate applies a PLAYBACK_RATE_CHANGE from another peer.
func ReceiveRate(s State, rate float64) (State, []Effect) {
	if rate <= 0 {
		return s, nil
	}

	s.PlaybackRate = rate
	return s, []Effect{SetRate{Rate: rate}}
}

// SubmitURL handles a new video chosen on this peer.
func SubmitURL(s State, url string) (State, []Effect) {
	if url == "" {
		return s, nil
	}

	s.MediaURL = url
	s.InitialSyncPending = true

	return s, []Effect{
		PersistURL{URL: url},
		Publish{Type: protocol.TypeSendURL, Payload: protocol.URLPayload{URL: url}},
		LoadMedia{URL: url},
	}
}

// ReceiveURL applies a RECEIVE_URL. The next buffer cycle is an initial sync.
func ReceiveURL(s State, url string) (State, []Effect) {
	if url == "" || url == s.MediaURL {
		return s, nil
	}

	s.MediaURL = url
	s.InitialSyncPending = true

	return s, []Effect{LoadMedia{URL: url}}
}

func withHost(s State, hostID string) State {
	s.HostID = hostID
	if s.Members == nil {
		return s
	}

	members := make([]protocol.Member, len(s.Members))
	for i, m := range s.Members {
		m.IsHost = m.ConnectionID == hostID
		members[i] = m
	}
	s.Members = members

	return s
}
