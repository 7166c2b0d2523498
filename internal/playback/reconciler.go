package playback

import (
	"math"

	"github.com/sharetube/playsync/internal/protocol"
)

// Progress runs on every media progress tick. Only a playing host with no
// active hold broadcasts its position; it is the room's only clock.
func Progress(s State, t float64) (State, []Effect) {
	if !s.IsHost() || !s.IsPlaying || s.HolderID != None {
		return s, nil
	}

	s.Timing = t
	return s, []Effect{Publish{Type: protocol.TypeSendTiming, Payload: protocol.TimingPayload{Timing: t}}}
}

// ReceiveTiming applies the host's position on a follower. now is the local
// player position. Followers correct by seeking, never by changing rate.
func ReceiveTiming(s State, t, now float64) (State, []Effect) {
	if s.IsHost() {
		return s, nil
	}

	s.Timing = t
	if !s.Joined || s.HolderID == s.Self || !s.IsPlaying {
		return s, nil
	}
	if math.Abs(now-t) <= DriftThreshold {
		return s, nil
	}

	return s, []Effect{Seek{Timing: t}}
}
