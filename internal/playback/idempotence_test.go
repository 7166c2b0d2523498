package playback

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sharetube/playsync/internal/protocol"
)

// Every bus message handler must leave the same state when a message is
// delivered twice in a row.
func TestBusHandlersAreIdempotent(t *testing.T) {
	starts := map[string]State{
		"host free":         joined("p1", "p1", "p1", "p2", "p3"),
		"follower free":     joined("p2", "p1", "p1", "p2", "p3"),
		"follower holding":  holding(joined("p2", "p1", "p1", "p2", "p3")),
		"follower awaiting": awaiting(joined("p3", "p1", "p1", "p2", "p3"), "p2"),
		"host holding peer": held(joined("p1", "p1", "p1", "p2", "p3"), "p2"),
		"not joined":        NewState("p2"),
	}

	handlers := map[string]func(State) (State, []Effect){
		"RECEIVE_TIMING": func(s State) (State, []Effect) { return ReceiveTiming(s, 42, 30) },
		"HOLD":           func(s State) (State, []Effect) { return Hold(s, "p2", false) },
		"HOLD addressed": func(s State) (State, []Effect) { return Hold(s, "p1", true) },
		"RELEASE":        func(s State) (State, []Effect) { return Release(s, "p1", false) },
		"RELEASE addressed": func(s State) (State, []Effect) {
			return Release(s, "p2", true)
		},
		"PREPARE_RELEASE": func(s State) (State, []Effect) { return PrepareRelease(s, 12) },
		"REQUEST_RELEASE": func(s State) (State, []Effect) { return RequestRelease(s, "p2", 12) },
		"REQUEST_RELEASE_READY": func(s State) (State, []Effect) {
			return ReleaseReady(s, protocol.ReleaseReadyPayload{HolderID: s.Self, ReplyTo: "p3"})
		},
		"PLAY":                 Play,
		"PAUSE":                Pause,
		"PLAYBACK_RATE_CHANGE": func(s State) (State, []Effect) { return ReceiveRate(s, 1.5) },
		"RECEIVE_URL":          func(s State) (State, []Effect) { return ReceiveURL(s, "https://youtu.be/dQw4w9WgXcQ") },
		"REQUEST_SETTINGS":     func(s State) (State, []Effect) { return QuerySettings(s, "p3") },
		"REPLY_SETTINGS": func(s State) (State, []Effect) {
			return ReceiveSettings(s, protocol.ReplySettingsPayload{
				RecipientID: s.Self,
				Settings:    protocol.Settings{IsPlaying: true, PlaybackRate: 2},
			})
		},
		"SET_BUFFERER": func(s State) (State, []Effect) { return SetBufferer(s, None, "p2") },
		"ROOM_STATUS":  func(s State) (State, []Effect) { return RoomStatus(s, false) },
		"MEMBERS": func(s State) (State, []Effect) {
			return Members(s, members("p1", "p1", "p2", "p3"))
		},
	}

	for startName, start := range starts {
		for name, handle := range handlers {
			t.Run(startName+"/"+name, func(t *testing.T) {
				once, _ := handle(start.Clone())
				twice, _ := handle(once.Clone())

				assert.Equal(t, once, twice)
			})
		}
	}
}

func holding(s State) State {
	s, _ = BufferStart(s)
	return s
}

func held(s State, holder string) State {
	s, _ = Hold(s, holder, false)
	return s
}

func awaiting(s State, holder string) State {
	s, _ = Hold(s, holder, false)
	s, _ = BufferEnd(s, 1)
	return s
}
