package playback

import "github.com/sharetube/playsync/internal/protocol"

// RequestSettings asks the host for the room's playback settings. The host
// never asks itself.
func RequestSettings(s State) (State, []Effect) {
	if s.IsHost() || !s.Joined {
		return s, nil
	}

	s.SettingsRequested = true
	return s, []Effect{Publish{Type: protocol.TypeRequestSettings}}
}

// QuerySettings answers a REQUEST_SETTINGS from a peer. Only the host replies.
func QuerySettings(s State, from string) (State, []Effect) {
	if !s.IsHost() || from == None || from == s.Self {
		return s, nil
	}

	return s, []Effect{Publish{
		Type: protocol.TypeReplySettings,
		To:   from,
		Payload: protocol.ReplySettingsPayload{
			RecipientID: from,
			Settings: protocol.Settings{
				IsPlaying:    s.IsPlaying,
				PlaybackRate: s.PlaybackRate,
			},
		},
	}}
}

// ReceiveSettings applies the host's reply. A playing room is entered through
// the buffer-claim path so a late joiner cannot race ahead of a stalled room.
func ReceiveSettings(s State, p protocol.ReplySettingsPayload) (State, []Effect) {
	if p.RecipientID != s.Self {
		return s, nil
	}

	var effects []Effect
	if p.Settings.PlaybackRate > 0 {
		s.PlaybackRate = p.Settings.PlaybackRate
		effects = append(effects, SetRate{Rate: p.Settings.PlaybackRate})
	}

	if p.Settings.IsPlaying {
		var claimed []Effect
		s, claimed = BufferStart(s)
		return s, append(effects, claimed...)
	}

	s.IsPlaying = false
	return s, append(effects, SetPlaying{Playing: false})
}
