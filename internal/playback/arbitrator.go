package playback

import "github.com/sharetube/playsync/internal/protocol"

// BufferStart handles a local stall. The hold is claimed only when nobody
// holds it; a second stall while already holding restarts the release cycle.
func BufferStart(s State) (State, []Effect) {
	switch s.HolderID {
	case None:
		s.HolderID = s.Self
		s.ClaimPending = true
		s.ReleaseRequested = false
		s.AwaitingAckFrom = None
		s.IsPlaying = true

		return s, []Effect{
			Publish{Type: protocol.TypeRequestHold, Payload: protocol.HoldPayload{HolderID: s.Self}},
			SetPlaying{Playing: true},
		}
	case s.Self:
		s.ReleaseRequested = false
		s.IsPlaying = true

		return s, []Effect{SetPlaying{Playing: true}}
	default:
		return s, nil
	}
}

// Hold applies a HOLD. The relay answers every claim with an addressed HOLD
// naming the actual holder; broadcasts that arrive while this peer's own
// claim is unanswered are stale.
func Hold(s State, holderID string, addressed bool) (State, []Effect) {
	if addressed {
		s.ClaimPending = false
	}

	switch {
	case holderID == None || holderID == s.HolderID:
		return s, nil
	case holderID == s.Self:
		if !addressed {
			return s, nil
		}
		// granted after this peer already let go locally
		return s, []Effect{releaseAllMessage(s.Self)}
	case !addressed && s.ClaimPending && s.HolderID == s.Self:
		return s, nil
	}

	s.HolderID = holderID
	s.ReleaseRequested = false
	s.AwaitingAckFrom = None
	s.PendingAcks = nil

	return s, []Effect{SetPlaying{Playing: false, Debounced: true}}
}

// BufferEnd handles local recovery from a stall. now is the player position.
func BufferEnd(s State, now float64) (State, []Effect) {
	switch s.Phase() {
	case PhaseHoldingSelf:
		if s.InitialSyncPending || s.IsSoleMember() {
			return releaseAll(s, s.Self)
		}

		s.ReleaseRequested = true
		return s, []Effect{
			SetPlaying{Playing: false, Debounced: true},
			Publish{Type: protocol.TypeRequestRelease, Payload: protocol.TimingPayload{Timing: now}},
		}
	case PhaseHoldingPeer, PhaseAwaitingReleaseAck:
		s.InitialSyncPending = false
		s.AwaitingAckFrom = s.HolderID
		return s, []Effect{
			SetPlaying{Playing: false, Debounced: true},
			Publish{
				Type: protocol.TypeRequestReleaseReady,
				To:   s.HolderID,
				Payload: protocol.ReleaseReadyPayload{
					HolderID: s.HolderID,
					ReplyTo:  s.Self,
				},
			},
		}
	default:
		return s, nil
	}
}

// Release applies a RELEASE. An addressed RELEASE is an acknowledgment and is
// only accepted from the peer this one is waiting on. A holder only lets the
// host free it after asking; any other RELEASE predates its own claim.
func Release(s State, from string, addressed bool) (State, []Effect) {
	switch {
	case s.HolderID == None:
		return s, nil
	case s.HolderID == s.Self:
		if addressed || !s.ReleaseRequested || from != s.HostID {
			return s, nil
		}
	case addressed && from != s.HolderID && from != s.AwaitingAckFrom:
		return s, nil
	}

	s, effects := clearHold(s)
	return s, append(effects, SetPlaying{Playing: true, Debounced: true})
}

// PrepareRelease completes the holder's side of the handshake: align with the
// host's timing and resume. The hold itself is cleared by the following RELEASE.
func PrepareRelease(s State, timing float64) (State, []Effect) {
	if s.Phase() != PhaseHoldingSelf {
		return s, nil
	}

	return s, []Effect{
		Seek{Timing: timing},
		SetPlaying{Playing: true, Debounced: true},
	}
}

// RequestRelease runs on the host when the holder from has recovered.
// The host is the single peer that declares the room free.
func RequestRelease(s State, from string, timing float64) (State, []Effect) {
	if !s.IsHost() {
		return s, nil
	}
	if s.HolderID != None && s.HolderID != from {
		return s, nil
	}

	var effects []Effect
	if from != s.Self {
		effects = append(effects,
			Seek{Timing: timing},
			Publish{
				Type:    protocol.TypePrepareRelease,
				To:      from,
				Payload: protocol.TimingPayload{Timing: timing},
			},
		)
	}

	s.Timing = timing
	s, released := releaseAll(s, from)
	effects = append(effects, released...)

	return s, append(effects, SetPlaying{Playing: true, Debounced: true})
}

// ReleaseReady runs on the peer a REQUEST_RELEASE_READY was addressed to.
// While holding, the requester is acknowledged when the hold clears;
// otherwise it is acknowledged at once.
func ReleaseReady(s State, p protocol.ReleaseReadyPayload) (State, []Effect) {
	if p.ReplyTo == None || p.ReplyTo == s.Self {
		return s, nil
	}

	if s.HolderID == s.Self {
		return s.withPendingAck(p.ReplyTo), nil
	}

	return s, []Effect{Publish{Type: protocol.TypeRelease, To: p.ReplyTo}}
}

// SetBufferer applies the relay's reassignment after a disconnect. It always
// overwrites the hold; the host force-resumes so the room cannot stay stuck.
func SetBufferer(s State, holderID, hostID string) (State, []Effect) {
	if hostID != None {
		s = withHost(s, hostID)
	}

	if holderID != s.Self {
		s.PendingAcks = nil
	}
	s.HolderID = holderID
	s.ReleaseRequested = false
	s.AwaitingAckFrom = None

	if !s.IsHost() {
		return s, nil
	}

	s.IsPlaying = true
	effects := []Effect{SetPlaying{Playing: true}}
	if s.HolderID == None {
		effects = append(effects, Publish{Type: protocol.TypePlayAll})
	}

	return s, effects
}

// releaseAll frees the hold locally and asks the relay to free it for the
// room, provided expected still holds there.
func releaseAll(s State, expected string) (State, []Effect) {
	s, effects := clearHold(s)
	return s, append([]Effect{releaseAllMessage(expected)}, effects...)
}

func releaseAllMessage(expected string) Publish {
	return Publish{Type: protocol.TypeRequestReleaseAll, Payload: protocol.HoldPayload{HolderID: expected}}
}

// clearHold frees the hold locally. A holder acknowledges every peer that
// asked it for an addressed RELEASE.
func clearHold(s State) (State, []Effect) {
	var effects []Effect
	if s.HolderID == s.Self {
		s.InitialSyncPending = false
		for _, id := range s.PendingAcks {
			effects = append(effects, Publish{Type: protocol.TypeRelease, To: id})
		}
	}

	s.HolderID = None
	s.ReleaseRequested = false
	s.AwaitingAckFrom = None
	s.PendingAcks = nil

	return s, effects
}
