package playback

import (
	"golang.org/x/exp/slices"

	"github.com/sharetube/playsync/internal/protocol"
)

const (
	// None is the empty connection id: no holder, no host known.
	None = ""
	// DriftThreshold is the tolerance in seconds before a follower reseeks.
	DriftThreshold      = 1.0
	DefaultPlaybackRate = 1.0
)

// Phase is the buffer arbitration state derived from State.
type Phase int

const (
	PhaseFree Phase = iota
	PhaseHoldingSelf
	PhaseHoldingPeer
	PhaseAwaitingReleaseAck
)

func (p Phase) String() string {
	switch p {
	case PhaseFree:
		return "FREE"
	case PhaseHoldingSelf:
		return "HOLDING_SELF"
	case PhaseHoldingPeer:
		return "HOLDING_PEER"
	case PhaseAwaitingReleaseAck:
		return "AWAITING_RELEASE_ACK"
	default:
		return "UNKNOWN"
	}
}

// State is everything one peer believes about its room: the shared playback
// state, the buffer hold and the last membership snapshot. Handlers take a
// State by value and return the next one.
type State struct {
	Self string

	MediaURL           string
	IsPlaying          bool
	PlaybackRate       float64
	Timing             float64
	InitialSyncPending bool

	HolderID string
	// ClaimPending is set from REQUEST_HOLD until the relay's addressed
	// HOLD reply.
	ClaimPending bool
	// ReleaseRequested is set while this peer holds and has asked the host
	// to release; the hold stays until the host's RELEASE arrives.
	ReleaseRequested bool
	// AwaitingAckFrom is the holder this peer sent REQUEST_RELEASE_READY to.
	AwaitingAckFrom string
	// PendingAcks are peers that asked this holder for an addressed RELEASE.
	PendingAcks []string

	Joined            bool
	SettingsRequested bool
	HostID            string
	Members           []protocol.Member
}

func NewState(self string) State {
	return State{
		Self:               self,
		PlaybackRate:       DefaultPlaybackRate,
		InitialSyncPending: true,
	}
}

func (s State) Phase() Phase {
	switch {
	case s.HolderID == None:
		return PhaseFree
	case s.HolderID == s.Self:
		return PhaseHoldingSelf
	case s.AwaitingAckFrom != None:
		return PhaseAwaitingReleaseAck
	default:
		return PhaseHoldingPeer
	}
}

func (s State) IsHost() bool {
	return s.HostID != None && s.HostID == s.Self
}

// Disabled reports whether local seek and keyboard controls must be locked.
func (s State) Disabled() bool {
	return s.HolderID != None
}

// IsSoleMember is true when the last snapshot holds at most this peer.
func (s State) IsSoleMember() bool {
	return len(s.Members) <= 1
}

// Clone returns a copy that shares no slices with s.
func (s State) Clone() State {
	s.PendingAcks = slices.Clone(s.PendingAcks)
	s.Members = slices.Clone(s.Members)
	return s
}

func (s State) withPendingAck(id string) State {
	if slices.Contains(s.PendingAcks, id) {
		return s
	}
	s.PendingAcks = append(slices.Clip(s.PendingAcks), id)
	return s
}
