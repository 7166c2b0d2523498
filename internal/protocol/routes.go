package protocol

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Target tells the relay who receives a translated message.
type Target int

const (
	// TargetOthers delivers to every room member except the sender.
	TargetOthers Target = iota
	// TargetRoom delivers to every room member including the sender.
	TargetRoom
	// TargetSender delivers back to the sender only.
	TargetSender
	// TargetHost delivers to the current host, which may be the sender.
	TargetHost
	// TargetAddressed delivers to Message.To.
	TargetAddressed
)

func (t Target) String() string {
	switch t {
	case TargetOthers:
		return "others"
	case TargetRoom:
		return "room"
	case TargetSender:
		return "sender"
	case TargetHost:
		return "host"
	case TargetAddressed:
		return "addressed"
	default:
		return "unknown"
	}
}

type Route struct {
	Deliver string
	Target  Target
}

var routes = map[string]Route{
	TypeJoin:                  {Deliver: TypeMembers, Target: TargetRoom},
	TypeRequestRoomStatus:     {Deliver: TypeRoomStatus, Target: TargetSender},
	TypeSendURL:               {Deliver: TypeReceiveURL, Target: TargetOthers},
	TypeSendTiming:            {Deliver: TypeReceiveTiming, Target: TargetOthers},
	TypeRequestHold:           {Deliver: TypeHold, Target: TargetOthers},
	TypePlayAll:               {Deliver: TypePlay, Target: TargetOthers},
	TypePauseAll:              {Deliver: TypePause, Target: TargetOthers},
	TypePlaybackRateChangeAll: {Deliver: TypePlaybackRateChange, Target: TargetOthers},
	TypeRequestReleaseAll:     {Deliver: TypeRelease, Target: TargetOthers},
	TypeRequestRelease:        {Deliver: TypeRequestRelease, Target: TargetHost},
	TypePrepareRelease:        {Deliver: TypePrepareRelease, Target: TargetAddressed},
	TypeRequestReleaseReady:   {Deliver: TypeRequestReleaseReady, Target: TargetAddressed},
	TypeRelease:               {Deliver: TypeRelease, Target: TargetAddressed},
	TypeRequestSettings:       {Deliver: TypeRequestSettings, Target: TargetHost},
	TypeReplySettings:         {Deliver: TypeReplySettings, Target: TargetAddressed},
}

// Lookup returns how the relay translates and routes a peer-sent type.
func Lookup(msgType string) (Route, bool) {
	r, ok := routes[msgType]
	return r, ok
}

// SentTypes lists every type a peer may send to the relay, sorted.
func SentTypes() []string {
	types := maps.Keys(routes)
	slices.Sort(types)
	return types
}
