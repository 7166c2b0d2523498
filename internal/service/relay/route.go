package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/playsync/internal/protocol"
	"github.com/sharetube/playsync/internal/repository/room"
	"golang.org/x/exp/slices"
)

// errNothingToDeliver marks a message that was accepted but changes nothing.
var errNothingToDeliver = errors.New("nothing to deliver")

// Route translates a message sent by a member into the deliveries the relay
// makes for it. The sender's From is always overwritten.
func (s service) Route(ctx context.Context, params *RouteParams) (RouteResponse, error) {
	msg := params.Message
	route, ok := protocol.Lookup(msg.Type)
	if !ok {
		s.metrics.ObserveRejected("unknown_type")
		return RouteResponse{}, fmt.Errorf("%w: %s", ErrUnknownMessageType, msg.Type)
	}

	msg.RoomID = params.RoomID
	msg.From = params.SenderID

	ids, err := s.roomRepo.GetMemberIDs(ctx, params.RoomID)
	if err != nil {
		return RouteResponse{}, fmt.Errorf("failed to get member ids: %w", err)
	}
	if !slices.Contains(ids, params.SenderID) {
		s.metrics.ObserveRejected("not_member")
		return RouteResponse{}, ErrNotMember
	}

	state, err := s.roomRepo.GetRoomState(ctx, params.RoomID)
	if err != nil {
		return RouteResponse{}, fmt.Errorf("failed to get room state: %w", err)
	}

	msg, reply, err := s.apply(ctx, params, msg, ids, state)
	if errors.Is(err, errNothingToDeliver) {
		return RouteResponse{}, nil
	}
	if err != nil {
		s.metrics.ObserveRejected(params.Message.Type)
		return RouteResponse{}, err
	}
	if reply != nil {
		return RouteResponse{Deliveries: []Delivery{{To: params.SenderID, Message: *reply}}}, nil
	}

	recipients, err := s.recipients(route.Target, msg, ids, state)
	if err != nil {
		s.metrics.ObserveRejected(params.Message.Type)
		return RouteResponse{}, err
	}

	s.metrics.messagesRouted.WithLabelValues(msg.Type).Inc()

	delivered := msg
	delivered.Type = route.Deliver
	if route.Target != protocol.TargetAddressed {
		delivered.To = ""
	}

	deliveries := fanout(nil, recipients, delivered)
	if msg.Type == protocol.TypeRequestHold {
		// the claimant learns it won
		deliveries = append(deliveries, Delivery{To: params.SenderID, Message: delivered.Addressed(params.SenderID)})
	}

	return RouteResponse{Deliveries: deliveries}, nil
}

// apply runs the relay-side effect of a message: hold arbitration, room
// status, host checks and the playback snapshot. A non-nil reply replaces
// normal routing and goes back to the sender only.
func (s service) apply(ctx context.Context, params *RouteParams, msg protocol.Message, ids []string, state room.RoomState) (protocol.Message, *protocol.Message, error) {
	now := s.now().Unix()

	switch msg.Type {
	case protocol.TypeRequestRoomStatus:
		payload := protocol.RoomStatusPayload{IsBusy: state.HolderID != ""}
		reply, err := s.newMessage(params.RoomID, protocol.TypeRoomStatus, payload)
		if err != nil {
			return msg, nil, err
		}
		return msg, &reply, nil

	case protocol.TypeJoin:
		members, err := s.members(ctx, ids, state.HostID)
		if err != nil {
			return msg, nil, err
		}
		return withPayload(msg, protocol.MembersPayload{Members: members})

	case protocol.TypeRequestHold:
		claim, err := s.roomRepo.ClaimHolder(ctx, params.RoomID, params.SenderID)
		if err != nil {
			return msg, nil, err
		}
		if !claim.Claimed {
			s.metrics.holdConflicts.Inc()
			s.logger.DebugContext(ctx, "hold conflict", "holder_id", claim.HolderID)
			return s.holdReply(msg, params, claim.HolderID)
		}
		return withPayload(msg, protocol.HoldPayload{HolderID: params.SenderID})

	// A release names the holder it frees. A release for a hold that has
	// since changed hands is answered with the current holder instead.
	case protocol.TypeRequestReleaseAll:
		var expected string
		if len(msg.Payload) > 0 {
			p, err := protocol.Decode[protocol.HoldPayload](msg)
			if err != nil {
				return msg, nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
			}
			expected = p.HolderID
		}
		if state.HolderID != "" && expected != "" && expected != state.HolderID {
			s.metrics.holdConflicts.Inc()
			return s.holdReply(msg, params, state.HolderID)
		}
		if state.HolderID != "" && state.HolderID != params.SenderID && state.HostID != params.SenderID {
			return msg, nil, fmt.Errorf("%w: only the holder or the host may release", ErrPermissionDenied)
		}

		released, err := s.roomRepo.ReleaseHolder(ctx, params.RoomID, expected)
		if err != nil {
			return msg, nil, err
		}
		if !released {
			// claimed again since the state was read
			current, err := s.roomRepo.GetRoomState(ctx, params.RoomID)
			if err != nil {
				return msg, nil, err
			}
			if current.HolderID != "" {
				return s.holdReply(msg, params, current.HolderID)
			}
			return msg, nil, errNothingToDeliver
		}

	case protocol.TypeSendTiming:
		if state.HostID != params.SenderID {
			return msg, nil, fmt.Errorf("%w: timing is only accepted from the host", ErrPermissionDenied)
		}
		p, err := protocol.Decode[protocol.TimingPayload](msg)
		if err != nil {
			return msg, nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		if err := s.roomRepo.UpdatePlayerTiming(ctx, &room.UpdatePlayerTimingParams{
			RoomID:    params.RoomID,
			Timing:    p.Timing,
			UpdatedAt: now,
		}); err != nil {
			return msg, nil, err
		}

	case protocol.TypePlayAll, protocol.TypePauseAll:
		if err := s.roomRepo.UpdatePlayerState(ctx, &room.UpdatePlayerStateParams{
			RoomID:    params.RoomID,
			IsPlaying: msg.Type == protocol.TypePlayAll,
			UpdatedAt: now,
		}); err != nil {
			return msg, nil, err
		}

	case protocol.TypePlaybackRateChangeAll:
		p, err := protocol.Decode[protocol.RatePayload](msg)
		if err != nil || p.Rate <= 0 {
			return msg, nil, fmt.Errorf("%w: playback rate must be positive", ErrInvalidPayload)
		}
		if err := s.roomRepo.UpdatePlayerRate(ctx, &room.UpdatePlayerRateParams{
			RoomID:       params.RoomID,
			PlaybackRate: p.Rate,
			UpdatedAt:    now,
		}); err != nil {
			return msg, nil, err
		}

	case protocol.TypeSendURL:
		member, err := s.roomRepo.GetMember(ctx, params.SenderID)
		if err != nil {
			return msg, nil, err
		}
		if !member.CanVideo {
			return msg, nil, fmt.Errorf("%w: member may not change the video", ErrPermissionDenied)
		}
		p, err := protocol.Decode[protocol.URLPayload](msg)
		if err != nil || p.URL == "" {
			return msg, nil, fmt.Errorf("%w: url is required", ErrInvalidPayload)
		}
		if err := s.roomRepo.SetMediaURL(ctx, &room.SetMediaURLParams{
			RoomID:    params.RoomID,
			MediaURL:  p.URL,
			UpdatedAt: now,
		}); err != nil {
			return msg, nil, err
		}
	}

	return msg, nil, nil
}

func (s service) recipients(target protocol.Target, msg protocol.Message, ids []string, state room.RoomState) ([]string, error) {
	switch target {
	case protocol.TargetRoom:
		return ids, nil
	case protocol.TargetSender:
		return []string{msg.From}, nil
	case protocol.TargetHost:
		if state.HostID == "" {
			return nil, ErrNoHost
		}
		return []string{state.HostID}, nil
	case protocol.TargetAddressed:
		if !slices.Contains(ids, msg.To) {
			return nil, fmt.Errorf("%w: %q", ErrRecipientNotFound, msg.To)
		}
		return []string{msg.To}, nil
	default:
		others := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != msg.From {
				others = append(others, id)
			}
		}
		return others, nil
	}
}

// SetMediaURL stores a room's media URL from the persistence endpoint.
func (s service) SetMediaURL(ctx context.Context, params *SetMediaURLParams) error {
	if err := s.roomRepo.SetMediaURL(ctx, &room.SetMediaURLParams{
		RoomID:    params.RoomID,
		MediaURL:  params.URL,
		UpdatedAt: s.now().Unix(),
	}); err != nil {
		return fmt.Errorf("failed to set media url: %w", err)
	}

	return nil
}

func (s service) newMessage(roomID, msgType string, payload any) (protocol.Message, error) {
	msg, err := protocol.New(msgType, payload)
	if err != nil {
		return protocol.Message{}, fmt.Errorf("failed to build %s: %w", msgType, err)
	}
	msg.RoomID = roomID

	return msg, nil
}

// holdReply tells the sender who holds the buffer. It reads as if sent by
// the holder and replaces normal routing.
func (s service) holdReply(msg protocol.Message, params *RouteParams, holderID string) (protocol.Message, *protocol.Message, error) {
	reply, err := s.newMessage(params.RoomID, protocol.TypeHold, protocol.HoldPayload{HolderID: holderID})
	if err != nil {
		return msg, nil, err
	}
	reply.From = holderID
	reply.To = params.SenderID

	return msg, &reply, nil
}

func withPayload(msg protocol.Message, payload any) (protocol.Message, *protocol.Message, error) {
	built, err := protocol.New(msg.Type, payload)
	if err != nil {
		return msg, nil, err
	}
	msg.Payload = built.Payload

	return msg, nil, nil
}

func fanout(deliveries []Delivery, to []string, msg protocol.Message) []Delivery {
	for _, id := range to {
		deliveries = append(deliveries, Delivery{To: id, Message: msg})
	}

	return deliveries
}
