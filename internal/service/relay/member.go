package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sharetube/playsync/internal/protocol"
	"github.com/sharetube/playsync/internal/repository/room"
)

// Connect admits a new connection. The first member of a room becomes its
// host.
func (s service) Connect(ctx context.Context, params *ConnectParams) (ConnectResponse, error) {
	ids, err := s.roomRepo.GetMemberIDs(ctx, params.RoomID)
	if err != nil {
		return ConnectResponse{}, fmt.Errorf("failed to get member ids: %w", err)
	}

	if len(ids) >= s.membersLimit {
		return ConnectResponse{}, ErrRoomFull
	}

	connectionID := uuid.NewString()
	if err := s.roomRepo.AddMember(ctx, &room.AddMemberParams{
		ConnectionID: connectionID,
		UserID:       params.UserID,
		CanChat:      params.CanChat,
		CanVideo:     params.CanVideo,
		RoomID:       params.RoomID,
	}); err != nil {
		return ConnectResponse{}, fmt.Errorf("failed to add member: %w", err)
	}

	hostID, err := s.roomRepo.ClaimHost(ctx, params.RoomID, connectionID)
	if err != nil {
		return ConnectResponse{}, fmt.Errorf("failed to claim host: %w", err)
	}

	s.metrics.connectionsOpen.Inc()
	s.logger.InfoContext(ctx, "member connected", "connection_id", connectionID, "is_host", hostID == connectionID)

	return ConnectResponse{
		ConnectionID: connectionID,
		IsHost:       hostID == connectionID,
	}, nil
}

// Disconnect removes a connection. If it held the buffer the hold is cleared,
// if it was host the oldest remaining member takes over; the rest of the room
// learns both through SET_BUFFERER, followed by a fresh MEMBERS snapshot.
func (s service) Disconnect(ctx context.Context, params *DisconnectParams) (DisconnectResponse, error) {
	s.metrics.connectionsOpen.Dec()

	if err := s.roomRepo.RemoveMember(ctx, &room.RemoveMemberParams{
		ConnectionID: params.ConnectionID,
		RoomID:       params.RoomID,
	}); err != nil && !errors.Is(err, room.ErrMemberNotFound) {
		return DisconnectResponse{}, fmt.Errorf("failed to remove member: %w", err)
	}

	ids, err := s.roomRepo.GetMemberIDs(ctx, params.RoomID)
	if err != nil {
		return DisconnectResponse{}, fmt.Errorf("failed to get member ids: %w", err)
	}

	if len(ids) == 0 {
		if err := s.roomRepo.RemoveRoom(ctx, params.RoomID); err != nil {
			return DisconnectResponse{}, fmt.Errorf("failed to remove room: %w", err)
		}
		s.metrics.roomsDeleted.Inc()

		return DisconnectResponse{IsRoomDeleted: true}, nil
	}

	state, err := s.roomRepo.GetRoomState(ctx, params.RoomID)
	if err != nil {
		return DisconnectResponse{}, fmt.Errorf("failed to get room state: %w", err)
	}

	changed := false
	if state.HolderID == params.ConnectionID {
		if _, err := s.roomRepo.ReleaseHolder(ctx, params.RoomID, params.ConnectionID); err != nil {
			return DisconnectResponse{}, fmt.Errorf("failed to release holder: %w", err)
		}
		state.HolderID = ""
		changed = true
	}

	if state.HostID == params.ConnectionID || state.HostID == "" {
		state.HostID = ids[0]
		if err := s.roomRepo.SetHostID(ctx, params.RoomID, state.HostID); err != nil {
			return DisconnectResponse{}, fmt.Errorf("failed to set host id: %w", err)
		}
		changed = true
		s.logger.InfoContext(ctx, "host reassigned", "host_id", state.HostID)
	}

	members, err := s.members(ctx, ids, state.HostID)
	if err != nil {
		return DisconnectResponse{}, err
	}

	var deliveries []Delivery
	if changed {
		msg, err := s.newMessage(params.RoomID, protocol.TypeSetBufferer, protocol.SetBuffererPayload{
			HolderID: state.HolderID,
			HostID:   state.HostID,
		})
		if err != nil {
			return DisconnectResponse{}, err
		}
		deliveries = fanout(deliveries, ids, msg)
	}

	msg, err := s.newMessage(params.RoomID, protocol.TypeMembers, protocol.MembersPayload{Members: members})
	if err != nil {
		return DisconnectResponse{}, err
	}

	return DisconnectResponse{Deliveries: fanout(deliveries, ids, msg)}, nil
}

func (s service) GetRoom(ctx context.Context, roomID string) (GetRoomResponse, error) {
	ids, err := s.roomRepo.GetMemberIDs(ctx, roomID)
	if err != nil {
		return GetRoomResponse{}, fmt.Errorf("failed to get member ids: %w", err)
	}
	if len(ids) == 0 {
		return GetRoomResponse{}, ErrRoomNotFound
	}

	state, err := s.roomRepo.GetRoomState(ctx, roomID)
	if err != nil {
		return GetRoomResponse{}, fmt.Errorf("failed to get room state: %w", err)
	}

	members, err := s.members(ctx, ids, state.HostID)
	if err != nil {
		return GetRoomResponse{}, err
	}

	resp := GetRoomResponse{
		RoomID:   roomID,
		HostID:   state.HostID,
		HolderID: state.HolderID,
		IsBusy:   state.HolderID != "",
		Members:  members,
	}

	player, err := s.roomRepo.GetPlayer(ctx, roomID)
	switch {
	case err == nil:
		resp.Player = &Player{
			MediaURL:     player.MediaURL,
			IsPlaying:    player.IsPlaying,
			Timing:       player.Timing,
			PlaybackRate: player.PlaybackRate,
			UpdatedAt:    player.UpdatedAt,
		}
		if resp.Player.PlaybackRate <= 0 {
			resp.Player.PlaybackRate = 1
		}
	case !errors.Is(err, room.ErrPlayerNotFound):
		return GetRoomResponse{}, fmt.Errorf("failed to get player: %w", err)
	}

	return resp, nil
}

// members builds the snapshot in join order.
func (s service) members(ctx context.Context, ids []string, hostID string) ([]protocol.Member, error) {
	members := make([]protocol.Member, 0, len(ids))
	for _, id := range ids {
		m, err := s.roomRepo.GetMember(ctx, id)
		if err != nil {
			if errors.Is(err, room.ErrMemberNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to get member: %w", err)
		}

		members = append(members, protocol.Member{
			ConnectionID: id,
			UserID:       m.UserID,
			IsHost:       id == hostID,
			CanChat:      m.CanChat,
			CanVideo:     m.CanVideo,
		})
	}

	return members, nil
}
