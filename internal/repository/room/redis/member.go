package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/playsync/internal/repository/room"
)

func (r repo) getMemberKey(connectionID string) string {
	return "member:" + connectionID
}

func (r repo) getMemberListKey(roomID string) string {
	return "room:" + roomID + ":memberlist"
}

// AddMember stores the member and appends it to the room's join-ordered list.
func (r repo) AddMember(ctx context.Context, params *room.AddMemberParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()

	member := room.Member{
		UserID:   params.UserID,
		CanChat:  params.CanChat,
		CanVideo: params.CanVideo,
		RoomID:   params.RoomID,
	}
	memberKey := r.getMemberKey(params.ConnectionID)
	r.hSetStruct(ctx, pipe, memberKey, &member)
	pipe.Expire(ctx, memberKey, r.expireDuration)

	memberListKey := r.getMemberListKey(params.RoomID)
	r.addWithIncrement(ctx, pipe, memberListKey, params.ConnectionID)
	pipe.Expire(ctx, memberListKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	return nil
}

func (r repo) RemoveMember(ctx context.Context, params *room.RemoveMemberParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)
	pipe := r.rc.TxPipeline()
	pipe.ZRem(ctx, r.getMemberListKey(params.RoomID), params.ConnectionID)
	del := pipe.Del(ctx, r.getMemberKey(params.ConnectionID))

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	if del.Val() == 0 {
		return room.ErrMemberNotFound
	}

	return nil
}

func (r repo) GetMember(ctx context.Context, connectionID string) (room.Member, error) {
	var member room.Member
	if err := r.rc.HGetAll(ctx, r.getMemberKey(connectionID)).Scan(&member); err != nil {
		return room.Member{}, fmt.Errorf("failed to get member: %w", err)
	}

	if member.RoomID == "" {
		return room.Member{}, room.ErrMemberNotFound
	}

	return member, nil
}

// GetMemberIDs returns connection ids ordered by join time, oldest first.
func (r repo) GetMemberIDs(ctx context.Context, roomID string) ([]string, error) {
	ids, err := r.rc.ZRange(ctx, r.getMemberListKey(roomID), 0, -1).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get member ids: %w", err)
	}

	return ids, nil
}
