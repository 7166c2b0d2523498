package redis

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sharetube/playsync/internal/repository/room"
)

func (r repo) getStateKey(roomID string) string {
	return "room:" + roomID + ":state"
}

func (r repo) GetRoomState(ctx context.Context, roomID string) (room.RoomState, error) {
	var state room.RoomState
	if err := r.rc.HGetAll(ctx, r.getStateKey(roomID)).Scan(&state); err != nil {
		return room.RoomState{}, fmt.Errorf("failed to get room state: %w", err)
	}

	return state, nil
}

func (r repo) SetHostID(ctx context.Context, roomID, hostID string) error {
	r.logger.DebugContext(ctx, "called", "room_id", roomID, "host_id", hostID)
	key := r.getStateKey(roomID)
	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, key, "host_id", hostID)
	pipe.Expire(ctx, key, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set host id: %w", err)
	}

	return nil
}

// ClaimHost makes connectionID the host of a room that has none and returns
// the room's host either way.
func (r repo) ClaimHost(ctx context.Context, roomID, connectionID string) (string, error) {
	key := r.getStateKey(roomID)
	pipe := r.rc.TxPipeline()
	pipe.HSetNX(ctx, key, "host_id", connectionID)
	pipe.Expire(ctx, key, r.expireDuration)
	host := pipe.HGet(ctx, key, "host_id")

	if err := r.executePipe(ctx, pipe); err != nil {
		return "", fmt.Errorf("failed to claim host: %w", err)
	}

	return host.Val(), nil
}

// ClaimHolder grants the room's buffer hold to connectionID unless another
// connection holds it. Reclaiming an own hold succeeds.
func (r repo) ClaimHolder(ctx context.Context, roomID, connectionID string) (room.ClaimHolderResponse, error) {
	res, err := r.rc.EvalSha(ctx, r.claimHolderScript,
		[]string{r.getStateKey(roomID)},
		connectionID, strconv.Itoa(int(r.expireDuration.Seconds())),
	).Slice()
	if err != nil {
		return room.ClaimHolderResponse{}, fmt.Errorf("failed to claim holder: %w", err)
	}
	if len(res) != 2 {
		return room.ClaimHolderResponse{}, fmt.Errorf("failed to claim holder: unexpected reply %v", res)
	}

	claimed, _ := res[0].(int64)
	holderID, _ := res[1].(string)
	r.logger.DebugContext(ctx, "claim holder", "room_id", roomID, "connection_id", connectionID, "holder_id", holderID)

	return room.ClaimHolderResponse{
		HolderID: holderID,
		Claimed:  claimed == 1,
	}, nil
}

// ReleaseHolder clears the hold. With a non-empty expected holder it only
// clears when that connection still holds. It reports whether a hold was
// cleared.
func (r repo) ReleaseHolder(ctx context.Context, roomID, expected string) (bool, error) {
	n, err := r.rc.EvalSha(ctx, r.releaseHolderScript, []string{r.getStateKey(roomID)}, expected).Int()
	if err != nil {
		return false, fmt.Errorf("failed to release holder: %w", err)
	}

	return n == 1, nil
}

// RemoveRoom drops every key of an empty room.
func (r repo) RemoveRoom(ctx context.Context, roomID string) error {
	r.logger.DebugContext(ctx, "called", "room_id", roomID)
	if err := r.rc.Del(ctx,
		r.getStateKey(roomID),
		r.getPlayerKey(roomID),
		r.getMemberListKey(roomID),
	).Err(); err != nil {
		return fmt.Errorf("failed to remove room: %w", err)
	}

	return nil
}
