package redis

import (
	"context"
	"fmt"

	"github.com/sharetube/playsync/internal/repository/room"
)

func (r repo) getPlayerKey(roomID string) string {
	return "room:" + roomID + ":player"
}

func (r repo) GetPlayer(ctx context.Context, roomID string) (room.Player, error) {
	playerKey := r.getPlayerKey(roomID)
	cmd := r.rc.HGetAll(ctx, playerKey)
	if err := cmd.Err(); err != nil {
		return room.Player{}, fmt.Errorf("failed to get player: %w", err)
	}
	if len(cmd.Val()) == 0 {
		return room.Player{}, room.ErrPlayerNotFound
	}

	var player room.Player
	if err := cmd.Scan(&player); err != nil {
		return room.Player{}, fmt.Errorf("failed to scan player: %w", err)
	}

	r.rc.Expire(ctx, playerKey, r.expireDuration)

	return player, nil
}

func (r repo) SetMediaURL(ctx context.Context, params *room.SetMediaURLParams) error {
	return r.updatePlayer(ctx, params.RoomID,
		"media_url", params.MediaURL,
		"updated_at", params.UpdatedAt,
	)
}

func (r repo) UpdatePlayerState(ctx context.Context, params *room.UpdatePlayerStateParams) error {
	return r.updatePlayer(ctx, params.RoomID,
		"is_playing", params.IsPlaying,
		"updated_at", params.UpdatedAt,
	)
}

func (r repo) UpdatePlayerTiming(ctx context.Context, params *room.UpdatePlayerTimingParams) error {
	return r.updatePlayer(ctx, params.RoomID,
		"timing", params.Timing,
		"updated_at", params.UpdatedAt,
	)
}

func (r repo) UpdatePlayerRate(ctx context.Context, params *room.UpdatePlayerRateParams) error {
	return r.updatePlayer(ctx, params.RoomID,
		"playback_rate", params.PlaybackRate,
		"updated_at", params.UpdatedAt,
	)
}

func (r repo) updatePlayer(ctx context.Context, roomID string, values ...interface{}) error {
	playerKey := r.getPlayerKey(roomID)
	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, playerKey, values...)
	pipe.Expire(ctx, playerKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	return nil
}
