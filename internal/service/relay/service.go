package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sharetube/playsync/internal/repository/room"
)

var (
	ErrRoomFull           = errors.New("room is full")
	ErrRoomNotFound       = errors.New("room not found")
	ErrNotMember          = errors.New("sender is not a member of the room")
	ErrRecipientNotFound  = errors.New("recipient not found")
	ErrNoHost             = errors.New("room has no host")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidPayload     = errors.New("invalid payload")
)

type iRoomRepo interface {
	// member
	AddMember(context.Context, *room.AddMemberParams) error
	RemoveMember(context.Context, *room.RemoveMemberParams) error
	GetMember(context.Context, string) (room.Member, error)
	GetMemberIDs(context.Context, string) ([]string, error)
	// arbitration
	GetRoomState(context.Context, string) (room.RoomState, error)
	ClaimHost(ctx context.Context, roomID, connectionID string) (string, error)
	SetHostID(ctx context.Context, roomID, hostID string) error
	ClaimHolder(ctx context.Context, roomID, connectionID string) (room.ClaimHolderResponse, error)
	ReleaseHolder(ctx context.Context, roomID, expected string) (bool, error)
	RemoveRoom(context.Context, string) error
	// player
	GetPlayer(context.Context, string) (room.Player, error)
	SetMediaURL(context.Context, *room.SetMediaURLParams) error
	UpdatePlayerState(context.Context, *room.UpdatePlayerStateParams) error
	UpdatePlayerTiming(context.Context, *room.UpdatePlayerTimingParams) error
	UpdatePlayerRate(context.Context, *room.UpdatePlayerRateParams) error
}

type service struct {
	roomRepo     iRoomRepo
	metrics      *Metrics
	membersLimit int
	now          func() time.Time
	logger       *slog.Logger
}

func NewService(roomRepo iRoomRepo, metrics *Metrics, membersLimit int, logger *slog.Logger) *service {
	return &service{
		roomRepo:     roomRepo,
		metrics:      metrics,
		membersLimit: membersLimit,
		now:          time.Now,
		logger:       logger,
	}
}
