package relay

import (
	"github.com/sharetube/playsync/internal/protocol"
)

// Delivery is one message bound for one connection.
type Delivery struct {
	To      string           `json:"to"`
	Message protocol.Message `json:"message"`
}

type Player struct {
	MediaURL     string  `json:"media_url"`
	IsPlaying    bool    `json:"is_playing"`
	Timing       float64 `json:"timing"`
	PlaybackRate float64 `json:"playback_rate"`
	UpdatedAt    int64   `json:"updated_at"`
}

type ConnectParams struct {
	RoomID   string
	UserID   string
	CanChat  bool
	CanVideo bool
}

type ConnectResponse struct {
	ConnectionID string
	IsHost       bool
}

type DisconnectParams struct {
	RoomID       string
	ConnectionID string
}

type DisconnectResponse struct {
	Deliveries    []Delivery
	IsRoomDeleted bool
}

type RouteParams struct {
	RoomID   string
	SenderID string
	Message  protocol.Message
}

type RouteResponse struct {
	Deliveries []Delivery
}

type SetMediaURLParams struct {
	RoomID string `json:"room_id" validate:"required"`
	URL    string `json:"url" validate:"required,youtube_url,max=2048"`
}

type GetRoomResponse struct {
	RoomID   string            `json:"room_id"`
	HostID   string            `json:"host_id"`
	HolderID string            `json:"holder_id"`
	IsBusy   bool              `json:"is_busy"`
	Members  []protocol.Member `json:"members"`
	Player   *Player           `json:"player"`
}
