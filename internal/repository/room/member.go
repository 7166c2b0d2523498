package room

// Member is one live connection in a room.
type Member struct {
	UserID   string `redis:"user_id"`
	CanChat  bool   `redis:"can_chat"`
	CanVideo bool   `redis:"can_video"`
	RoomID   string `redis:"room_id"`
}

type AddMemberParams struct {
	ConnectionID string
	UserID       string
	CanChat      bool
	CanVideo     bool
	RoomID       string
}

type RemoveMemberParams struct {
	ConnectionID string
	RoomID       string
}
