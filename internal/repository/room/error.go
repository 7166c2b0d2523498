package room

import "errors"

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrRoomNotFound   = errors.New("room not found")
	ErrPlayerNotFound = errors.New("player not found")
)
