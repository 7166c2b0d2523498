package controller

import "context"

type contextKey int

const (
	roomIDCtxKey contextKey = iota
	connectionIDCtxKey
)

func (c controller) getRoomIDFromCtx(ctx context.Context) string {
	roomID, ok := ctx.Value(roomIDCtxKey).(string)
	if !ok {
		return ""
	}

	return roomID
}

func (c controller) getConnectionIDFromCtx(ctx context.Context) string {
	connectionID, ok := ctx.Value(connectionIDCtxKey).(string)
	if !ok {
		return ""
	}

	return connectionID
}
