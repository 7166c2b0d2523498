package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/sharetube/playsync/internal/protocol"
	"github.com/sharetube/playsync/internal/repository/connection"
	"github.com/sharetube/playsync/internal/service/relay"
	"github.com/sharetube/playsync/pkg/ctxlogger"
	"github.com/sharetube/playsync/pkg/wsrouter"
)

const (
	aliveType         = protocol.TypeAlive
	disconnectTimeout = 5 * time.Second
)

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New()
	mux.Use(c.wsRequestIdMw(), c.wsLoggerMw(), c.wsRateLimitMw())

	for _, msgType := range protocol.SentTypes() {
		wsrouter.Handle[protocol.Message](mux, msgType, c.handleRoute)
	}
	wsrouter.Handle[json.RawMessage](mux, aliveType, c.handleAlive)
	mux.OnError(c.handleWSError)

	return mux
}

func (c controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room-id")
	userID, err := c.getQueryParam(r, "user-id")
	if err != nil {
		c.writeJSON(w, http.StatusBadRequest, envelope{"error": err.Error()})
		return
	}

	resp, err := c.relayService.Connect(r.Context(), &relay.ConnectParams{
		RoomID:   roomID,
		UserID:   userID,
		CanChat:  c.getBoolQueryParam(r, "can-chat"),
		CanVideo: c.getBoolQueryParam(r, "can-video"),
	})
	if err != nil {
		if errors.Is(err, relay.ErrRoomFull) {
			c.writeJSON(w, http.StatusConflict, envelope{"error": err.Error()})
			return
		}
		c.logger.ErrorContext(r.Context(), "failed to connect member", "room_id", roomID, "error", err)
		c.writeJSON(w, http.StatusInternalServerError, envelope{"error": "internal error"})
		return
	}

	ctx := ctxlogger.AppendCtx(r.Context(), slog.String("room_id", roomID))
	ctx = ctxlogger.AppendCtx(ctx, slog.String("connection_id", resp.ConnectionID))
	ctx = context.WithValue(ctx, roomIDCtxKey, roomID)
	ctx = context.WithValue(ctx, connectionIDCtxKey, resp.ConnectionID)
	defer c.disconnect(ctx, roomID, resp.ConnectionID)

	ws, err := c.upgrader.Upgrade(w, r, c.connectionIDHeader(resp.ConnectionID))
	if err != nil {
		c.logger.WarnContext(ctx, "failed to upgrade connection", "error", err)
		return
	}

	conn := connection.NewWSConn(ws, c.cfg.WriteTimeout)
	defer conn.Close()

	if err := c.connRepo.Add(conn, resp.ConnectionID, roomID); err != nil {
		c.logger.ErrorContext(ctx, "failed to register connection", "error", err)
		return
	}
	c.logger.InfoContext(ctx, "websocket connected", "is_host", resp.IsHost)

	if err := c.wsmux.ServeConn(ctx, ws); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.InfoContext(ctx, "websocket closed", "error", err)
	}
}

// disconnect runs after the read loop ends, with a context detached from the
// finished request.
func (c controller) disconnect(ctx context.Context, roomID, connectionID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cancel()

	if err := c.connRepo.Remove(connectionID); err != nil && !errors.Is(err, connection.ErrNotFound) {
		c.logger.WarnContext(ctx, "failed to remove connection", "error", err)
	}
	c.limiters.remove(connectionID)

	resp, err := c.relayService.Disconnect(ctx, &relay.DisconnectParams{
		RoomID:       roomID,
		ConnectionID: connectionID,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to disconnect member", "error", err)
		return
	}
	if resp.IsRoomDeleted {
		c.logger.InfoContext(ctx, "room deleted")
		return
	}

	c.deliver(ctx, roomID, resp.Deliveries)
}

func (c controller) handleRoute(ctx context.Context, _ *websocket.Conn, msg protocol.Message) error {
	roomID := c.getRoomIDFromCtx(ctx)
	resp, err := c.relayService.Route(ctx, &relay.RouteParams{
		RoomID:   roomID,
		SenderID: c.getConnectionIDFromCtx(ctx),
		Message:  msg,
	})
	if err != nil {
		return err
	}

	c.deliver(ctx, roomID, resp.Deliveries)
	return nil
}

func (c controller) handleAlive(context.Context, *websocket.Conn, json.RawMessage) error {
	return nil
}

// handleWSError reports a rejected frame to its sender. The connection stays
// open unless the report itself cannot be written.
func (c controller) handleWSError(ctx context.Context, _ *websocket.Conn, err error) error {
	c.logger.InfoContext(ctx, "websocket message rejected", "error", err)

	conn, connErr := c.connRepo.GetConn(c.getConnectionIDFromCtx(ctx))
	if connErr != nil {
		return connErr
	}

	msg, buildErr := protocol.New(protocol.TypeError, protocol.ErrorPayload{Message: err.Error()})
	if buildErr != nil {
		return buildErr
	}
	msg.RoomID = c.getRoomIDFromCtx(ctx)

	return conn.WriteJSON(msg)
}

// deliver writes deliveries for local connections and hands the rest to the
// fanout, keeping per-recipient order.
func (c controller) deliver(ctx context.Context, roomID string, deliveries []relay.Delivery) {
	var remote []relay.Delivery
	for _, d := range deliveries {
		conn, err := c.connRepo.GetConn(d.To)
		if err != nil {
			remote = append(remote, d)
			continue
		}

		if err := conn.WriteJSON(d.Message); err != nil {
			c.logger.WarnContext(ctx, "failed to deliver message", "to", d.To, "type", d.Message.Type, "error", err)
		}
	}

	if len(remote) == 0 || c.fanout == nil {
		return
	}
	if err := c.fanout.Publish(ctx, roomID, remote); err != nil {
		c.logger.ErrorContext(ctx, "failed to publish deliveries", "count", len(remote), "error", err)
	}
}

// HandleRemoteDeliveries writes deliveries published by another instance to
// the connections terminated here.
func (c controller) HandleRemoteDeliveries(ctx context.Context, roomID string, deliveries []relay.Delivery) {
	for _, d := range deliveries {
		conn, err := c.connRepo.GetConn(d.To)
		if err != nil {
			continue
		}

		if err := conn.WriteJSON(d.Message); err != nil {
			c.logger.WarnContext(ctx, "failed to deliver remote message", "room_id", roomID, "to", d.To, "error", err)
		}
	}
}
