package inmemory

import (
	"log/slog"
	"sync"

	"github.com/sharetube/playsync/internal/repository/connection"
	"golang.org/x/exp/maps"
)

type entry struct {
	conn   connection.Conn
	roomID string
}

// repo holds the connections terminated on this instance.
type repo struct {
	conns  map[string]entry
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		conns:  make(map[string]entry),
		logger: logger,
	}
}

func (r *repo) Add(conn connection.Conn, connectionID, roomID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug("connection.inmemory.Add", "connection_id", connectionID, "room_id", roomID)
	if _, ok := r.conns[connectionID]; ok {
		return connection.ErrAlreadyExists
	}

	r.conns[connectionID] = entry{conn: conn, roomID: roomID}
	return nil
}

// Remove forgets the connection without closing it.
func (r *repo) Remove(connectionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debug("connection.inmemory.Remove", "connection_id", connectionID)
	if _, ok := r.conns[connectionID]; !ok {
		return connection.ErrNotFound
	}

	delete(r.conns, connectionID)
	return nil
}

func (r *repo) GetConn(connectionID string) (connection.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[connectionID]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return e.conn, nil
}

func (r *repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns)
}

// CloseAll closes and forgets every connection. Used on shutdown.
func (r *repo) CloseAll() {
	r.mu.Lock()
	ids := maps.Keys(r.conns)
	conns := make([]connection.Conn, 0, len(ids))
	for _, id := range ids {
		conns = append(conns, r.conns[id].conn)
	}
	maps.Clear(r.conns)
	r.mu.Unlock()

	for _, c := range conns {
		if err := c.Close(); err != nil {
			r.logger.Debug("connection.inmemory.CloseAll", "error", err)
		}
	}
}
