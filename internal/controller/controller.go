package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sharetube/playsync/internal/repository/connection"
	"github.com/sharetube/playsync/internal/service/relay"
	"github.com/sharetube/playsync/pkg/validator"
	"github.com/sharetube/playsync/pkg/wsrouter"
	"github.com/sharetube/playsync/pkg/ytvideodata"
	"golang.org/x/time/rate"
)

type iRelayService interface {
	Connect(context.Context, *relay.ConnectParams) (relay.ConnectResponse, error)
	Disconnect(context.Context, *relay.DisconnectParams) (relay.DisconnectResponse, error)
	Route(context.Context, *relay.RouteParams) (relay.RouteResponse, error)
	GetRoom(context.Context, string) (relay.GetRoomResponse, error)
	SetMediaURL(context.Context, *relay.SetMediaURLParams) error
}

type iConnRepo interface {
	Add(conn connection.Conn, connectionID, roomID string) error
	Remove(connectionID string) error
	GetConn(connectionID string) (connection.Conn, error)
}

// iFanout reaches connections served by other relay instances.
type iFanout interface {
	Publish(ctx context.Context, roomID string, deliveries []relay.Delivery) error
}

type iVideoData interface {
	Get(ctx context.Context, videoID string) (*ytvideodata.VideoData, error)
}

type Config struct {
	MessagesPerSecond float64
	MessagesBurst     int
	WriteTimeout      time.Duration
	VideoDataTimeout  time.Duration
}

type controller struct {
	relayService iRelayService
	connRepo     iConnRepo
	fanout       iFanout
	videoData    iVideoData
	metrics      *relay.Metrics
	gatherer     prometheus.Gatherer
	limiters     *rateLimiterStore
	upgrader     websocket.Upgrader
	validate     *validator.Validator
	wsmux        *wsrouter.WSRouter
	cfg          Config
	logger       *slog.Logger
}

// NewController wires the relay's HTTP surface. videoData may be nil.
func NewController(
	relayService iRelayService,
	connRepo iConnRepo,
	fanout iFanout,
	videoData iVideoData,
	metrics *relay.Metrics,
	gatherer prometheus.Gatherer,
	cfg Config,
	logger *slog.Logger,
) (*controller, error) {
	if cfg.VideoDataTimeout <= 0 {
		cfg.VideoDataTimeout = 3 * time.Second
	}

	validate := validator.NewValidator()
	if err := validate.RegisterString("youtube_url", "%s must be a youtube video link", ytvideodata.IsVideoURL); err != nil {
		return nil, err
	}

	c := &controller{
		relayService: relayService,
		connRepo:     connRepo,
		fanout:       fanout,
		videoData:    videoData,
		metrics:      metrics,
		gatherer:     gatherer,
		limiters:     newRateLimiterStore(rate.Limit(cfg.MessagesPerSecond), cfg.MessagesBurst),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validate,
		cfg:      cfg,
		logger:   logger,
	}
	c.wsmux = c.getWSRouter()

	return c, nil
}
