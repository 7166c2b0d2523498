package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	busRedis "github.com/sharetube/playsync/internal/bus/redis"
	"github.com/sharetube/playsync/internal/controller"
	"github.com/sharetube/playsync/internal/repository/connection/inmemory"
	roomRedis "github.com/sharetube/playsync/internal/repository/room/redis"
	"github.com/sharetube/playsync/internal/service/relay"
	"github.com/sharetube/playsync/pkg/ctxlogger"
	"github.com/sharetube/playsync/pkg/redisclient"
	"github.com/sharetube/playsync/pkg/retry"
	"github.com/sharetube/playsync/pkg/ytvideodata"
)

type AppConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	LogLevel          string        `json:"log_level"`
	InstanceID        string        `json:"instance_id"`
	MembersLimit      int           `json:"members_limit"`
	RoomTTL           time.Duration `json:"room_ttl"`
	MessagesPerSecond float64       `json:"messages_per_second"`
	MessagesBurst     int           `json:"messages_burst"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	VideoLookup       bool          `json:"video_lookup"`
	RedisPort         int           `json:"redis_port"`
	RedisHost         string        `json:"redis_host"`
	RedisPassword     string        `json:"-"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.MembersLimit < 1 {
		return errors.New("members limit must be greater than 0")
	}
	if cfg.RoomTTL <= 0 {
		return errors.New("room ttl must be positive")
	}
	if cfg.MessagesPerSecond < 0 {
		return errors.New("messages per second must not be negative")
	}
	if cfg.MessagesPerSecond > 0 && cfg.MessagesBurst < 1 {
		return errors.New("messages burst must be greater than 0 when rate limiting")
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}

	return nil
}

// relayApp is one relay instance: its handler plus the redis fanout that
// connects it to the other instances.
type relayApp struct {
	handler  http.Handler
	fanout   *busRedis.Fanout
	connRepo interface{ CloseAll() }
	logger   *slog.Logger
	deliver  func(context.Context, string, []relay.Delivery)
}

func newRelayApp(cfg *AppConfig, rc *redis.Client, logger *slog.Logger) (*relayApp, error) {
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := relay.NewMetrics(reg)

	roomRepo := roomRedis.NewRepo(rc, cfg.RoomTTL, logger)
	connRepo := inmemory.NewRepo(logger)
	fanout := busRedis.NewFanout(rc, instanceID, logger)
	relayService := relay.NewService(roomRepo, metrics, cfg.MembersLimit, logger)

	var videoData *ytvideodata.Client
	if cfg.VideoLookup {
		videoData = ytvideodata.NewClient(10 * time.Second)
	}

	ctrl, err := controller.NewController(relayService, connRepo, fanout, optionalVideoData(videoData), metrics, reg, controller.Config{
		MessagesPerSecond: cfg.MessagesPerSecond,
		MessagesBurst:     cfg.MessagesBurst,
		WriteTimeout:      cfg.WriteTimeout,
	}, logger.With("instance_id", instanceID))
	if err != nil {
		return nil, fmt.Errorf("failed to create controller: %w", err)
	}

	return &relayApp{
		handler:  ctrl.GetMux(),
		fanout:   fanout,
		connRepo: connRepo,
		logger:   logger,
		deliver:  ctrl.HandleRemoteDeliveries,
	}, nil
}

// optionalVideoData keeps a nil client from becoming a non-nil interface.
func optionalVideoData(c *ytvideodata.Client) interface {
	Get(context.Context, string) (*ytvideodata.VideoData, error)
} {
	if c == nil {
		return nil
	}

	return c
}

// subscribe relays envelopes from other instances until ctx is done,
// resubscribing with backoff when redis drops the subscription.
func (a *relayApp) subscribe(ctx context.Context, ready chan<- struct{}) error {
	var once sync.Once
	onReady := func() {
		once.Do(func() {
			if ready != nil {
				close(ready)
			}
		})
	}

	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = 0
	cfg.NonRetryableErrors = []error{busRedis.ErrAlreadySubscribed}

	return retry.Retry(ctx, cfg, func() error {
		err := a.fanout.Subscribe(ctx, onReady, func(ctx context.Context, env busRedis.Envelope) {
			a.deliver(ctx, env.RoomID, env.Deliveries)
		})
		if err != nil && ctx.Err() == nil {
			a.logger.WarnContext(ctx, "fanout subscription lost", "error", err)
		}
		return err
	})
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(h)

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Port:     cfg.RedisPort,
		Host:     cfg.RedisHost,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	a, err := newRelayApp(cfg, rc, logger)
	if err != nil {
		return err
	}

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: a.handler}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)
	defer serverStopCtx()

	go func() {
		if err := a.subscribe(serverCtx, nil); err != nil && serverCtx.Err() == nil {
			logger.ErrorContext(serverCtx, "fanout stopped", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		// hijacked websockets are not tracked by Shutdown
		a.connRepo.CloseAll()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
