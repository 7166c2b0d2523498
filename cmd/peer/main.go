package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/playsync/internal/bus/ws"
	"github.com/sharetube/playsync/internal/playback"
	"github.com/sharetube/playsync/internal/player/virtual"
	"github.com/sharetube/playsync/pkg/ctxlogger"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	serverURL = configVar[string]{
		envKey:       "PEER_SERVER_URL",
		flagKey:      "server-url",
		defaultValue: "ws://localhost:80",
	}
	roomID = configVar[string]{
		envKey:       "PEER_ROOM_ID",
		flagKey:      "room-id",
		defaultValue: "",
	}
	userID = configVar[string]{
		envKey:       "PEER_USER_ID",
		flagKey:      "user-id",
		defaultValue: "peer",
	}
	canVideo = configVar[bool]{
		envKey:       "PEER_CAN_VIDEO",
		flagKey:      "can-video",
		defaultValue: true,
	}
	videoURL = configVar[string]{
		envKey:       "PEER_VIDEO_URL",
		flagKey:      "video-url",
		defaultValue: "",
	}
	stallEvery = configVar[time.Duration]{
		envKey:       "PEER_STALL_EVERY",
		flagKey:      "stall-every",
		defaultValue: 0,
	}
	stallFor = configVar[time.Duration]{
		envKey:       "PEER_STALL_FOR",
		flagKey:      "stall-for",
		defaultValue: 2 * time.Second,
	}
	logLevel = configVar[string]{
		envKey:       "PEER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
)

type peerConfig struct {
	ServerURL  string
	RoomID     string
	UserID     string
	CanVideo   bool
	VideoURL   string
	StallEvery time.Duration
	StallFor   time.Duration
	LogLevel   string
}

func loadPeerConfig() *peerConfig {
	pflag.String(serverURL.flagKey, serverURL.defaultValue, "Relay websocket url")
	pflag.String(roomID.flagKey, roomID.defaultValue, "Room to join")
	pflag.String(userID.flagKey, userID.defaultValue, "User id reported to the room")
	pflag.Bool(canVideo.flagKey, canVideo.defaultValue, "Whether this peer may change the video")
	pflag.String(videoURL.flagKey, videoURL.defaultValue, "Video to submit once joined")
	pflag.Duration(stallEvery.flagKey, stallEvery.defaultValue, "Simulate a buffer stall this often, 0 disables")
	pflag.Duration(stallFor.flagKey, stallFor.defaultValue, "Length of a simulated stall")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	for _, key := range [][2]string{
		{serverURL.flagKey, serverURL.envKey},
		{roomID.flagKey, roomID.envKey},
		{userID.flagKey, userID.envKey},
		{canVideo.flagKey, canVideo.envKey},
		{videoURL.flagKey, videoURL.envKey},
		{stallEvery.flagKey, stallEvery.envKey},
		{stallFor.flagKey, stallFor.envKey},
		{logLevel.flagKey, logLevel.envKey},
	} {
		viper.BindEnv(key[0], key[1])
	}

	return &peerConfig{
		ServerURL:  viper.GetString(serverURL.flagKey),
		RoomID:     viper.GetString(roomID.flagKey),
		UserID:     viper.GetString(userID.flagKey),
		CanVideo:   viper.GetBool(canVideo.flagKey),
		VideoURL:   viper.GetString(videoURL.flagKey),
		StallEvery: viper.GetDuration(stallEvery.flagKey),
		StallFor:   viper.GetDuration(stallFor.flagKey),
		LogLevel:   viper.GetString(logLevel.flagKey),
	}
}

func main() {
	cfg := loadPeerConfig()
	if cfg.RoomID == "" {
		log.Fatal("room-id is required")
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}
	logger := slog.New(ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cfg *peerConfig, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	player := virtual.New(nil, 0)
	client := ws.NewClient(ws.Config{
		ServerURL: cfg.ServerURL,
		RoomID:    cfg.RoomID,
		UserID:    cfg.UserID,
		CanVideo:  cfg.CanVideo,
	}, logger)

	urls, err := ws.NewURLStore(cfg.ServerURL, 10*time.Second)
	if err != nil {
		return err
	}

	ctrl := playback.NewController(player, client, urls, &playback.Config{RoomID: cfg.RoomID}, logger)
	player.Start(ctx)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- client.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		errs <- ctrl.Run(ctx, player.Events(), client.Messages(), client.Connected())
	}()

	if cfg.VideoURL != "" {
		go submitWhenJoined(ctx, ctrl, cfg.VideoURL)
	}
	if cfg.StallEvery > 0 {
		go simulateStalls(ctx, player, cfg.StallEvery, cfg.StallFor)
	}

	err = <-errs
	cancel()
	wg.Wait()

	return err
}

func submitWhenJoined(ctx context.Context, ctrl *playback.Controller, url string) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctrl.State().Joined {
				ctrl.SubmitURL(ctx, url)
				return
			}
		}
	}
}

func simulateStalls(ctx context.Context, player *virtual.Player, every, length time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			player.Stall()
			select {
			case <-ctx.Done():
				return
			case <-time.After(length):
			}
			player.Recover()
		}
	}
}
