package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/playsync/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
}

var (
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
	}
	instanceID = configVar[string]{
		envKey:       "SERVER_INSTANCE_ID",
		flagKey:      "instance-id",
		defaultValue: "",
	}
	membersLimit = configVar[int]{
		envKey:       "SERVER_MEMBERS_LIMIT",
		flagKey:      "members-limit",
		defaultValue: 9,
	}
	roomTTL = configVar[time.Duration]{
		envKey:       "SERVER_ROOM_TTL",
		flagKey:      "room-ttl",
		defaultValue: 24 * time.Hour,
	}
	messagesPerSecond = configVar[float64]{
		envKey:       "SERVER_MESSAGES_PER_SECOND",
		flagKey:      "messages-per-second",
		defaultValue: 20,
	}
	messagesBurst = configVar[int]{
		envKey:       "SERVER_MESSAGES_BURST",
		flagKey:      "messages-burst",
		defaultValue: 40,
	}
	writeTimeout = configVar[time.Duration]{
		envKey:       "SERVER_WRITE_TIMEOUT",
		flagKey:      "write-timeout",
		defaultValue: 5 * time.Second,
	}
	videoLookup = configVar[bool]{
		envKey:       "SERVER_VIDEO_LOOKUP",
		flagKey:      "video-lookup",
		defaultValue: true,
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
	}
)

func loadAppConfig() *app.AppConfig {
	pflag.Int(port.flagKey, port.defaultValue, "Server port")
	pflag.String(host.flagKey, host.defaultValue, "Server host")
	pflag.String(logLevel.flagKey, logLevel.defaultValue, "Logging level")
	pflag.String(instanceID.flagKey, instanceID.defaultValue, "Relay instance id, random when empty")
	pflag.Int(membersLimit.flagKey, membersLimit.defaultValue, "Maximum number of connections in a room")
	pflag.Duration(roomTTL.flagKey, roomTTL.defaultValue, "Idle room expiration")
	pflag.Float64(messagesPerSecond.flagKey, messagesPerSecond.defaultValue, "Messages per second allowed per connection, 0 disables the limit")
	pflag.Int(messagesBurst.flagKey, messagesBurst.defaultValue, "Message burst allowed per connection")
	pflag.Duration(writeTimeout.flagKey, writeTimeout.defaultValue, "Websocket write timeout")
	pflag.Bool(videoLookup.flagKey, videoLookup.defaultValue, "Enable youtube video metadata lookup")
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, "Redis port")
	pflag.String(redisHost.flagKey, redisHost.defaultValue, "Redis host")
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, "Redis password")
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	viper.BindEnv(port.flagKey, port.envKey)
	viper.BindEnv(host.flagKey, host.envKey)
	viper.BindEnv(logLevel.flagKey, logLevel.envKey)
	viper.BindEnv(instanceID.flagKey, instanceID.envKey)
	viper.BindEnv(membersLimit.flagKey, membersLimit.envKey)
	viper.BindEnv(roomTTL.flagKey, roomTTL.envKey)
	viper.BindEnv(messagesPerSecond.flagKey, messagesPerSecond.envKey)
	viper.BindEnv(messagesBurst.flagKey, messagesBurst.envKey)
	viper.BindEnv(writeTimeout.flagKey, writeTimeout.envKey)
	viper.BindEnv(videoLookup.flagKey, videoLookup.envKey)
	viper.BindEnv(redisPort.flagKey, redisPort.envKey)
	viper.BindEnv(redisHost.flagKey, redisHost.envKey)
	viper.BindEnv(redisPassword.flagKey, redisPassword.envKey)

	viper.SetDefault(port.flagKey, port.defaultValue)
	viper.SetDefault(host.flagKey, host.defaultValue)
	viper.SetDefault(logLevel.flagKey, logLevel.defaultValue)
	viper.SetDefault(instanceID.flagKey, instanceID.defaultValue)
	viper.SetDefault(membersLimit.flagKey, membersLimit.defaultValue)
	viper.SetDefault(roomTTL.flagKey, roomTTL.defaultValue)
	viper.SetDefault(messagesPerSecond.flagKey, messagesPerSecond.defaultValue)
	viper.SetDefault(messagesBurst.flagKey, messagesBurst.defaultValue)
	viper.SetDefault(writeTimeout.flagKey, writeTimeout.defaultValue)
	viper.SetDefault(videoLookup.flagKey, videoLookup.defaultValue)
	viper.SetDefault(redisPort.flagKey, redisPort.defaultValue)
	viper.SetDefault(redisHost.flagKey, redisHost.defaultValue)
	viper.SetDefault(redisPassword.flagKey, redisPassword.defaultValue)

	return &app.AppConfig{
		Host:              viper.GetString(host.flagKey),
		Port:              viper.GetInt(port.flagKey),
		LogLevel:          viper.GetString(logLevel.flagKey),
		InstanceID:        viper.GetString(instanceID.flagKey),
		MembersLimit:      viper.GetInt(membersLimit.flagKey),
		RoomTTL:           viper.GetDuration(roomTTL.flagKey),
		MessagesPerSecond: viper.GetFloat64(messagesPerSecond.flagKey),
		MessagesBurst:     viper.GetInt(messagesBurst.flagKey),
		WriteTimeout:      viper.GetDuration(writeTimeout.flagKey),
		VideoLookup:       viper.GetBool(videoLookup.flagKey),
		RedisPort:         viper.GetInt(redisPort.flagKey),
		RedisHost:         viper.GetString(redisHost.flagKey),
		RedisPassword:     viper.GetString(redisPassword.flagKey),
	}
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatal(err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
