package config

import (
	"time"

	"github.com/spf13/viper"
	pkgconfig "github.com/studiolink/studiolink/pkg/config"
)

type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Hub       HubConfig
	Diag      DiagConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	OutboxSize     int           `mapstructure:"outbox_size"`
}

type HubConfig struct {
	RetainedEvents int `mapstructure:"retained_events"`
}

type DiagConfig struct {
	BacklogSize int `mapstructure:"backlog_size"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8086)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("websocket.outbox_size", 256)
	v.SetDefault("hub.retained_events", 50)
	v.SetDefault("diag.backlog_size", 150)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Override from environment
	v.BindEnv("server.port", "PORT")
	v.BindEnv("hub.retained_events", "HUB_RETAINED_EVENTS")
	v.BindEnv("diag.backlog_size", "DIAG_BACKLOG_SIZE")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)

	// A fresh connection's outbox must absorb the CONNECTED frame plus a
	// full backlog replay, whatever retained capacity is configured.
	if floor := cfg.Hub.RetainedEvents * 2; cfg.WebSocket.OutboxSize < floor {
		cfg.WebSocket.OutboxSize = floor
	}

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
