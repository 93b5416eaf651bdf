package config

import (
	"fmt"
	"slices"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds the whole application configuration.
type Config struct {
	Server ServerConfig
	Camera CameraConfig
	Draw   DrawConfig
	Redis  RedisConfig
	Store  StoreConfig
	API    APIConfig
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port  int    `env:"PORT" envDefault:"8080"`
	Debug bool   `env:"DEBUG" envDefault:"false"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"10s"`
	// 0 disables the write timeout so SSE streams stay open.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"0s"`

	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// CameraConfig configures camera access and the decode loop.
type CameraConfig struct {
	Backend    string `env:"CAMERA_BACKEND" envDefault:"v4l2"` // v4l2, ffmpeg or mock
	DeviceGlob string `env:"CAMERA_DEVICE_GLOB" envDefault:"/dev/video*"`

	Width  int `env:"CAMERA_WIDTH" envDefault:"1280"`
	Height int `env:"CAMERA_HEIGHT" envDefault:"720"`
	FPS    int `env:"CAMERA_FPS" envDefault:"15"`

	// AccessTimeout bounds permission prompts and device opens. 0 waits forever.
	AccessTimeout time.Duration `env:"CAMERA_ACCESS_TIMEOUT" envDefault:"30s"`
	SettleDelay   time.Duration `env:"CAMERA_SETTLE_DELAY" envDefault:"50ms"`
	ScanCooldown  time.Duration `env:"CAMERA_SCAN_COOLDOWN" envDefault:"300ms"`
}

// DrawConfig configures the lucky draw wheel.
type DrawConfig struct {
	SpinDuration  time.Duration `env:"DRAW_SPIN_DURATION" envDefault:"5s"`
	FullRotations int           `env:"DRAW_FULL_ROTATIONS" envDefault:"5"`
	FrameInterval time.Duration `env:"DRAW_FRAME_INTERVAL" envDefault:"16ms"`
	WheelSize     int           `env:"DRAW_WHEEL_SIZE" envDefault:"500"`
}

// RedisConfig configures the redis connection used by the redis store and event stream.
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password  string `env:"REDIS_PASSWORD" envDefault:""`
	DB        int    `env:"REDIS_DB" envDefault:"0"`
	StreamKey string `env:"REDIS_SCAN_STREAM" envDefault:"devfest:scans"`
}

// StoreConfig selects where pools and winners are kept.
type StoreConfig struct {
	Backend string `env:"STORE_BACKEND" envDefault:"memory"` // memory or redis
}

// APIConfig points at the event backend that owns rewards and redemptions.
type APIConfig struct {
	BaseURL string        `env:"API_URL" envDefault:""`
	Timeout time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
}

var (
	cameraBackends = []string{"v4l2", "ffmpeg", "mock"}
	storeBackends  = []string{"memory", "redis"}
)

// Load reads .env (when present) and the environment into a validated Config.
func Load() (*Config, error) {
	// production sets variables directly, so a missing .env is fine
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	if !slices.Contains(cameraBackends, c.Camera.Backend) {
		return fmt.Errorf("unknown camera backend: %q", c.Camera.Backend)
	}
	if c.Camera.AccessTimeout < 0 {
		return fmt.Errorf("camera access timeout must not be negative: %s", c.Camera.AccessTimeout)
	}
	if c.Camera.SettleDelay < 0 || c.Camera.ScanCooldown < 0 {
		return fmt.Errorf("camera delays must not be negative")
	}

	if c.Draw.SpinDuration <= 0 {
		return fmt.Errorf("spin duration must be positive: %s", c.Draw.SpinDuration)
	}
	if c.Draw.FullRotations < 1 {
		return fmt.Errorf("full rotations must be at least 1: %d", c.Draw.FullRotations)
	}
	if c.Draw.FrameInterval <= 0 {
		return fmt.Errorf("frame interval must be positive: %s", c.Draw.FrameInterval)
	}
	if c.Draw.WheelSize < 64 {
		return fmt.Errorf("wheel size too small: %d", c.Draw.WheelSize)
	}

	if !slices.Contains(storeBackends, c.Store.Backend) {
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}

	return nil
}

// ServerAddress returns the listen address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
