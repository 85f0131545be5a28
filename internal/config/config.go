// Package config 載入遊戲伺服器配置
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Game     GameConfig     `yaml:"game"`
	Room     RoomConfig     `yaml:"room"`
	Session  SessionConfig  `yaml:"session"`
	Storage  StorageConfig  `yaml:"storage"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
}

// ServerConfig HTTP / WebSocket 服務
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// AllowedOrigins 為空時接受所有來源（開發環境）
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LogConfig 日誌
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// GameConfig 規則參數，建立房間時凍結進狀態
type GameConfig struct {
	StartingCash int `yaml:"starting_cash"`
	PassGoBonus  int `yaml:"pass_go_bonus"`
	JailBail     int `yaml:"jail_bail"`
	MaxJailTurns int `yaml:"max_jail_turns"`
	MinPlayers   int `yaml:"min_players"`
	MaxPlayers   int `yaml:"max_players"`
	// LiquidationOrder 強制變賣順序："cheapest_first" 或 "most_expensive_first"
	LiquidationOrder string `yaml:"liquidation_order"`
}

// RoomConfig 房間 actor 與持久化策略
type RoomConfig struct {
	TradeWindow    time.Duration `yaml:"trade_window"`
	AuctionWindow  time.Duration `yaml:"auction_window"`
	SnapshotEvery  int           `yaml:"snapshot_every"`
	KeepSnapshots  int           `yaml:"keep_snapshots"`
	InboxSize      int           `yaml:"inbox_size"`
	PersistRetries int           `yaml:"persist_retries"`
	PersistBackoff time.Duration `yaml:"persist_backoff"`
	RetainAfterEnd time.Duration `yaml:"retain_after_end"`
	CleanupEvery   time.Duration `yaml:"cleanup_every"`
}

// SessionConfig 會話與斷線寬限
type SessionConfig struct {
	GracePeriod time.Duration `yaml:"grace_period"`
	TokenTTL    time.Duration `yaml:"token_ttl"`
	// TokenStore "memory" 或 "redis"
	TokenStore string `yaml:"token_store"`
}

// StorageConfig 持久化後端
type StorageConfig struct {
	// Driver "memory" 或 "postgres"
	Driver string `yaml:"driver"`
}

// PostgresConfig PostgreSQL 連線
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	MaxConns int32  `yaml:"max_conns"`
	MinConns int32  `yaml:"min_conns"`
}

// RedisConfig Redis 連線（token store）
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// NATSConfig delta 鏡像發佈
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Default 返回默認配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Game: GameConfig{
			StartingCash:     1500,
			PassGoBonus:      200,
			JailBail:         50,
			MaxJailTurns:     3,
			MinPlayers:       2,
			MaxPlayers:       4,
			LiquidationOrder: "cheapest_first",
		},
		Room: RoomConfig{
			TradeWindow:    60 * time.Second,
			AuctionWindow:  30 * time.Second,
			SnapshotEvery:  20,
			KeepSnapshots:  3,
			InboxSize:      64,
			PersistRetries: 5,
			PersistBackoff: 50 * time.Millisecond,
			RetainAfterEnd: 10 * time.Minute,
			CleanupEvery:   time.Minute,
		},
		Session: SessionConfig{
			GracePeriod: 2 * time.Minute,
			TokenTTL:    24 * time.Hour,
			TokenStore:  "memory",
		},
		Storage: StorageConfig{
			Driver: "memory",
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			DBName:   "boardgame",
			MaxConns: 20,
			MinConns: 2,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "rooms",
		},
	}
}

// Load 讀取 YAML 配置檔，覆蓋在預設值之上
//
// path 為空時只使用預設值與環境變數。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - 配置檔路徑來自命令列
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("讀取配置檔: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置檔: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 環境變數覆蓋（生產環境常用）
func (c *Config) applyEnv() {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		c.NATS.URL = url
		c.NATS.Enabled = true
	}
}

// Validate 檢查不可能的配置值
func (c *Config) Validate() error {
	var errs []error

	if c.Game.StartingCash <= 0 {
		errs = append(errs, errors.New("game.starting_cash 必須為正"))
	}
	if c.Game.MinPlayers < 2 {
		errs = append(errs, errors.New("game.min_players 至少為 2"))
	}
	if c.Game.MaxPlayers < c.Game.MinPlayers {
		errs = append(errs, errors.New("game.max_players 不可小於 min_players"))
	}
	if c.Game.MaxJailTurns < 1 {
		errs = append(errs, errors.New("game.max_jail_turns 至少為 1"))
	}
	switch c.Game.LiquidationOrder {
	case "cheapest_first", "most_expensive_first":
	default:
		errs = append(errs, fmt.Errorf("game.liquidation_order 無效: %q", c.Game.LiquidationOrder))
	}
	if c.Room.SnapshotEvery < 1 {
		errs = append(errs, errors.New("room.snapshot_every 至少為 1"))
	}
	if c.Room.KeepSnapshots < 1 {
		errs = append(errs, errors.New("room.keep_snapshots 至少為 1"))
	}
	if c.Room.PersistRetries < 0 {
		errs = append(errs, errors.New("room.persist_retries 不可為負"))
	}
	if c.Room.TradeWindow <= 0 || c.Room.AuctionWindow <= 0 {
		errs = append(errs, errors.New("room.trade_window 與 room.auction_window 必須為正"))
	}
	if c.Session.GracePeriod <= 0 {
		errs = append(errs, errors.New("session.grace_period 必須為正"))
	}
	switch c.Session.TokenStore {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("session.token_store 無效: %q", c.Session.TokenStore))
	}
	switch c.Storage.Driver {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.driver 無效: %q", c.Storage.Driver))
	}

	return errors.Join(errs...)
}

// PostgresDSN 生成 PostgreSQL 連線字串
func (c *Config) PostgresDSN() string {
	// 支援環境變數覆蓋
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
	)
}
