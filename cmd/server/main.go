package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/koopa0/system-design/14-board-game-server/internal/board"
	"github.com/koopa0/system-design/14-board-game-server/internal/broker"
	"github.com/koopa0/system-design/14-board-game-server/internal/config"
	"github.com/koopa0/system-design/14-board-game-server/internal/gateway"
	"github.com/koopa0/system-design/14-board-game-server/internal/migrations"
	"github.com/koopa0/system-design/14-board-game-server/internal/room"
	"github.com/koopa0/system-design/14-board-game-server/internal/session"
	"github.com/koopa0/system-design/14-board-game-server/internal/store"
	"github.com/koopa0/system-design/14-board-game-server/pkg/logger"
)

// main 應用程序入口
//
// 初始化順序：配置 → 日誌 → 持久化 → token 儲存 → 發佈者 → 房間 → 會話 → HTTP。
// 關閉順序相反：先停止接受連線，再停房間，最後關閉儲存。
func main() {
	configPath := flag.String("config", "", "配置檔路徑（YAML）")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "server error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. 配置與日誌
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.AddSource)
	if err != nil {
		return err
	}

	ctx := context.Background()

	// 2. 持久化層
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. 會話 token 儲存
	tokens, closeTokens, err := openTokens(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeTokens()

	// 4. delta 發佈：WebSocket Hub，加上可選的 NATS 鏡像
	hub := gateway.NewHub(gateway.HubConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log)
	publishers := room.Fanout{hub}
	if cfg.NATS.Enabled {
		mirror, err := broker.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := mirror.Close(); err != nil {
				log.Warn("close nats failed", "error", err)
			}
		}()
		publishers = append(publishers, mirror)
		log.Info("nats mirror enabled", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	// 5. 房間管理器，並恢復上次執行留下的房間
	rooms := room.NewManager(room.ManagerConfig{
		Room: room.Config{
			SnapshotEvery:  cfg.Room.SnapshotEvery,
			KeepSnapshots:  cfg.Room.KeepSnapshots,
			InboxSize:      cfg.Room.InboxSize,
			PersistRetries: cfg.Room.PersistRetries,
			PersistBackoff: cfg.Room.PersistBackoff,
		},
		Rules:          rulesFrom(cfg),
		RetainAfterEnd: cfg.Room.RetainAfterEnd,
		CleanupEvery:   cfg.Room.CleanupEvery,
	}, room.Deps{
		Store:     st,
		Publisher: publishers,
		Logger:    log,
	})
	defer rooms.Stop()

	recovered, err := rooms.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover rooms: %w", err)
	}

	// 6. 會話管理器；恢復的房間裡所有玩家此刻都沒有連線
	sessions := session.NewManager(tokens, rooms, session.Config{
		GracePeriod: cfg.Session.GracePeriod,
		TokenTTL:    cfg.Session.TokenTTL,
	}, log)
	defer sessions.Stop()

	for _, summary := range rooms.List("") {
		if r, err := rooms.Get(summary.RoomID); err == nil {
			sessions.Adopt(r.State())
		}
	}
	log.Info("rooms recovered", "count", recovered)

	// 7. HTTP / WebSocket 服務
	handler := gateway.NewHandler(rooms, sessions, hub, log)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("board game server started",
			"addr", cfg.Server.Addr,
			"storage", cfg.Storage.Driver,
			"token_store", cfg.Session.TokenStore)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 8. 等待終止信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	}

	// 9. 優雅關閉：停止接受新連線並關閉既有的 WebSocket
	// 先讓會話層進入關機狀態，伺服器主動關掉的連線不會被記成玩家斷線
	sessions.Drain()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	hub.Stop()

	log.Info("server stopped")
	return nil
}

// rulesFrom 建房時凍結進狀態的規則參數
func rulesFrom(cfg *config.Config) board.Rules {
	return board.Rules{
		StartingCash:     cfg.Game.StartingCash,
		PassGoBonus:      cfg.Game.PassGoBonus,
		JailBail:         cfg.Game.JailBail,
		MaxJailTurns:     cfg.Game.MaxJailTurns,
		MinPlayers:       cfg.Game.MinPlayers,
		MaxPlayers:       cfg.Game.MaxPlayers,
		LiquidationOrder: cfg.Game.LiquidationOrder,
		TradeWindowMs:    cfg.Room.TradeWindow.Milliseconds(),
		AuctionWindowMs:  cfg.Room.AuctionWindow.Milliseconds(),
	}
}

// openStore 依配置選擇持久化後端；postgres 啟動時先套用遷移
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Store, func(), error) {
	if cfg.Storage.Driver != "postgres" {
		log.Warn("using in-memory storage, rooms will not survive a restart")
		st := store.NewMemory()
		return st, func() { _ = st.Close() }, nil
	}

	dsn := cfg.PostgresDSN()
	if err := migrations.Apply(dsn, log); err != nil {
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.Postgres.MaxConns
	poolCfg.MinConns = cfg.Postgres.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	st := store.NewPostgres(pool, log)
	if err := st.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Info("storage initialized", "type", "postgres", "host", cfg.Postgres.Host)
	return st, pool.Close, nil
}

// openTokens 依配置選擇 token 儲存
func openTokens(ctx context.Context, cfg *config.Config, log *slog.Logger) (session.Tokens, func(), error) {
	if cfg.Session.TokenStore != "redis" {
		return session.NewMemoryTokens(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info("token store initialized", "type", "redis", "addr", cfg.Redis.Addr)
	return session.NewRedisTokens(client), func() { _ = client.Close() }, nil
}
