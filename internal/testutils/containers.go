// Package testutils 整合測試用的容器環境
//
// 提供：
//   - PostgreSQL 測試容器（已套用內嵌的資料表結構）
//   - Redis 測試容器
//   - NATS 測試容器（delta 鏡像）
//
// 容器在測試結束時自動終止。需要 Docker，`go test -short` 時跳過。
package testutils

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/koopa0/system-design/14-board-game-server/internal/migrations"
)

// TestEnvironment 封裝測試環境
type TestEnvironment struct {
	RedisClient    *redis.Client
	PostgresPool   *pgxpool.Pool
	RedisContainer tc.Container
	PgContainer    tc.Container
	NATSContainer  tc.Container
	NATSURL        string
	RedisAddr      string
	PostgresDSN    string
	Logger         *slog.Logger
}

func newEnvironment(t testing.TB) *TestEnvironment {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	env := &TestEnvironment{
		Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn, // 測試時減少日誌噪音
		})),
	}
	t.Cleanup(env.Cleanup)
	return env
}

// SetupPostgres 只啟動 PostgreSQL 並套用遷移
//
//	func TestSomething(t *testing.T) {
//	    env := testutils.SetupPostgres(t)
//	    st := store.NewPostgres(env.PostgresPool, env.Logger)
//	}
func SetupPostgres(t testing.TB) *TestEnvironment {
	t.Helper()
	env := newEnvironment(t)
	env.setupPostgreSQL(t)
	return env
}

// SetupRedis 只啟動 Redis
func SetupRedis(t testing.TB) *TestEnvironment {
	t.Helper()
	env := newEnvironment(t)
	env.setupRedis(t)
	return env
}

// SetupNATS 只啟動 NATS；沒有官方模組，用通用容器
func SetupNATS(t testing.TB) *TestEnvironment {
	t.Helper()
	env := newEnvironment(t)

	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "nats:2.10-alpine",
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start nats container: %v", err)
	}
	env.NATSContainer = container

	url, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	if err != nil {
		t.Fatalf("failed to get nats endpoint: %v", err)
	}
	env.NATSURL = url
	return env
}

// setupRedis 啟動 Redis 測試容器
func (env *TestEnvironment) setupRedis(t testing.TB) {
	t.Helper()

	ctx := context.Background()

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	env.RedisContainer = redisContainer

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	env.RedisAddr = endpoint

	env.RedisClient = redis.NewClient(&redis.Options{
		Addr:         endpoint,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := env.RedisClient.Ping(pingCtx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}
}

// setupPostgreSQL 啟動 PostgreSQL 測試容器並執行遷移
func (env *TestEnvironment) setupPostgreSQL(t testing.TB) {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("boardgame"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	env.PgContainer = pgContainer

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}
	env.PostgresDSN = dsn

	if err := migrations.Apply(dsn, env.Logger); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse postgres config: %v", err)
	}
	config.MaxConns = 10
	config.MinConns = 2

	env.PostgresPool, err = pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}
	if err := env.PostgresPool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping postgres: %v", err)
	}
}

// Cleanup 清理測試環境
func (env *TestEnvironment) Cleanup() {
	ctx := context.Background()

	if env.RedisClient != nil {
		_ = env.RedisClient.Close()
	}
	if env.PostgresPool != nil {
		env.PostgresPool.Close()
	}
	if env.RedisContainer != nil {
		_ = env.RedisContainer.Terminate(ctx)
	}
	if env.PgContainer != nil {
		_ = env.PgContainer.Terminate(ctx)
	}
	if env.NATSContainer != nil {
		_ = env.NATSContainer.Terminate(ctx)
	}
}

// FlushRedis 清空 Redis 資料（用於測試之間的清理）
func (env *TestEnvironment) FlushRedis(t testing.TB) {
	t.Helper()

	if err := env.RedisClient.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}

// TruncatePostgresTables 清空房間資料表（用於測試之間的清理）
func (env *TestEnvironment) TruncatePostgresTables(t testing.TB) {
	t.Helper()

	for _, table := range []string{"room_actions", "room_snapshots"} {
		query := fmt.Sprintf("TRUNCATE TABLE %s", table)
		if _, err := env.PostgresPool.Exec(context.Background(), query); err != nil {
			t.Fatalf("failed to truncate table %s: %v", table, err)
		}
	}
}
