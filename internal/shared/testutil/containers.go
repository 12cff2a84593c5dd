//go:build integration

// Package testutil starts throwaway Postgres and Redis containers for
// integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"evently-waitlist/internal/shared/config"
	"evently-waitlist/internal/shared/database"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

const (
	testUser     = "test"
	testPassword = "testpass"
	testDB       = "waitlist"
)

// ContainerInfo is the host-side address of a container port
type ContainerInfo struct {
	Host string
	Port nat.Port
}

func startGenericContainer(t *testing.T, req testcontainers.ContainerRequest) testcontainers.Container {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start %s", req.Image)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Terminate(ctx); err != nil {
			t.Logf("failed to terminate %s: %v", req.Image, err)
		}
	})
	return c
}

func hostPort(t *testing.T, c testcontainers.Container, port string) ContainerInfo {
	t.Helper()
	ctx := context.Background()
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	host, err := c.Host(ctx)
	require.NoError(t, err)
	return ContainerInfo{Host: host, Port: mapped}
}

// Postgres starts Postgres, applies the schema and returns a gorm handle
func Postgres(t *testing.T) *gorm.DB {
	t.Helper()

	c := startGenericContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:17",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
			"POSTGRES_DB":       testDB,
		},
		Tmpfs: map[string]string{"/var/lib/postgresql/data": "rw,size=256m"},
		Cmd:   []string{"postgres", "-c", "fsync=off", "-c", "synchronous_commit=off"},
		WaitingFor: wait.ForSQL("5432/tcp", "pgx", func(host string, port nat.Port) string {
			return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
				testUser, testPassword, host, port.Port(), testDB)
		}).WithStartupTimeout(60 * time.Second),
	})
	info := hostPort(t, c, "5432/tcp")

	cfg := &config.Config{
		GinMode: "test",
		Database: config.DatabaseConfig{
			DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
				info.Host, info.Port.Port(), testUser, testPassword, testDB),
		},
	}

	db, err := database.ConnectPostgres(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// Redis starts Redis and returns a connected client
func Redis(t *testing.T) *redis.Client {
	t.Helper()

	c := startGenericContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	})
	info := hostPort(t, c, "6379/tcp")

	client := redis.NewClient(&redis.Options{Addr: info.Host + ":" + info.Port.Port()})
	require.NoError(t, client.Ping(context.Background()).Err())
	t.Cleanup(func() { client.Close() })
	return client
}
