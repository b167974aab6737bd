// Package testutil provides shared test infrastructure: a PostgreSQL
// container with pgvector and a deterministic embedder that needs no
// network.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/recall-chat/recall/db"
)

// TestDB wraps a PostgreSQL test container with a ready connection pool.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDBForMain starts a PostgreSQL container with the pgvector
// extension, runs migrations, and returns a pool. Intended for TestMain,
// where a *testing.T is not available; tests share the container and use
// CleanTables for isolation. The cleanup function terminates the container.
func SetupTestDBForMain() (*TestDB, func(), error) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"pgvector/pgvector:pg16",
		postgres.WithDatabase("recall_test"),
		postgres.WithUsername("recall_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("starting PostgreSQL container: %w", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("getting connection string: %w", err)
	}

	if err := db.Migrate(connStr); err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		_ = pgContainer.Terminate(ctx)
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	testDB := &TestDB{Container: pgContainer, Pool: pool, ConnStr: connStr}
	cleanup := func() {
		pool.Close()
		_ = pgContainer.Terminate(context.Background())
	}
	return testDB, cleanup, nil
}

// SetupTestDB is the per-test variant of SetupTestDBForMain.
func SetupTestDB(t *testing.T) (*TestDB, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	testDB, cleanup, err := SetupTestDBForMain()
	if err != nil {
		t.Fatal(err)
	}
	return testDB, cleanup
}

// CleanTables truncates all application tables for test isolation.
func CleanTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`TRUNCATE memories, messages, conversations, user_preferences CASCADE`)
	if err != nil {
		t.Fatalf("truncating tables: %v", err)
	}
}
