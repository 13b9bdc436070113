//go:build integration

package api

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saturnino-fabrica-de-software/vigia/internal/database"
	"github.com/saturnino-fabrica-de-software/vigia/internal/repository"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "vigia_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Printf("Failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, _ := container.Host(ctx)
	port, _ := container.MappedPort(ctx, "5432")
	connStr := fmt.Sprintf("postgres://test:test@%s:%s/vigia_test?sslmode=disable", host, port.Port())

	code := func() int {
		defer func() {
			if err := container.Terminate(ctx); err != nil {
				fmt.Printf("Failed to terminate container: %v\n", err)
			}
		}()

		db, err := database.NewPool(database.DefaultPoolConfig(connStr))
		if err != nil {
			fmt.Printf("Failed to open database: %v\n", err)
			return 1
		}
		if err := database.MigrateUp(db, "vigia_test"); err != nil {
			fmt.Printf("Failed to run migrations: %v\n", err)
			return 1
		}

		testDB, err = database.NewPgxPool(ctx, database.DefaultPoolConfig(connStr))
		if err != nil {
			fmt.Printf("Failed to connect to database: %v\n", err)
			return 1
		}
		defer testDB.Close()

		return m.Run()
	}()

	os.Exit(code)
}

func TestIntegration_CaptchaFlowOnPostgres(t *testing.T) {
	store := repository.NewPostgresStore(testDB, repository.DefaultBlockPolicy())
	router := newTestRouter(t, store, Dependencies{
		BlockWindow:        15 * time.Minute,
		ChallengeRateLimit: 30,
		CleanupInterval:    time.Hour,
	})

	runCaptchaFlow(t, router, store)

	resp, body := call(t, router, "GET", "/ready", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("ready = %d (%v), want 200", resp.StatusCode, body)
	}
}

func TestIntegration_StatsOnPostgres(t *testing.T) {
	store := repository.NewPostgresStore(testDB, repository.DefaultBlockPolicy())
	router := newTestRouter(t, store, Dependencies{ChallengeRateLimit: 30})

	resp, body := call(t, router, "GET", "/v1/captcha/stats", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("stats = %d, want 200", resp.StatusCode)
	}
	if body["backend"] != "postgres" {
		t.Errorf("backend = %v, want postgres", body["backend"])
	}
}
