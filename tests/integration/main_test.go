//go:build integration

package integration

import (
	"context"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/subtrack/subtrack/internal/app"
	"github.com/subtrack/subtrack/internal/config"
	"github.com/subtrack/subtrack/internal/testutil"
)

const (
	// OpenAPI spec path relative to the tests/integration directory.
	openAPISpecPath = "../../api/openapi/openapi.yaml"

	testSecret  = "integration-secret"
	testOwnerID = "owner-integration"
)

var (
	testServer    *httptest.Server
	testValidator *testutil.OpenAPIValidator
	testDB        *pgxpool.Pool
	testApp       *app.App
)

// ownerClient returns a validating client authenticated as the owner.
func ownerClient(t *testing.T) *testutil.Client {
	t.Helper()
	return testutil.NewClientWithValidator(testServer.URL, testValidator).AsUser(t, testSecret, testOwnerID)
}

// userClient returns a validating client authenticated as userID.
func userClient(t *testing.T, userID string) *testutil.Client {
	t.Helper()
	return testutil.NewClientWithValidator(testServer.URL, testValidator).AsUser(t, testSecret, userID)
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	pgContainer, err := testutil.NewPostgresContainer(ctx)
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}

	localDir, err := os.MkdirTemp("", "subtrack-integration")
	if err != nil {
		log.Fatalf("create local store dir: %v", err)
	}

	cfg := config.Defaults()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.Database.URL = pgContainer.ConnectionString
	cfg.Database.MaxOpenConns = 5
	cfg.Database.ConnectAttempts = 3
	cfg.Log = config.LogConfig{Level: "error", Format: "text"}
	cfg.JWT.SecretKey = testSecret
	cfg.Owner.UserID = testOwnerID
	cfg.Owner.Timezone = "UTC"
	cfg.LocalStore.Path = filepath.Join(localDir, "subtrack.db")
	// Telegram, web push and the extractor stay disabled; reminders land in
	// the in-app alert feed only.

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid test config: %v", err)
	}

	testApp, err = app.New(&cfg)
	if err != nil {
		log.Fatalf("create app: %v", err)
	}

	testDB, err = pgxpool.New(ctx, pgContainer.ConnectionString)
	if err != nil {
		log.Fatalf("create test db pool: %v", err)
	}

	testServer = httptest.NewServer(testApp.Router())

	testValidator, err = testutil.LoadOpenAPIValidator(openAPISpecPath)
	if err != nil {
		log.Fatalf("load OpenAPI validator: %v", err)
	}

	code := m.Run()

	testServer.Close()
	testDB.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := testApp.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown app: %v", err)
	}
	if err := pgContainer.Terminate(ctx); err != nil {
		log.Printf("terminate postgres: %v", err)
	}
	_ = os.RemoveAll(localDir)

	os.Exit(code)
}
