package health

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	config "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Config"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// HubChecker reports hub reachability and the client's breaker state
type HubChecker interface {
	Health(ctx context.Context) error
	GetCircuitBreakerStatus() map[string]interface{}
}

// StorePinger checks the run history store
type StorePinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides health check functionality
type HealthChecker struct {
	hub       HubChecker
	store     StorePinger
	storeType string
	version   string
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(hub HubChecker, store StorePinger, storeType string) *HealthChecker {
	return &HealthChecker{hub: hub, store: store, storeType: storeType, version: "1.0.0"}
}

// GetHealthStatus returns the current health status and whether the service is ready
func (h *HealthChecker) GetHealthStatus(ctx context.Context) (map[string]interface{}, bool) {
	checks := make(map[string]interface{})
	ready := true

	hubStatus := map[string]interface{}{"status": "ok"}
	if h.hub != nil {
		if err := h.hub.Health(ctx); err != nil {
			hubStatus["status"] = "error"
			hubStatus["error"] = err.Error()
			ready = false
		}
		hubStatus["circuit_breaker"] = h.hub.GetCircuitBreakerStatus()
	}
	checks["hub"] = hubStatus

	storeStatus := map[string]interface{}{"status": "ok", "type": h.storeType}
	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			storeStatus["status"] = "error"
			storeStatus["error"] = err.Error()
			ready = false
		}
	}
	checks["store"] = storeStatus

	overallStatus := "ok"
	if !ready {
		overallStatus = "degraded"
	}

	return map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"status":    overallStatus,
		"checks":    checks,
	}, ready
}

// DatabaseManager handles database operations
type DatabaseManager struct {
	db *sql.DB
}

// NewDatabaseManager creates a new database manager
func NewDatabaseManager(db *sql.DB) *DatabaseManager {
	return &DatabaseManager{db: db}
}

// ConnectPostgresWithTimeout creates a PostgreSQL connection with a timeout context
func ConnectPostgresWithTimeout(cfg *config.Config, timeout time.Duration) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL connection: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.Store.Database.MaxConns)
	db.SetMaxIdleConns(cfg.Store.Database.MinConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// CreateTables creates the run history table if it doesn't exist
func (dm *DatabaseManager) CreateTables(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	createRunsTable := `
		CREATE TABLE IF NOT EXISTS discovery_runs (
			run_id      TEXT PRIMARY KEY,
			trigger     TEXT NOT NULL,
			state       TEXT NOT NULL,
			started_at  TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ NOT NULL,
			devices     INTEGER NOT NULL DEFAULT 0,
			failures    JSONB NOT NULL DEFAULT '[]'::jsonb,
			error       TEXT NOT NULL DEFAULT ''
		);
	`

	createIndexes := `
		CREATE INDEX IF NOT EXISTS idx_discovery_runs_started_desc ON discovery_runs (started_at DESC);
	`

	for _, query := range []string{createRunsTable, createIndexes} {
		if _, err := dm.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (dm *DatabaseManager) Close() error {
	if dm.db != nil {
		return dm.db.Close()
	}
	return nil
}

// ConnectMongoWithTimeout creates a MongoDB connection and pings the primary
func ConnectMongoWithTimeout(cfg *config.Config, timeout time.Duration) (*mongo.Client, error) {
	if cfg.Store.Mongo.URI == "" {
		return nil, fmt.Errorf("MONGODB_URI environment variable not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	clientOptions := options.Client().ApplyURI(cfg.Store.Mongo.URI)
	// Atlas URIs enable TLS
	if clientOptions.TLSConfig != nil {
		clientOptions.TLSConfig.MinVersion = tls.VersionTLS12
	}
	clientOptions.SetServerSelectionTimeout(timeout)
	clientOptions.SetConnectTimeout(timeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping MongoDB: %w", err)
	}

	return client, nil
}

// GetCollection returns the run history collection
func GetCollection(client *mongo.Client, cfg *config.Config) *mongo.Collection {
	return client.Database(cfg.Store.Mongo.DBName).Collection(cfg.Store.Mongo.Collection)
}
