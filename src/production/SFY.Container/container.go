package container

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	config "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Config"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/client"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/discovery"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/health"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/pipeline"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/reporter"
	logger "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Logger"
	implementation "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Repository/Implementation"
	interfaces "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/mongo"
)

const connectTimeout = 20 * time.Second

// Container manages dependencies and their lifecycle
type Container struct {
	config *config.Config
	logger *logger.Logger

	hubClient *client.HubClient
	db        *sql.DB
	mongo     *mongo.Client
	runRepo   interfaces.RunRepository
	reporter  reporter.Reporter
	discovery *discovery.Service

	// Health components
	healthChecker   *health.HealthChecker
	databaseManager *health.DatabaseManager

	// Mutex for thread-safe access
	mu sync.Mutex

	// Cleanup functions
	cleanupFuncs []func() error
}

// NewContainer loads the configuration from the environment and creates a container
func NewContainer() (*Container, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return NewContainerFromConfig(cfg, logger.NewLogger(&cfg.Logging)), nil
}

// NewContainerFromConfig creates a container around an already loaded configuration
func NewContainerFromConfig(cfg *config.Config, log *logger.Logger) *Container {
	return &Container{
		config: cfg,
		logger: log,
	}
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.logger
}

// GetHubClient returns the client of the directory, detail and file services
func (c *Container) GetHubClient() *client.HubClient {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.hubClient == nil {
		c.hubClient = client.NewHubClient(c.config.Hub)
	}
	return c.hubClient
}

// GetDatabase returns the database connection
func (c *Container) GetDatabase() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getDatabaseLocked()
}

func (c *Container) getDatabaseLocked() (*sql.DB, error) {
	if c.db == nil {
		db, err := health.ConnectPostgresWithTimeout(c.config, connectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.db = db
		c.databaseManager = health.NewDatabaseManager(db)
		c.cleanupFuncs = append(c.cleanupFuncs, c.databaseManager.Close)
	}
	return c.db, nil
}

func (c *Container) getMongoLocked() (*mongo.Client, error) {
	if c.mongo == nil {
		mc, err := health.ConnectMongoWithTimeout(c.config, connectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		c.mongo = mc
		c.cleanupFuncs = append(c.cleanupFuncs, func() error {
			return mc.Disconnect(context.Background())
		})
	}
	return c.mongo, nil
}

// GetRunRepository returns the run history store selected by RUN_STORE
func (c *Container) GetRunRepository(ctx context.Context) (interfaces.RunRepository, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runRepo != nil {
		return c.runRepo, nil
	}

	switch c.config.Store.Type {
	case config.StorePostgres:
		db, err := c.getDatabaseLocked()
		if err != nil {
			return nil, err
		}
		if err := c.databaseManager.CreateTables(ctx); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
		c.logger.Info("Database initialized successfully")
		c.runRepo = implementation.NewPostgresRunRepository(db)
	case config.StoreMongo:
		mc, err := c.getMongoLocked()
		if err != nil {
			return nil, err
		}
		c.runRepo = implementation.NewMongoRunRepository(health.GetCollection(mc, c.config))
	default:
		c.runRepo = implementation.NewMemoryRunRepository(interfaces.MaxRunLimit)
	}

	c.logger.Logger.Info().Str("store", c.config.Store.Type).Msg("Run history store ready")
	return c.runRepo, nil
}

// GetReporter returns the MQTT failure reporter, or a no-op one when no broker is configured
func (c *Container) GetReporter(ctx context.Context) (reporter.Reporter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reporter != nil {
		return c.reporter, nil
	}

	if !c.config.ReportingEnabled() {
		c.reporter = reporter.NopReporter{}
		return c.reporter, nil
	}

	mqttReporter := reporter.NewMQTTReporter(c.config, c.logger)
	if err := mqttReporter.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	c.cleanupFuncs = append(c.cleanupFuncs, func() error {
		mqttReporter.Stop()
		return nil
	})
	c.reporter = mqttReporter
	return c.reporter, nil
}

// GetDiscoveryService returns the discovery coordinator wired to the hub, store and reporter
func (c *Container) GetDiscoveryService(ctx context.Context) (*discovery.Service, error) {
	hub := c.GetHubClient()

	runs, err := c.GetRunRepository(ctx)
	if err != nil {
		return nil, err
	}

	rep, err := c.GetReporter(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.discovery == nil {
		svc := discovery.NewService(pipeline.NewFromHub(hub, c.logger), runs, rep, c.config.Discovery, c.logger)
		c.discovery = svc
		c.cleanupFuncs = append(c.cleanupFuncs, func() error {
			svc.Stop()
			return nil
		})
	}
	return c.discovery, nil
}

// GetHealthChecker returns the health checker
func (c *Container) GetHealthChecker(ctx context.Context) (*health.HealthChecker, error) {
	hub := c.GetHubClient()

	runs, err := c.GetRunRepository(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get run store for health checker: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.healthChecker == nil {
		c.healthChecker = health.NewHealthChecker(hub, runs, c.config.Store.Type)
	}
	return c.healthChecker, nil
}

// AddCleanupFunc adds a cleanup function
func (c *Container) AddCleanupFunc(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanupFuncs = append(c.cleanupFuncs, fn)
}

// Shutdown gracefully shuts down the container and all its dependencies
func (c *Container) Shutdown(_ context.Context) error {
	c.logger.Info("Shutting down container...")

	c.mu.Lock()
	funcs := c.cleanupFuncs
	c.cleanupFuncs = nil
	c.mu.Unlock()

	// Execute cleanup functions in reverse order
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			c.logger.ErrorWithError(err, "Error during cleanup")
		}
	}

	c.logger.Info("Container shutdown complete")
	return nil
}
