package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/acme/predictive-dialer/internal/ami"
	"github.com/acme/predictive-dialer/internal/config"
	"github.com/acme/predictive-dialer/internal/dialer"
	"github.com/acme/predictive-dialer/internal/infra/db"
	"github.com/acme/predictive-dialer/internal/infra/redis"
	"github.com/acme/predictive-dialer/internal/queue"
	"github.com/acme/predictive-dialer/internal/repository"
	pgrepo "github.com/acme/predictive-dialer/internal/repository/postgres"
	scyllarepo "github.com/acme/predictive-dialer/internal/repository/scylla"
	"github.com/acme/predictive-dialer/internal/service/concurrency"
	"github.com/acme/predictive-dialer/internal/service/dialpolicy"
	"github.com/acme/predictive-dialer/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		publishers   *publishers
		services     *services
		locks        *locks
	}
}

type repositories struct {
	ScheduledCalls repository.ScheduledCallRepository
	Settings       repository.SettingsRepository
	CallRecords    repository.CallRecordStore
}

type publishers struct {
	Status *queue.StatusPublisher
}

type services struct {
	Policy *dialpolicy.Resolver
}

type locks struct {
	Cycle *concurrency.CycleLock
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	container := &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
	}

	return container, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			ScheduledCalls: pgrepo.NewScheduledCallRepository(c.Postgres.DB()),
			Settings:       pgrepo.NewSettingsRepository(c.Postgres.DB()),
			CallRecords:    scyllarepo.NewCallRecordStore(c.Scylla.Session()),
		}

		pubs := &publishers{
			Status: queue.NewStatusPublisher(c.Kafka, c.Config.Kafka.StatusTopic),
		}

		svcs := &services{
			Policy: dialpolicy.NewResolver(repos.Settings),
		}

		lks := &locks{
			Cycle: concurrency.NewCycleLock(c.Redis.Inner(), c.Config.Dispatch.LockKey, c.Config.Dispatch.LockTTL),
		}

		c.components.repositories = repos
		c.components.publishers = pubs
		c.components.services = svcs
		c.components.locks = lks
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Publishers exposes Kafka publishers.
func (c *Container) Publishers() *publishers {
	c.initComponents()
	return c.components.publishers
}

// Services exposes initialized services.
func (c *Container) Services() *services {
	c.initComponents()
	return c.components.services
}

// Locks exposes distributed lock utilities.
func (c *Container) Locks() *locks {
	c.initComponents()
	return c.components.locks
}

// Dispatcher assembles the scheduled-call dispatcher. Each cycle opens a
// fresh authenticated manager session via the factory.
func (c *Container) Dispatcher() *dialer.Dispatcher {
	c.initComponents()

	amiCfg := c.Config.AMI
	sessions := func(ctx context.Context) (dialer.ManagerSession, error) {
		session, err := ami.Connect(amiCfg)
		if err != nil {
			return nil, err
		}
		if err := session.Login(amiCfg.Username, amiCfg.Secret); err != nil {
			_ = session.Disconnect()
			return nil, err
		}
		return session, nil
	}

	deps := dialer.Deps{
		Calls:    c.components.repositories.ScheduledCalls,
		Records:  c.components.repositories.CallRecords,
		Status:   c.components.publishers.Status,
		Policy:   c.components.services.Policy,
		Lock:     c.components.locks.Cycle,
		Sessions: sessions,
		Logger:   c.Logger.Named("dispatcher"),
	}

	return dialer.NewDispatcher(c.Config.Dial, deps)
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	return c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.StatusTopic}, 12, 1)
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error
	if c.components.publishers != nil && c.components.publishers.Status != nil {
		if err := c.components.publishers.Status.Close(); err != nil {
			errs = append(errs, fmt.Errorf("status publisher close: %w", err))
		}
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
