package engine

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/seantiz/showcase/internal/delegate"
	"github.com/seantiz/showcase/internal/events"
	"github.com/seantiz/showcase/internal/processes"
	"github.com/seantiz/showcase/internal/store"
)

// DefaultProcessEngineName is the name of the engine when none is configured.
const DefaultProcessEngineName = "engine"

const (
	defaultAcquisitionInterval   = 5 * time.Second
	defaultLockTime              = 5 * time.Minute
	defaultMaxJobsPerAcquisition = 3

	// jobRetryDelay postpones a failed job before its next attempt.
	jobRetryDelay = 10 * time.Second
)

// JobExecutorConfig tunes the job executor.
type JobExecutorConfig struct {
	AcquisitionInterval   time.Duration
	LockTime              time.Duration
	MaxJobsPerAcquisition int
}

// Configuration describes a process engine.
type Configuration struct {
	ProcessEngineName string

	// Store is used when set. Otherwise the engine opens DataSource itself,
	// applying DatabaseSchemaUpdate, and closes it on Close.
	Store                store.Store
	DataSource           string
	DatabaseSchemaUpdate string

	// DeploymentResources are deployed by New as one deployment named after
	// the engine. Unchanged resources do not create new versions.
	DeploymentResources []string
	ResourceLoader      func(name string) ([]byte, error)

	JobExecutorActivate bool
	JobExecutor         JobExecutorConfig

	Delegates *delegate.Registry
	Logger    *slog.Logger
	Broker    *events.Broker
	Publisher events.Publisher
}

func (c Configuration) withDefaults() Configuration {
	if c.ProcessEngineName == "" {
		c.ProcessEngineName = DefaultProcessEngineName
	}
	if c.DatabaseSchemaUpdate == "" {
		c.DatabaseSchemaUpdate = store.SchemaUpdateTrue
	}
	if c.ResourceLoader == nil {
		c.ResourceLoader = processes.Read
	}
	if c.JobExecutor.AcquisitionInterval <= 0 {
		c.JobExecutor.AcquisitionInterval = defaultAcquisitionInterval
	}
	if c.JobExecutor.LockTime <= 0 {
		c.JobExecutor.LockTime = defaultLockTime
	}
	if c.JobExecutor.MaxJobsPerAcquisition <= 0 {
		c.JobExecutor.MaxJobsPerAcquisition = defaultMaxJobsPerAcquisition
	}
	if c.Delegates == nil {
		c.Delegates = delegate.NewRegistry()
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if c.Broker == nil {
		c.Broker = events.NewBroker()
	}
	if c.Publisher == nil {
		c.Publisher = events.Nop{}
	}
	return c
}

func (c Configuration) validate() error {
	switch c.DatabaseSchemaUpdate {
	case store.SchemaUpdateTrue, store.SchemaUpdateFalse, store.SchemaUpdateCreateDrop:
	default:
		return fmt.Errorf("%w: unknown database schema update %q", ErrInvalidConfiguration, c.DatabaseSchemaUpdate)
	}
	if c.Store == nil && c.DataSource == "" {
		return fmt.Errorf("%w: no store or data source", ErrInvalidConfiguration)
	}
	return nil
}
