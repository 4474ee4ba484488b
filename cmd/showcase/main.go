package main

import (
	"context"
	"log"
	"os"

	"github.com/seantiz/showcase/internal/api"
	"github.com/seantiz/showcase/internal/config"
	"github.com/seantiz/showcase/internal/delegate"
	"github.com/seantiz/showcase/internal/engine"
	"github.com/seantiz/showcase/internal/events"
	"github.com/seantiz/showcase/internal/store"
	"github.com/seantiz/showcase/internal/webapp"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg := config.Load()

	out, closer := cfg.LogWriter(os.Stdout)
	defer closer.Close()
	logger := config.NewLogger(out, cfg.LogLevel)

	logger.Info("showcase: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"engine", cfg.EngineName,
		"job_executor", cfg.JobExecutorActivate,
	)

	db, err := store.Open(cfg.DBPath, cfg.SchemaUpdate)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	delegates := delegate.NewRegistry()
	delegates.Register(delegate.PrintTaskName, delegate.NewPrintTask(os.Stdout))

	var publisher events.Publisher = events.Nop{}
	if cfg.NATSURL != "" {
		p, err := events.DialNATS(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
		publisher = p
	}

	ctx := context.Background()
	eng, err := engine.New(ctx, engine.Configuration{
		ProcessEngineName:   cfg.EngineName,
		Store:               db,
		DeploymentResources: cfg.DeploymentResources,
		JobExecutorActivate: cfg.JobExecutorActivate,
		Delegates:           delegates,
		Logger:              logger,
		Publisher:           publisher,
	})
	if err != nil {
		log.Fatalf("failed to start process engine: %v", err)
	}
	defer eng.Close()

	users := webapp.NewUsers(db)
	if err := users.EnsureAdmin(ctx, cfg.AdminUser, cfg.AdminPassword); err != nil {
		log.Fatalf("failed to create admin user: %v", err)
	}

	web := webapp.NewContext(logger)
	if err := webapp.Initialize(web, webapp.Deps{
		Engines:            webapp.NewEngines(eng),
		Users:              users,
		Logger:             logger,
		SecurityConfigFile: cfg.SecurityRules,
	}); err != nil {
		log.Fatalf("failed to initialize web applications: %v", err)
	}

	srv := api.NewServer(cfg.ListenAddr, eng, web, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
