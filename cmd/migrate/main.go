package main

import (
	"context"
	"flag"
	"os"
	"time"

	"fleetbook/internal/bookings/repository"
	mongoMigration "fleetbook/internal/migrations/mongo"
	postgresMigration "fleetbook/internal/migrations/postgres"
	"fleetbook/pkg/config"
)

const JobName = "migrate"

func main() {
	seedFile := flag.String("seed", "", "JSON file with employees and vehicles to upsert after migrating")
	timeout := flag.Duration("timeout", 120*time.Second, "overall deadline for the job")
	flag.Parse()

	cfg := config.Load(JobName)
	cfg.Connect()
	defer cfg.GracefulShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg.Log.Info("Starting migration job", "store", cfg.StoreBackend)
	switch cfg.StoreBackend {
	case config.StoreMongo:
		if err := mongoMigration.RunMigration(ctx, cfg.Client.Mongo, cfg.MongoDatabaseName, cfg.Log); err != nil {
			cfg.Log.Fatal("Migration failed", "error", err)
		}
	case config.StorePostgres:
		if err := postgresMigration.RunMigration(ctx, cfg.Client.Postgres, cfg.Log); err != nil {
			cfg.Log.Fatal("Migration failed", "error", err)
		}
	default:
		cfg.Log.Info("Nothing to migrate for store backend", "store", cfg.StoreBackend)
		return
	}

	if *seedFile != "" {
		seed(ctx, cfg, *seedFile)
	}
	cfg.Log.Info("Migration completed successfully")
}

func seed(ctx context.Context, cfg *config.Config, path string) {
	store, err := repository.NewStore(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to create store", "error", err)
	}
	writer, ok := store.(repository.ReferenceWriter)
	if !ok {
		cfg.Log.Fatal("Store cannot load reference data", "store", cfg.StoreBackend)
	}

	f, err := os.Open(path)
	if err != nil {
		cfg.Log.Fatal("Failed to open seed file", "path", path, "error", err)
	}
	defer f.Close()

	employees, vehicles, err := repository.LoadFixtures(ctx, writer, f)
	if err != nil {
		cfg.Log.Fatal("Seeding failed", "path", path, "error", err)
	}
	cfg.Log.Info("Seeded reference data", "employees", employees, "vehicles", vehicles)
}
