package main

import (
	"context"
	"os"
	"time"

	"fleetbook/internal/bookings/events"
	"fleetbook/internal/bookings/handler"
	"fleetbook/internal/bookings/repository"
	"fleetbook/internal/bookings/service"
	"fleetbook/internal/bookings/validator"
	"fleetbook/pkg/app"
	"fleetbook/pkg/config"
	"fleetbook/pkg/kafka"
	kafka_config "fleetbook/pkg/kafka/config"
	kafka_middleware "fleetbook/pkg/kafka/middleware"
	"fleetbook/pkg/lock"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Connect()

	cfg.Log.Info("Starting Bookings service")
	serverApp := app.NewApplication(cfg)

	store, err := repository.NewStore(cfg)
	if err != nil {
		cfg.Log.Fatal("Failed to create store", "error", err)
	}
	seedMemoryStore(cfg, store)

	bookingService := service.NewBookingService(
		store,
		newLocker(cfg),
		newPublisher(cfg, serverApp),
		validator.NewBookingValidator(cfg.Log),
		cfg,
	)
	cfg.Log.Info("Booking service initialized",
		"store", cfg.StoreBackend,
		"lock", cfg.LockBackend,
		"max_attempts", cfg.AllocationMaxAttempts,
	)

	serverApp.SetApp(
		handler.NewHealthHandler(store, cfg.Log),
		handler.NewBookingHandler(bookingService, cfg.Location, cfg.Log),
	)
	serverApp.Run()
}

func newLocker(cfg *config.Config) lock.Locker {
	switch cfg.LockBackend {
	case config.LockRedis:
		return lock.NewRedisLocker(cfg.Client.Redis, cfg.LockTTL, cfg.LockWait)
	case config.LockMongo:
		return lock.NewMongoLocker(cfg.Client.Mongo.Database(cfg.MongoDatabaseName), cfg.LockTTL, cfg.LockWait)
	default:
		return lock.Noop()
	}
}

func newPublisher(cfg *config.Config, serverApp *app.Application) events.Publisher {
	if !cfg.KafkaEnabled {
		cfg.Log.Info("Kafka disabled, booking events will not be published")
		return events.Noop()
	}

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.KafkaBookingsTopic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))

	publisher := events.NewKafkaPublisher(producer, cfg.Log)
	// Drain pending events before the producer goes away.
	serverApp.OnShutdown(publisher)
	serverApp.OnShutdown(producer)
	return publisher
}

// seedMemoryStore loads reference data into the in-process store, which
// otherwise starts empty on every boot.
func seedMemoryStore(cfg *config.Config, store repository.Store) {
	if cfg.StoreBackend != config.StoreMemory || cfg.SeedFile == "" {
		return
	}
	writer, ok := store.(repository.ReferenceWriter)
	if !ok {
		return
	}

	f, err := os.Open(cfg.SeedFile)
	if err != nil {
		cfg.Log.Fatal("Failed to open seed file", "path", cfg.SeedFile, "error", err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	employees, vehicles, err := repository.LoadFixtures(ctx, writer, f)
	if err != nil {
		cfg.Log.Fatal("Failed to load seed file", "path", cfg.SeedFile, "error", err)
	}
	cfg.Log.Info("Seeded memory store", "employees", employees, "vehicles", vehicles)
}
