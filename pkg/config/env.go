package config

const (
	EnvStoreBackend = "STORE_BACKEND"
	EnvConnTimeout  = "CONN_TIMEOUT"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"

	EnvPostgresDSN      = "POSTGRES_DSN"
	EnvPostgresMaxConns = "POSTGRES_MAX_CONNS"

	EnvLockBackend   = "LOCK_BACKEND"
	EnvLockTTL       = "LOCK_TTL"
	EnvLockWait      = "LOCK_WAIT"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvAllocationMaxAttempts = "ALLOCATION_MAX_ATTEMPTS"
	EnvTimezone              = "TIMEZONE"
	EnvSeedFile              = "SEED_FILE"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvKafkaEnabled       = "KAFKA_ENABLED"
	EnvKafkaBookingsTopic = "KAFKA_BOOKINGS_TOPIC"
)
