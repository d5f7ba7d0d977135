package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-scheduling/internal/clinic"
	appconfig "github.com/wolfman30/clinic-scheduling/internal/config"
	"github.com/wolfman30/clinic-scheduling/internal/slots"
	"github.com/wolfman30/clinic-scheduling/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// ClinicDefaults maps environment defaults onto clinic settings defaults.
func ClinicDefaults(cfg *appconfig.Config) clinic.Defaults {
	if cfg == nil {
		return clinic.Defaults{}
	}
	return clinic.Defaults{
		BufferMinutes: cfg.DefaultBufferMinutes,
		DispatchLimit: cfg.WaitlistDispatchLimit,
	}
}

// BuildClinicStore returns the clinic settings store. Without Redis every
// clinic reads the configured defaults.
func BuildClinicStore(redisClient *redis.Client, cfg *appconfig.Config) *clinic.Store {
	return clinic.NewStore(redisClient, ClinicDefaults(cfg))
}

// BuildSlotCache returns the generated-slot cache, or nil without Redis.
func BuildSlotCache(redisClient *redis.Client, cfg *appconfig.Config) *slots.SlotCache {
	if redisClient == nil || cfg == nil {
		return nil
	}
	return slots.NewSlotCache(redisClient, cfg.SlotCacheTTL)
}
