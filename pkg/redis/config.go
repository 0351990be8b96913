package redis

import "time"

// Config selects the Redis instance backing the read-model cache.
type Config struct {
	ConnectionURL  string        `env:"CACHE_REDIS_URL"`
	RetryAttempts  int           `env:"CACHE_REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"CACHE_REDIS_RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"CACHE_REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// Enabled reports whether a connection URL is configured.
func (c Config) Enabled() bool { return c.ConnectionURL != "" }
