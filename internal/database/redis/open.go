package redis

import (
	goredis "github.com/redis/go-redis/v9"
)

// Options configures Open.
type Options struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Open creates a go-redis client with hook installed. The client dials
// lazily.
func Open(opts Options, hook *Hook) *goredis.Client {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
		PoolSize: opts.PoolSize,
	})
	if hook != nil {
		client.AddHook(hook)
	}
	return client
}
