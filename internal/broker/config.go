package broker

import "time"

// Config defines transport reliability defaults for one connection. Idle
// lifetime is not a connection concern; the pool owns staleness.
type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	CallTimeout      time.Duration
	WriteTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:   5 * time.Second,
		HandshakeTimeout: 5 * time.Second,
		CallTimeout:      15 * time.Second,
		WriteTimeout:     15 * time.Second,
	}
}
