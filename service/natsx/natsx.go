package natsx

import (
	"time"

	"github.com/nats-io/nats.go"
)

type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// Connect dials NATS with endless reconnects; push delivery is
// best-effort, so the gateway keeps running through broker outages.
func Connect(cfg Config) (*nats.Conn, error) {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
	}
	return nats.Connect(cfg.URL, opts...)
}
