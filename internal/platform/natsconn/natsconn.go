// Package natsconn dials the bus that carries progress and library events.
package natsconn

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Options configures the connection. Zero values are filled from NATS_* env
// vars, then built-in defaults.
type Options struct {
	URL           string        `env:"NATS_URL"`
	Name          string        `env:"-"`
	MaxReconnects int           `env:"NATS_MAX_RECONNECTS" envDefault:"5"`
	ReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"2s"`
	Logger        *zap.Logger   `env:"-"`
}

func (o Options) withDefaults() (Options, error) {
	var fromEnv Options
	if err := env.Parse(&fromEnv); err != nil {
		return o, fmt.Errorf("nats env: %w", err)
	}
	if strings.TrimSpace(o.URL) == "" {
		o.URL = strings.TrimSpace(fromEnv.URL)
		if o.URL == "" {
			o.URL = nats.DefaultURL
		}
	}
	if o.MaxReconnects == 0 {
		o.MaxReconnects = fromEnv.MaxReconnects
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = fromEnv.ReconnectWait
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o, nil
}

// Connect dials once; the caller fails fast on error. Reconnects after a
// successful dial follow MaxReconnects and ReconnectWait.
func Connect(opts Options) (*nats.Conn, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	log := opts.Logger

	nopts := []nats.Option{
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.RetryOnFailedConnect(false),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			log.Info("nats connection closed")
		}),
	}
	if opts.Name != "" {
		nopts = append(nopts, nats.Name(opts.Name))
	}

	nc, err := nats.Connect(opts.URL, nopts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s (max_reconnects=%d, wait=%s): %w",
			opts.URL, opts.MaxReconnects, opts.ReconnectWait, err)
	}
	return nc, nil
}

// Optional connects only when url is set. An empty url yields all nils and
// the service runs without event fan-out.
func Optional(url, name string, log *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil, nil
	}
	nc, err := Connect(Options{URL: url, Name: name, Logger: log})
	if err != nil {
		return nil, nil, err
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
