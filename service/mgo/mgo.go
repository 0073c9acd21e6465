package mgo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Config struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// Connect dials MongoDB and verifies the connection with a ping.
func Connect(ctx context.Context, cfg Config) (*mongo.Database, func(), error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	cli, err := mongo.Connect(dialCtx, options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.Timeout))
	if err != nil {
		return nil, nil, errors.Wrap(err, "mongo connect")
	}

	if err := cli.Ping(dialCtx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, nil, errors.Wrap(err, "mongo ping")
	}

	closer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cli.Disconnect(ctx)
	}
	return cli.Database(cfg.Database), closer, nil
}
