package groupchat

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupchat/config"
	"github.com/opd-ai/groupchat/highway"
	"github.com/opd-ai/groupchat/sequence"
	"github.com/opd-ai/groupchat/wire"
)

// ConnectOption customizes Connect.
type ConnectOption func(*connectOptions)

type connectOptions struct {
	logger *logrus.Logger
}

// WithLogger sets the logger shared by every component of the client.
// Defaults to the logrus standard logger.
func WithLogger(logger *logrus.Logger) ConnectOption {
	return func(o *connectOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Connect dials the server named in cfg and returns a client using the
// WebSocket transport and the highway uploader. The logging section of cfg
// is applied to the client's logger.
func Connect(ctx context.Context, cfg *config.Config, opts ...ConnectOption) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("groupchat: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	co := connectOptions{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&co)
	}
	logger := co.logger
	if err := cfg.ApplyLogging(logger); err != nil {
		return nil, err
	}

	resolver := sequence.NewResolver()
	resolver.SetLogger(logger)

	uploader := highway.NewUploader(
		highway.WithChunkSize(cfg.Highway.ChunkSize),
		highway.WithDialTimeout(cfg.Highway.DialTimeout),
		highway.WithLogger(logger),
	)

	conn, err := wire.Dial(ctx, wire.Config{
		URL:            cfg.Server.URL,
		AccessToken:    cfg.Server.AccessToken,
		DialTimeout:    cfg.Server.DialTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, resolver, wire.WithUploader(uploader), wire.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	options := NewOptions()
	options.SelfID = cfg.Account.ID
	options.Nick = cfg.Account.Nick
	options.Transport = conn
	options.Resolver = resolver
	options.SequenceTimeout = cfg.Send.SequenceTimeout
	options.QuoteTimeout = cfg.Send.QuoteTimeout
	options.Logger = logger

	client, err := New(ctx, options)
	if err != nil {
		conn.Close()
		return nil, err
	}

	// The connection ending ends the session.
	go func() {
		select {
		case <-conn.Done():
			client.cancel()
		case <-client.ctx.Done():
		}
	}()
	return client, nil
}
