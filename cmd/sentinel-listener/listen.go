package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/cyberinferno/sentinel-listener/config"
	"github.com/cyberinferno/sentinel-listener/history"
	"github.com/cyberinferno/sentinel-listener/history/redisstore"
	"github.com/cyberinferno/sentinel-listener/listener"
	"github.com/cyberinferno/sentinel-listener/logger"
)

// ListenCommand runs one listener lifecycle.
type ListenCommand struct {
	Config   string `short:"c" long:"config" description:"Path to YAML configuration file"`
	Host     string `long:"host" description:"Override server.host"`
	Port     *int   `short:"p" long:"port" description:"Override server.port"`
	Secret   string `long:"secret" env:"SENTINEL_SECRET" description:"Override server.secret"`
	LogLevel string `long:"log-level" description:"Override logging.level"`
	History  string `long:"history" choice:"none" choice:"memory" choice:"redis" description:"Override history.backend"`
}

// Execute implements flags.Commander.
func (c *ListenCommand) Execute(args []string) error {
	cfg, err := c.load()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Options{
		Service: serviceName,
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Dir:     cfg.Logging.Dir,
	})
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openHistory(ctx, cfg.History)
	if err != nil {
		return err
	}
	defer closeStore()

	srv, err := listener.Start(
		listener.Endpoint{Host: cfg.Server.Host, Port: cfg.Server.Port, Secret: []byte(cfg.Server.Secret)},
		listener.WithLogger(log),
		listener.WithRecorder(store),
		listener.WithHandshakeTimeout(cfg.Server.HandshakeTimeout),
		listener.WithIdleTimeout(cfg.Server.IdleTimeout),
		listener.WithMaxMessageSize(cfg.Server.MaxMessageSize),
	)
	if err != nil {
		return err
	}

	serveCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(serveCtx)

	g.Go(func() error {
		defer cancel()
		return srv.Serve(gctx)
	})

	// Release the socket as soon as serving ends or a signal arrives.
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown()
	})

	err = g.Wait()
	if store != nil {
		reportLastSession(store, log)
	}

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		log.Info("stopped by signal")
		return nil
	}

	return err
}

// reportLastSession logs the most recent record in store along with how many
// sessions the store retains.
func reportLastSession(store history.Store, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	records, err := store.List(ctx)
	if err != nil {
		log.Warn("failed to read session history", logger.Field{Key: "error", Value: err.Error()})
		return
	}

	if len(records) == 0 {
		log.Info("no session recorded")
		return
	}

	last := records[len(records)-1]
	fields := []logger.Field{
		{Key: "session", Value: last.SessionID},
		{Key: "remote", Value: last.RemoteAddr},
		{Key: "outcome", Value: string(last.Outcome)},
		{Key: "messages", Value: last.Messages},
		{Key: "duration", Value: last.Duration().String()},
		{Key: "retained", Value: len(records)},
	}
	if last.Error != "" {
		fields = append(fields, logger.Field{Key: "error", Value: last.Error})
	}

	log.Info("session summary", fields...)
}

// load builds the effective configuration: file (or defaults), then flags.
func (c *ListenCommand) load() (*config.Config, error) {
	cfg := config.Default()
	if c.Config != "" {
		decoded, err := config.Read(c.Config)
		if err != nil {
			return nil, err
		}
		cfg = *decoded
	}

	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != nil {
		cfg.Server.Port = *c.Port
	}
	if c.Secret != "" {
		cfg.Server.Secret = c.Secret
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.History != "" {
		cfg.History.Backend = c.History
	}

	cfg.ResolveSecret()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// openHistory returns the store for the configured backend and a func
// releasing it. The store is nil for the "none" backend.
func openHistory(ctx context.Context, cfg config.HistoryConfig) (history.Store, func(), error) {
	switch cfg.Backend {
	case config.HistoryMemory:
		return history.NewMemoryStore(cfg.TTL, time.Minute), func() {}, nil
	case config.HistoryRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("history redis %s: %w", cfg.RedisAddr, err)
		}

		return redisstore.New(client, cfg.RedisPrefix, cfg.TTL), func() { _ = client.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}
