package db

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Pool is an alias for pgxpool.Pool
type Pool = pgxpool.Pool

// DefaultMaxConns serves one poll cycle writer plus the query API
const DefaultMaxConns = 4

// NewPool creates the reading store pool. maxConns caps the pool size and
// falls back to DefaultMaxConns when it is not positive.
func NewPool(lc fx.Lifecycle, logger *zap.Logger, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	logger = logger.Named("db")
	target := MaskPassword(databaseURL)

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL %s: %w", target, err)
	}

	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	if config.MaxConns > maxConns {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create reading store pool: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				logger.Error("reading store unreachable", zap.String("url", target), zap.Error(err))
				return fmt.Errorf("cannot reach reading store at %s: %w", target, err)
			}
			logger.Info("reading store connected",
				zap.String("url", target),
				zap.Int32("max_conns", config.MaxConns),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pool.Close()
			logger.Info("reading store pool closed")
			return nil
		},
	})

	return pool, nil
}

var dsnPassword = regexp.MustCompile(`(?i)(password\s*=\s*)('(?:[^'\\]|\\.)*'|\S+)`)

// MaskPassword hides the password of a connection string before it is logged.
// Both URL and key=value forms are handled.
func MaskPassword(databaseURL string) string {
	if databaseURL == "" {
		return "<empty>"
	}

	u, err := url.Parse(databaseURL)
	if err != nil || u.Scheme == "" {
		if dsnPassword.MatchString(databaseURL) {
			return dsnPassword.ReplaceAllString(databaseURL, "${1}xxxxx")
		}
		if err != nil {
			return "<unparseable>"
		}
		return databaseURL
	}

	return u.Redacted()
}
