package message

import (
	"context"
	"errors"
	"strings"

	"relaybot/pkg/logx"
)

// Store persists campaign content and target lists.
type Store interface {
	SaveAd(ctx context.Context, ad Ad) error
	GetAd(ctx context.Context, name string) (Ad, error)
	ListAds(ctx context.Context) ([]Ad, error)
	DeleteAd(ctx context.Context, name string) error

	SaveTargetList(ctx context.Context, tl TargetList) error
	GetTargetList(ctx context.Context, name string) (TargetList, error)
	ListTargetLists(ctx context.Context) ([]TargetList, error)
	DeleteTargetList(ctx context.Context, name string) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "none", "memory":
		return NewMemoryStore(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
