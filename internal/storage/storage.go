package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Message is a single logged channel event.
type Message struct {
	Server      string
	Channel     string
	Nickname    string
	Text        string
	JoinOrLeave bool
	Time        time.Time
}

// Store persists messages.
type Store interface {
	Save(ctx context.Context, msg Message) error
	Close() error
}

// Config selects and configures a Store.
type Config struct {
	Driver    string
	Path      string
	QueueSize int
}

// ErrQueueClosed is returned by Close when called twice.
var ErrQueueClosed = errors.New("storage: queue closed")

// Open returns the store for cfg.Driver, or nil for "none".
func Open(cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "none":
		return nil, nil
	case "file":
		s, err := OpenFile(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
