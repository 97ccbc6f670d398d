package database

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// BadgerOptions configures the embedded store.
type BadgerOptions struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests and outlinectl dry runs.
	InMemory bool

	SyncWrites bool

	// Logger receives badger's internal messages. Nil silences them.
	Logger *zap.Logger
}

// OpenBadger opens a badger database with conflict detection enabled,
// which the per-tree transactions rely on.
func OpenBadger(opts BadgerOptions) (*badger.DB, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("badger path is required for persistent database")
	}

	var bo badger.Options
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", opts.Path, err)
		}
		bo = badger.DefaultOptions(opts.Path)
	}

	bo = bo.WithSyncWrites(opts.SyncWrites).
		WithNumVersionsToKeep(1).
		WithDetectConflicts(true)

	if opts.Logger != nil {
		bo = bo.WithLogger(badgerLogger{s: opts.Logger.Sugar()})
	} else {
		bo = bo.WithLogger(nil)
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return db, nil
}

// badgerLogger adapts zap to badger's Logger interface.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.s.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.s.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.s.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.s.Debugf(format, args...) }
