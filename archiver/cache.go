package archiver

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	Mt "github.com/sirius-geo/ringdeform/types"
)

// Cache keeps raw channel answers between runs over the same window.
type Cache interface {
	Get(key string) ([]Mt.Sample, bool, error)
	Put(key string, samples []Mt.Sample) error
	Close() error
	Type() string
}

const cachePrefix = "pv|"

func cacheKey(pv string, w Mt.Window) string {
	return cachePrefix + pv + "|" + w.Start.UTC().Format(isoMillis) + "|" + w.End.UTC().Format(isoMillis)
}

type BadgerCache struct {
	MU sync.Mutex
	DB *badger.DB
}

// NewBadgerCache opens a badger store at path.
// An empty path keeps everything in memory.
func NewBadgerCache(path string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path).
		WithCompression(options.ZSTD).
		WithNumVersionsToKeep(1).
		WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		slog.Error("BadgerCache failed to open database", slog.Any("error", err))
		return nil, fmt.Errorf("database error: %w", err)
	}

	slog.Info("BadgerCache opened", slog.String("path", path), slog.Bool("inMemory", path == ""))
	return &BadgerCache{DB: db}, nil
}

func (bc *BadgerCache) Get(key string) ([]Mt.Sample, bool, error) {
	var samples []Mt.Sample
	err := bc.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			s, err := SamplesDecode(val)
			if err != nil {
				return fmt.Errorf("samples decode error: %w", err)
			}
			samples = s
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return samples, true, nil
}

func (bc *BadgerCache) Put(key string, samples []Mt.Sample) error {
	bc.MU.Lock()
	defer bc.MU.Unlock()

	v, err := SamplesEncode(samples)
	if err != nil {
		return err
	}

	wb := bc.DB.NewWriteBatch()
	defer wb.Cancel()
	if err := wb.Set([]byte(key), v); err != nil {
		slog.Error("BadgerCache failed to set key", slog.Any("error", err), slog.String("key", key))
		return fmt.Errorf("write batch error: %w", err)
	}
	if err := wb.Flush(); err != nil {
		slog.Error("BadgerCache failed to flush batch", slog.Any("error", err))
		return fmt.Errorf("batch flush error: %w", err)
	}
	return nil
}

// Keys lists cached queries, for the layout/inspection commands
func (bc *BadgerCache) Keys() ([]string, error) {
	var keys []string
	err := bc.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(cachePrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), cachePrefix))
		}
		return nil
	})
	return keys, err
}

func (bc *BadgerCache) Close() error {
	if err := bc.DB.Close(); err != nil {
		slog.Error("BadgerCache failed to close database", slog.Any("error", err))
		return fmt.Errorf("close failed: %w", err)
	}
	slog.Info("BadgerCache closed successfully")
	return nil
}

func (bc *BadgerCache) Type() string { return "BadgerDB" }

// SamplesEncode serializes samples for storage
func SamplesEncode(s []Mt.Sample) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, fmt.Errorf("samples encode error: %w", err)
	}
	return buf.Bytes(), nil
}

// SamplesDecode deserializes stored samples
func SamplesDecode(data []byte) ([]Mt.Sample, error) {
	var s []Mt.Sample
	err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s)
	return s, err
}
