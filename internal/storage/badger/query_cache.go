package badger

import (
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/lexa/internal/interfaces"
)

const cacheKeyPrefix = "querycache:"

// QueryCache stores rendered answers keyed by a question fingerprint.
// Entries use Badger's native TTL so expiry needs no sweeper.
type QueryCache struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewQueryCache creates a new QueryCache instance
func NewQueryCache(db *BadgerDB, logger arbor.ILogger) interfaces.QueryCache {
	return &QueryCache{
		db:     db,
		logger: logger,
	}
}

func (c *QueryCache) Get(key string) ([]byte, bool) {
	var value []byte
	err := c.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(cacheKeyPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err != badgerdb.ErrKeyNotFound {
			c.logger.Warn().Err(err).Str("key", key).Msg("Query cache read failed")
		}
		return nil, false
	}
	return value, true
}

func (c *QueryCache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}
	err := c.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry([]byte(cacheKeyPrefix+key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

var _ interfaces.QueryCache = (*QueryCache)(nil)
