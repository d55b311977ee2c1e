package httpclient

import (
	"baypd-scraper/internal/components/telemetry"
	"strings"

	"github.com/PuerkitoBio/purell"
	"github.com/dgraph-io/badger/v4"
)

const (
	report_cache_get    = "badger_cache.get"
	report_cache_set    = "badger_cache.set"
	report_cache_delete = "badger_cache.delete"
)

// BadgerCache is an httpcache.Cache persisted in a badger database, so that repeated runs
// can revalidate responses instead of downloading them again.
type BadgerCache struct {
	db  *badger.DB
	tel telemetry.API
}

func OpenBadgerCache(dir string, tel telemetry.API) (*BadgerCache, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &BadgerCache{
		db:  db,
		tel: telemetry.NewScopedAPI("http_cache", tel),
	}, nil
}

func (c *BadgerCache) Close() error {
	return c.db.Close()
}

// key normalizes the URL part of an httpcache key, keys look like "<url>" or "<method> <url>".
func (c *BadgerCache) key(raw string) []byte {
	prefix := ""
	target := raw
	if method, rest, found := strings.Cut(raw, " "); found {
		prefix = method + " "
		target = rest
	}
	normalized, err := purell.NormalizeURLString(
		target,
		purell.FlagsSafe|
			purell.FlagRemoveFragment|
			purell.FlagSortQuery,
	)
	if err != nil {
		return []byte(raw)
	}
	return []byte(prefix + normalized)
}

func (c *BadgerCache) Get(key string) ([]byte, bool) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, false
	}
	if err != nil {
		c.tel.ReportWarning(report_cache_get, err, key)
		return nil, false
	}
	return value, true
}

func (c *BadgerCache) Set(key string, value []byte) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(c.key(key), value)
	})
	if err != nil {
		c.tel.ReportWarning(report_cache_set, err, key)
	}
}

func (c *BadgerCache) Delete(key string) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(c.key(key))
	})
	if err != nil {
		c.tel.ReportWarning(report_cache_delete, err, key)
	}
}
