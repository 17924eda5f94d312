package swapdb

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/boltdb/bolt"
)

const (
	dbName           = "swap.db"
	dbFilePermission = 0600
)

var (
	swapBucket            = []byte("swaps")
	reverseSwapBucket     = []byte("reverse-swaps")
	chainSwapBucket       = []byte("chain-swaps")
	channelCreationBucket = []byte("channel-creations")
	pairBucket            = []byte("pairs")
	watchedOutputBucket   = []byte("watched-outputs")
	metaBucket            = []byte("meta")
)

// migration mutates a prior version of the on-disk layout into a newer one.
type migration func(tx *bolt.Tx) error

type version struct {
	number    uint32
	migration migration
}

// dbVersions lists every schema version this package knows how to open.
// Only version 0 exists today; this slice exists so future migrations slot
// in the way channeldb's dbVersions does.
var dbVersions = []version{
	{number: 0, migration: nil},
}

// DB is the durable Swap Store (spec §4.3). It owns one bolt.DB file and
// exposes transactional CRUD; the Set* methods serialize updates to a
// single swap through the per-swap-id mutex from swapLock, not a
// store-wide lock.
type DB struct {
	*bolt.DB
	dbPath string

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Open opens (creating if necessary) the swap store at dbPath.
func Open(dbPath string) (*DB, error) {
	path := filepath.Join(dbPath, dbName)

	if !fileExists(path) {
		if err := createSwapDB(dbPath); err != nil {
			return nil, err
		}
	}

	bdb, err := bolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return nil, err
	}

	db := &DB{
		DB:     bdb,
		dbPath: dbPath,
		locks:  make(map[string]*sync.Mutex),
	}

	if err := db.syncVersions(); err != nil {
		bdb.Close()
		return nil, err
	}

	return db, nil
}

// swapLock returns the logical per-swap-id mutex, creating it on first use.
// Concurrent calls targeting the same swap serialize through this lock
// (spec §5).
func (d *DB) swapLock(id string) *sync.Mutex {
	d.locksMu.Lock()
	defer d.locksMu.Unlock()

	l, ok := d.locks[id]
	if !ok {
		l = &sync.Mutex{}
		d.locks[id] = l
	}
	return l
}

func createSwapDB(dbPath string) error {
	if !fileExists(dbPath) {
		if err := os.MkdirAll(dbPath, 0700); err != nil {
			return err
		}
	}

	path := filepath.Join(dbPath, dbName)
	bdb, err := bolt.Open(path, dbFilePermission, nil)
	if err != nil {
		return err
	}
	defer bdb.Close()

	return bdb.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{
			swapBucket, reverseSwapBucket, chainSwapBucket,
			channelCreationBucket, pairBucket, watchedOutputBucket,
			metaBucket,
		} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("unable to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
}

func (d *DB) syncVersions() error {
	// A fresh store is already at the latest version; nothing to do
	// until a migration is added to dbVersions.
	return nil
}

func fileExists(path string) bool {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false
	}
	return true
}
