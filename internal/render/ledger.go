package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"subtitle-index/internal/logging"
	"subtitle-index/internal/metrics"
)

const ledgerBucket = "renders"

// ErrEntryNotFound is returned when the ledger has no record of an artifact.
var ErrEntryNotFound = errors.New("render ledger entry not found")

// Entry records one rendered artifact.
type Entry struct {
	Name       string    `json:"name"`
	Format     Format    `json:"format"`
	Size       int64     `json:"size"`
	Created    time.Time `json:"created"`
	LastAccess time.Time `json:"lastAccess"`
}

// Ledger tracks rendered artifacts in a bbolt file so expired ones can be
// swept.
type Ledger struct {
	store *bolt.DB
}

// OpenLedger opens or creates the ledger at path.
func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}

	store, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open render ledger: %w", err)
	}

	err = store.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ledgerBucket))
		return err
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize render ledger: %w", err)
	}

	l := &Ledger{store: store}
	l.publish()
	return l, nil
}

// Close closes the ledger file.
func (l *Ledger) Close() error {
	if l.store != nil {
		return l.store.Close()
	}
	return nil
}

// Put records an artifact, replacing any earlier entry with the same name.
func (l *Ledger) Put(e Entry) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode ledger entry: %w", err)
	}

	err = l.store.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(ledgerBucket)).Put([]byte(e.Name), value)
	})
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", e.Name, err)
	}
	l.publish()
	return nil
}

// Get returns the entry for name, or ErrEntryNotFound.
func (l *Ledger) Get(name string) (*Entry, error) {
	var e Entry
	err := l.store.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(ledgerBucket)).Get([]byte(name))
		if v == nil {
			return ErrEntryNotFound
		}
		return json.Unmarshal(v, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Touch updates the last access time of an entry.
func (l *Ledger) Touch(name string, at time.Time) error {
	return l.store.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(ledgerBucket))
		v := bucket.Get([]byte(name))
		if v == nil {
			return ErrEntryNotFound
		}

		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		e.LastAccess = at

		value, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(name), value)
	})
}

// Count returns the number of entries.
func (l *Ledger) Count() int {
	n := 0
	_ = l.store.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(ledgerBucket)).Stats().KeyN
		return nil
	})
	return n
}

// Sweep deletes every artifact in dir not accessed since before now-ttl,
// along with its entry. A file that is already gone only loses its entry.
func (l *Ledger) Sweep(dir string, ttl time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-ttl)
	var expired []string

	err := l.store.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(ledgerBucket)).ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				logging.Warn("Dropping unreadable render ledger entry %s: %v", k, err)
				expired = append(expired, string(k))
				return nil
			}
			if e.LastAccess.Before(cutoff) {
				expired = append(expired, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan render ledger: %w", err)
	}

	removed := 0
	var errs []error
	for _, name := range expired {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		err := l.store.Update(func(tx *bolt.Tx) error {
			return tx.Bucket([]byte(ledgerBucket)).Delete([]byte(name))
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	metrics.RenderSweptTotal.Add(float64(removed))
	l.publish()
	return removed, errors.Join(errs...)
}

func (l *Ledger) publish() {
	metrics.RenderLedgerEntries.Set(float64(l.Count()))
}
