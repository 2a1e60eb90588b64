// Package supplier implements the overlay's local supplier table: a
// time-bounded mapping from file fingerprint to the supplier record that
// was registered for it.
package supplier

import (
	"errors"
	"sync"
	"time"

	"github.com/orcanet/overlay/record"
	"github.com/sirupsen/logrus"
)

// ErrNonPositiveTTL is returned by New when constructed with a TTL that is
// not strictly positive.
var ErrNonPositiveTTL = errors.New("supplier: ttl must be strictly positive")

// TimeProvider abstracts time so table expiry can be tested deterministically.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library clock.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

type tableEntry struct {
	record     record.SupplierRecord
	insertedAt time.Time
}

// Table is the local supplier table. Entries are evicted lazily: a read
// that observes an entry older than the TTL removes it and reports absence.
// There is no background sweeper.
type Table struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   TimeProvider
	byKey map[string]tableEntry

	logger *logrus.Logger
}

// New constructs a Table with the given TTL. TTL must be strictly positive.
func New(ttl time.Duration, logger *logrus.Logger) (*Table, error) {
	if ttl <= 0 {
		return nil, ErrNonPositiveTTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Table{
		ttl:    ttl,
		now:    DefaultTimeProvider{},
		byKey:  make(map[string]tableEntry),
		logger: logger,
	}, nil
}

// SetTimeProvider overrides the clock used for expiry checks. Intended for tests.
func (t *Table) SetTimeProvider(tp TimeProvider) {
	if tp == nil {
		tp = DefaultTimeProvider{}
	}
	t.mu.Lock()
	t.now = tp
	t.mu.Unlock()
}

// Insert unconditionally overwrites any existing entry for fingerprint and
// resets its insertion instant.
func (t *Table) Insert(fingerprint record.FileFingerprint, rec record.SupplierRecord) {
	key := fingerprint.String()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.byKey[key] = tableEntry{record: rec, insertedAt: t.now.Now()}
	t.logger.WithFields(logrus.Fields{
		"fingerprint": key,
		"supplier":    rec.Name,
	}).Debug("supplier table: inserted entry")
}

// GetIfFresh returns a copy of the record for fingerprint if it exists and
// has not exceeded the TTL. A stale entry is evicted as part of the read.
func (t *Table) GetIfFresh(fingerprint record.FileFingerprint) (record.SupplierRecord, bool) {
	key := fingerprint.String()

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.byKey[key]
	if !ok {
		return record.SupplierRecord{}, false
	}

	if t.now.Now().Sub(entry.insertedAt) >= t.ttl {
		delete(t.byKey, key)
		t.logger.WithField("fingerprint", key).Debug("supplier table: entry expired on read")
		return record.SupplierRecord{}, false
	}

	return entry.record, true
}

// Remove deletes any entry for fingerprint, regardless of freshness.
func (t *Table) Remove(fingerprint record.FileFingerprint) {
	key := fingerprint.String()

	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.byKey, key)
}
