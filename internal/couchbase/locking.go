package couchbase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

// ErrLocked is returned while an ingest holds the database lock.
var ErrLocked = errors.New("database is locked")

const (
	lockDocID = "db_lock"
	lockTTL   = time.Hour
)

type lockDocument struct {
	Locked    bool      `json:"locked"`
	LockedAt  time.Time `json:"lockedAt"`
	LockedBy  string    `json:"lockedBy"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// expired reports whether the lock outlived its TTL, e.g. because the
// ingest that took it crashed.
func (d lockDocument) expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt)
}

// DatabaseLocker keeps readers away from the patient repository while it is
// being rewritten
type DatabaseLocker struct {
	bucket *gocb.Bucket
	owner  string

	mu     sync.Mutex
	locked bool
}

// NewDatabaseLocker creates a locker that records owner in the lock document
func NewDatabaseLocker(bucket *gocb.Bucket, owner string) *DatabaseLocker {
	return &DatabaseLocker{
		bucket: bucket,
		owner:  owner,
	}
}

// Lock takes the lock. Insert fails if another live lock document exists.
func (l *DatabaseLocker) Lock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked {
		return fmt.Errorf("database is already locked by this process")
	}

	now := time.Now().UTC()
	doc := lockDocument{
		Locked:    true,
		LockedAt:  now,
		LockedBy:  l.owner,
		ExpiresAt: now.Add(lockTTL),
	}

	col := l.bucket.DefaultCollection()
	_, err := col.Insert(lockDocID, doc, &gocb.InsertOptions{Context: ctx, Expiry: lockTTL})
	if errors.Is(err, gocb.ErrDocumentExists) {
		held, checkErr := l.readLock(ctx)
		if checkErr != nil {
			return checkErr
		}
		if held != nil {
			return fmt.Errorf("%w by %s since %s", ErrLocked, held.LockedBy, held.LockedAt.Format(time.RFC3339))
		}
		_, err = col.Upsert(lockDocID, doc, &gocb.UpsertOptions{Context: ctx, Expiry: lockTTL})
	}
	if err != nil {
		return fmt.Errorf("failed to create lock document: %w", err)
	}

	l.locked = true
	log.Info().Str("owner", l.owner).Msg("Database locked successfully")
	return nil
}

// Unlock releases a lock taken by this process
func (l *DatabaseLocker) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.locked {
		return fmt.Errorf("database is not locked")
	}

	_, err := l.bucket.DefaultCollection().Remove(lockDocID, &gocb.RemoveOptions{Context: ctx})
	if err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
		return fmt.Errorf("failed to remove lock document: %w", err)
	}

	l.locked = false
	log.Info().Str("owner", l.owner).Msg("Database unlocked successfully")
	return nil
}

// IsLocked returns true if this process holds the lock
func (l *DatabaseLocker) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// CheckLockStatus reports whether any process currently holds the lock.
// Expired lock documents are removed.
func (l *DatabaseLocker) CheckLockStatus(ctx context.Context) (bool, error) {
	held, err := l.readLock(ctx)
	if err != nil {
		return false, err
	}
	return held != nil, nil
}

// readLock returns the live lock document, or nil if there is none.
func (l *DatabaseLocker) readLock(ctx context.Context) (*lockDocument, error) {
	col := l.bucket.DefaultCollection()

	resultDoc, err := col.Get(lockDocID, &gocb.GetOptions{Context: ctx})
	if err != nil {
		if errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check lock status: %w", err)
	}

	var doc lockDocument
	if err := resultDoc.Content(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse lock document: %w", err)
	}

	if doc.expired(time.Now().UTC()) {
		log.Warn().Str("locked_by", doc.LockedBy).Msg("Removing expired database lock")
		if _, err := col.Remove(lockDocID, &gocb.RemoveOptions{Context: ctx}); err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
			return nil, fmt.Errorf("failed to remove expired lock: %w", err)
		}
		return nil, nil
	}

	if !doc.Locked {
		return nil, nil
	}
	return &doc, nil
}
