package index

import (
	"context"
	"errors"
	"math/rand"
	"time"

	sqlite3 "modernc.org/sqlite/lib"
)

// backoff retries index writes that lose a lock race with another hook
// process recording the same repository.
type backoff struct {
	attempts int
	first    time.Duration
	limit    time.Duration
}

var writeBackoff = backoff{
	attempts: 4,
	first:    50 * time.Millisecond,
	limit:    500 * time.Millisecond,
}

// sqliteCoder matches *sqlite.Error, which carries the extended result code.
type sqliteCoder interface {
	Code() int
}

// isContention reports whether err is a lock conflict that a later attempt
// can get past.
func isContention(err error) bool {
	var ce sqliteCoder
	if !errors.As(err, &ce) {
		return false
	}
	code := ce.Code()
	if code == sqlite3.SQLITE_IOERR_SHORT_READ {
		return true
	}
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// do runs fn until it succeeds, fails for a reason other than contention,
// ctx is done, or attempts run out.
func (b backoff) do(ctx context.Context, fn func() error) error {
	delay := b.first
	var err error
	for i := 0; i < b.attempts; i++ {
		if err = fn(); err == nil || !isContention(err) {
			return err
		}
		if i == b.attempts-1 {
			break
		}

		t := time.NewTimer(delay + time.Duration(rand.Int63n(int64(b.first))))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if delay *= 2; delay > b.limit {
			delay = b.limit
		}
	}
	return err
}
