package model

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ZeroHash is the object id git uses for a missing side of a ref update: the
// old value when a ref is created, the new value when it is deleted.
const ZeroHash = "0000000000000000000000000000000000000000"

// IsZeroHash reports whether h is non-empty and made only of '0' characters,
// which covers both SHA-1 and SHA-256 repositories.
func IsZeroHash(h string) bool {
	if h == "" {
		return false
	}
	for i := 0; i < len(h); i++ {
		if h[i] != '0' {
			return false
		}
	}
	return true
}

// RefUpdate is a single ref change within one push.
type RefUpdate struct {
	From string `json:"from"`
	To   string `json:"to"`
	Ref  string `json:"ref"`
}

func (u RefUpdate) IsDelete() bool { return IsZeroHash(u.To) }
func (u RefUpdate) IsCreate() bool { return IsZeroHash(u.From) }

func (u RefUpdate) String() string {
	return fmt.Sprintf("%s %s..%s", u.Ref, shortHash(u.From), shortHash(u.To))
}

func shortHash(h string) string {
	if len(h) < 8 {
		return h
	}
	return h[:8]
}

// ReadRefUpdates parses the "<old> <new> <ref>" lines git feeds to
// pre-receive and post-receive hooks.
func ReadRefUpdates(r io.Reader) ([]RefUpdate, error) {
	var updates []RefUpdate
	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 3 {
			return nil, fmt.Errorf("model: ref update line %d: expected 3 fields, got %d", lineno, len(parts))
		}
		updates = append(updates, RefUpdate{From: parts[0], To: parts[1], Ref: parts[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return updates, nil
}
