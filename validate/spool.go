package validate

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// spool holds the content of one file. It stays in memory up to limit bytes
// and moves to a temp file in dir beyond that.
type spool struct {
	dir   string
	limit int64
	buf   bytes.Buffer
	f     *os.File
}

func newSpool(dir string, limit int64) *spool {
	return &spool{dir: dir, limit: limit}
}

func (s *spool) Write(p []byte) (int, error) {
	if s.f == nil && s.limit > 0 && int64(s.buf.Len()+len(p)) > s.limit {
		if err := s.spill(); err != nil {
			return 0, err
		}
	}
	if s.f != nil {
		return s.f.Write(p)
	}
	return s.buf.Write(p)
}

func (s *spool) spill() error {
	f, err := os.CreateTemp(s.dir, "content-*")
	if err != nil {
		return fmt.Errorf("validate: create spool file: %w", err)
	}
	s.f = f
	if _, err := s.f.Write(s.buf.Bytes()); err != nil {
		return fmt.Errorf("validate: write spool file: %w", err)
	}
	s.buf.Reset()
	return nil
}

func (s *spool) Spilled() bool { return s.f != nil }

// Reader returns the spooled content from the start.
func (s *spool) Reader() (io.Reader, error) {
	if s.f == nil {
		return bytes.NewReader(s.buf.Bytes()), nil
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("validate: rewind spool file: %w", err)
	}
	return s.f, nil
}

// Close releases the spool, removing its temp file if there is one.
func (s *spool) Close() error {
	s.buf.Reset()
	if s.f == nil {
		return nil
	}
	name := s.f.Name()
	cerr := s.f.Close()
	s.f = nil
	if err := os.Remove(name); err != nil {
		return err
	}
	return cerr
}
