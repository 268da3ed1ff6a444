package runner

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"sort"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jeffrom/yamlgate/model"
)

// Stats counts what the runner saw while evaluating pushes. It is safe for
// concurrent use.
type Stats struct {
	mu      sync.Mutex
	Commits int64
	Changes int64
	Matched int64
	Counts  map[string][]*statCount
}

func NewStats() *Stats {
	return &Stats{Counts: make(map[string][]*statCount)}
}

// ObserveChange implements commit.Observer.
func (s *Stats) ObserveChange(c *model.Commit, change *model.Change, matched bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Changes++
	s.add("change_type", change.Type.String(), 1)
	s.add("extension", model.Extension(change.Path), 1)
	if matched {
		s.Matched++
	}
}

// AddRef counts n commits discovered for ref.
func (s *Stats) AddRef(ref string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Commits += int64(n)
	s.add("ref", ref, int64(n))
}

func (s *Stats) Add(bucket, name string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(bucket, name, n)
}

func (s *Stats) add(bucket, name string, n int64) {
	counts := s.Counts[bucket]
	count, found := s.findCount(name, counts)
	if !found {
		counts = append(counts, count)
	}
	count.Add(n)

	s.Counts[bucket] = counts
}

// Count returns the count of name in bucket.
func (s *Stats) Count(bucket, name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, found := s.findCount(name, s.Counts[bucket]); found {
		return c.n
	}
	return 0
}

func (s *Stats) findCount(name string, counts []*statCount) (*statCount, bool) {
	for _, c := range counts {
		if c.label == name {
			return c, true
		}
	}
	return &statCount{label: name}, false
}

func (s *Stats) sortedBuckets() []string {
	buckets := make([]string, len(s.Counts))
	i := 0
	for name := range s.Counts {
		buckets[i] = name
		i++
	}
	sort.Strings(buckets)
	return buckets
}

type statCount struct {
	label string
	n     int64
}

func (c *statCount) Add(n int64) {
	c.n += n
}

func (s *Stats) TextSummary(w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bw := bufio.NewWriter(w)
	bw.WriteString(fmt.Sprintf("%d commits, %d changes, %d matched\n\n", s.Commits, s.Changes, s.Matched))

	buckets := s.sortedBuckets()
	for _, name := range buckets {
		counts := s.Counts[name]
		sort.SliceStable(counts, func(i, j int) bool {
			if counts[i].n == counts[j].n {
				return counts[i].label < counts[j].label
			}
			return counts[i].n > counts[j].n
		})
		bw.WriteString(fmt.Sprintf("%s:\n", toTitle(name)))
		for _, count := range counts {
			label := count.label
			if label == "" {
				label = "n/a"
			}
			bw.WriteString(fmt.Sprintf("  %20s\t\t%d\n", label, count.n))
		}
		bw.WriteString("\n")
	}
	return bw.Flush()
}

var nonAlphaRE = regexp.MustCompile(`[^A-Za-z]`)

func toTitle(s string) string {
	s = nonAlphaRE.ReplaceAllLiteralString(s, " ")
	return cases.Title(language.English).String(s)
}
