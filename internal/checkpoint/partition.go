package checkpoint

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/baaaaaaaka/agent_history/internal/pathcodec"
)

// Partition is a directory of session files associated with one day.
type Partition struct {
	Dir string
	Day time.Time
}

// TopFilter selects the top-level entries of a backend root that belong to a
// scan and returns the name to interpret, with any mirror prefix removed.
type TopFilter func(name string) (string, bool)

// AllEntries accepts every top-level entry, reading mirrored entries by their
// inner name.
func AllEntries(name string) (string, bool) {
	if _, _, inner, ok := pathcodec.ParseCachedSourceDirectory(name); ok {
		return inner, true
	}
	return name, true
}

// OnlyPrefix accepts only entries mirrored under prefix.
func OnlyPrefix(prefix string) TopFilter {
	return func(name string) (string, bool) {
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			return "", false
		}
		return name[len(prefix):], true
	}
}

// Partitioner lists the partitions of a root whose day is on or after since.
// A zero since lists everything.
type Partitioner interface {
	Partitions(root string, top TopFilter, since time.Time, loc *time.Location) ([]Partition, error)
}

// DatePartitioner reads root/YYYY/MM/DD trees.
type DatePartitioner struct{}

func (DatePartitioner) Partitions(root string, top TopFilter, since time.Time, loc *time.Location) ([]Partition, error) {
	if top == nil {
		top = AllEntries
	}
	years, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []Partition
	for _, y := range years {
		if !y.IsDir() {
			continue
		}
		inner, ok := top(y.Name())
		if !ok {
			continue
		}
		year, ok := parseNumber(inner, 4)
		if !ok || (!since.IsZero() && year < since.Year()) {
			continue
		}
		yearDir := filepath.Join(root, y.Name())
		for _, month := range numberedDirs(yearDir, 2) {
			if month < 1 || month > 12 {
				continue
			}
			if !since.IsZero() && year == since.Year() && month < int(since.Month()) {
				continue
			}
			monthDir := filepath.Join(yearDir, twoDigits(month))
			for _, day := range numberedDirs(monthDir, 2) {
				d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
				if d.Month() != time.Month(month) || d.Day() != day {
					continue
				}
				if !since.IsZero() && d.Before(since) {
					continue
				}
				out = append(out, Partition{Dir: filepath.Join(monthDir, twoDigits(day)), Day: d})
			}
		}
	}
	sortPartitions(out)
	return out, nil
}

// MtimePartitioner treats root/<entry>/<Sub> as a partition dated by the
// latest modification of the entry or its Sub directory.
type MtimePartitioner struct {
	Sub string
}

func (p MtimePartitioner) Partitions(root string, top TopFilter, since time.Time, loc *time.Location) ([]Partition, error) {
	if top == nil {
		top = AllEntries
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []Partition
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := top(e.Name()); !ok {
			continue
		}
		entryDir := filepath.Join(root, e.Name())
		dir := entryDir
		if p.Sub != "" {
			dir = filepath.Join(entryDir, p.Sub)
		}
		st, err := os.Stat(dir)
		if err != nil || !st.IsDir() {
			continue
		}
		mod := st.ModTime()
		if est, err := os.Stat(entryDir); err == nil && est.ModTime().After(mod) {
			mod = est.ModTime()
		}
		mod = mod.In(loc)
		day := time.Date(mod.Year(), mod.Month(), mod.Day(), 0, 0, 0, 0, loc)
		if !since.IsZero() && day.Before(since) {
			continue
		}
		out = append(out, Partition{Dir: dir, Day: day})
	}
	sortPartitions(out)
	return out, nil
}

func numberedDirs(dir string, width int) []int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if n, ok := parseNumber(e.Name(), width); ok {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

func parseNumber(s string, width int) (int, bool) {
	if len(s) != width {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func sortPartitions(ps []Partition) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].Day.Equal(ps[j].Day) {
			return ps[i].Day.Before(ps[j].Day)
		}
		return ps[i].Dir < ps[j].Dir
	})
}
