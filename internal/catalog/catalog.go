package catalog

import (
	"errors"
	"fmt"
	"sort"
)

/*
The catalog is the fixed registry of datasets that can be archived and what is
known about acquiring each of them. It is built once at startup and passed to
whatever needs it; nothing mutates it afterwards.
*/

var (
	ErrUnknownDataset    = errors.New("unknown dataset")
	ErrOverlappingRanges = errors.New("dataset identifier ranges overlap")
	ErrInvalidRange      = errors.New("invalid dataset identifier range")
)

// Range is an inclusive span of document numbers. End == 0 means the range is
// open ended.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Contains(n int64) bool {
	if n < r.Start {
		return false
	}
	return r.End == 0 || n <= r.End
}

func (r Range) overlaps(o Range) bool {
	// two inclusive spans overlap unless one ends before the other starts
	if r.End != 0 && r.End < o.Start {
		return false
	}
	if o.End != 0 && o.End < r.Start {
		return false
	}
	return true
}

// Entry is the immutable description of one dataset.
type Entry struct {
	Number       int
	ZipAvailable bool
	ZipSizeMB    int
	Magnet       string
	MagnetSizeGB float64
	Range        *Range
	SHA256       string
	MD5          string
}

func (e Entry) HasMagnet() bool {
	return e.Magnet != ""
}

func (e Entry) Verified() bool {
	return e.SHA256 != "" || e.MD5 != ""
}

// NeedsScrape reports whether the documents of a dataset can only be
// obtained complete by walking its listing: no archive, and no verified
// torrent.
func (e Entry) NeedsScrape() bool {
	return !e.ZipAvailable && !e.Verified()
}

// Contains reports whether a document number belongs to the dataset. Datasets
// without a known range accept every number.
func (e Entry) Contains(n int64) bool {
	if e.Range == nil {
		return true
	}
	return e.Range.Contains(n)
}

type Catalog struct {
	urls    URLs
	entries map[int]Entry
}

// New validates entries and builds a catalog.
func New(urls URLs, entries ...Entry) (*Catalog, error) {
	c := &Catalog{
		urls:    urls,
		entries: make(map[int]Entry, len(entries)),
	}

	var ranged []Entry
	for _, e := range entries {
		if _, ok := c.entries[e.Number]; ok {
			return nil, fmt.Errorf("duplicate dataset %d", e.Number)
		}
		if e.Range != nil {
			if e.Range.End != 0 && e.Range.End < e.Range.Start {
				return nil, fmt.Errorf("dataset %d: %w", e.Number, ErrInvalidRange)
			}
			for _, other := range ranged {
				if e.Range.overlaps(*other.Range) {
					return nil, fmt.Errorf("datasets %d and %d: %w", other.Number, e.Number, ErrOverlappingRanges)
				}
			}
			ranged = append(ranged, e)
		}
		c.entries[e.Number] = e
	}
	return c, nil
}

func (c *Catalog) URLs() URLs {
	return c.urls
}

// Lookup returns the entry for a dataset number or ErrUnknownDataset.
func (c *Catalog) Lookup(number int) (Entry, error) {
	e, ok := c.entries[number]
	if !ok {
		return Entry{}, fmt.Errorf("dataset %d: %w", number, ErrUnknownDataset)
	}
	return e, nil
}

// Entries returns every entry ordered by dataset number.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Number < out[j].Number
	})
	return out
}

// Numbers returns every dataset number in ascending order.
func (c *Catalog) Numbers() []int {
	entries := c.Entries()
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Number
	}
	return out
}
