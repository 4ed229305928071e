package index

import (
	"time"

	"github.com/turbolytics/docket/internal"
)

// Index is the durable discovery record of one dataset.
//
// files, last_page and complete are read by external status tools and must
// keep their names and meaning. Readers ignore fields they do not know.
// EmptyPages counts the consecutive empty pages ending at LastPage, so the
// empty-page rule holds across invocations.
type Index struct {
	Dataset    int                           `json:"dataset"`
	Files      map[string]internal.Reference `json:"files"`
	LastPage   int                           `json:"last_page"`
	Complete   bool                          `json:"complete"`
	Started    bool                          `json:"started"`
	EmptyPages int                           `json:"empty_pages,omitempty"`
	UpdatedAt  time.Time                     `json:"updated_at"`
}

func New(dataset int) *Index {
	return &Index{
		Dataset: dataset,
		Files:   make(map[string]internal.Reference),
	}
}

// HasProgress reports whether at least one page has been committed. LastPage
// is zero both before the first page and after page 0, so it cannot answer
// this on its own. Records written without the started flag fall back to
// having any files at all.
func (i *Index) HasProgress() bool {
	return i.Started || len(i.Files) > 0 || i.LastPage > 0
}

func (i *Index) Has(id string) bool {
	_, ok := i.Files[id]
	return ok
}

func (i *Index) Len() int {
	return len(i.Files)
}

// Merge adds the references whose ID is not yet present and advances LastPage
// to page when page is higher. It returns only the references it added, so
// merging the same page twice adds nothing the second time.
func (i *Index) Merge(refs []internal.Reference, page int) []internal.Reference {
	if i.Files == nil {
		i.Files = make(map[string]internal.Reference)
	}

	var added []internal.Reference
	for _, ref := range refs {
		if _, ok := i.Files[ref.ID]; ok {
			continue
		}
		i.Files[ref.ID] = ref
		added = append(added, ref)
	}

	if page > i.LastPage {
		i.LastPage = page
	}
	i.Started = true
	return added
}

// Sorted returns every reference ordered by number.
func (i *Index) Sorted() []internal.Reference {
	out := make([]internal.Reference, 0, len(i.Files))
	for _, ref := range i.Files {
		out = append(out, ref)
	}
	internal.SortReferences(out)
	return out
}

func (i *Index) Clone() *Index {
	c := *i
	c.Files = make(map[string]internal.Reference, len(i.Files))
	for k, v := range i.Files {
		c.Files[k] = v
	}
	return &c
}
