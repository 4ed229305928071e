package internal

import "sort"

// Reference is a single document discovered on a dataset listing.
// ID is unique within a dataset; URL and Filename are derived from the
// dataset number and Number, never taken from the page verbatim.
type Reference struct {
	ID       string `json:"id"`
	Number   int64  `json:"number"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// SortReferences orders references by Number, then ID.
func SortReferences(refs []Reference) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Number == refs[j].Number {
			return refs[i].ID < refs[j].ID
		}
		return refs[i].Number < refs[j].Number
	})
}

// URLs returns the URL of every reference, preserving order.
func URLs(refs []Reference) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.URL
	}
	return out
}
