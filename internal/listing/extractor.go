package listing

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
	"github.com/turbolytics/docket/internal"
	"github.com/turbolytics/docket/internal/catalog"
)

var ErrUnexpectedPage = errors.New("unexpected listing page")

var documentPattern = regexp.MustCompile(`(?i)EFTA(\d+)\.pdf`)

const (
	pagerSelector = ".pager, ul.pager__items, nav[role=navigation]"
	nextSelector  = "a[rel=next], .pager__item--next a, .pager-next a"
)

// Extraction is what one listing page yields.
type Extraction struct {
	References []internal.Reference
	// LastPage is set when the page carries a pager with no link to a
	// following page.
	LastPage bool
}

// Extractor turns listing pages into references. It never performs I/O.
type Extractor struct {
	catalog *catalog.Catalog
}

func NewExtractor(c *catalog.Catalog) *Extractor {
	return &Extractor{catalog: c}
}

// Extract parses a page of the dataset listing. References are rebuilt from
// the document number so a rewritten or relative href on the page cannot
// change where a document is fetched from. Numbers outside the dataset's
// catalog range are dropped.
func (e *Extractor) Extract(dataset int, body []byte) (Extraction, error) {
	entry, err := e.catalog.Lookup(dataset)
	if err != nil {
		return Extraction{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrUnexpectedPage, err)
	}
	if doc.Find("body").Children().Length() == 0 {
		return Extraction{}, fmt.Errorf("%w: no markup in dataset %d page", ErrUnexpectedPage, dataset)
	}

	urls := e.catalog.URLs()
	seen := make(map[int64]struct{})
	var out Extraction

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		match := documentPattern.FindStringSubmatch(href)
		if match == nil {
			return
		}
		number, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return
		}
		if _, ok := seen[number]; ok {
			return
		}
		if !entry.Contains(number) {
			return
		}
		seen[number] = struct{}{}
		out.References = append(out.References, urls.Reference(dataset, number))
	})

	pager := doc.Find(pagerSelector)
	if pager.Length() > 0 && pager.Find(nextSelector).Length() == 0 {
		out.LastPage = true
	}

	return out, nil
}
