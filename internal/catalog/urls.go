package catalog

import (
	"fmt"
	"strings"

	"github.com/turbolytics/docket/internal"
)

const (
	DefaultBaseURL    = "https://www.justice.gov"
	DefaultFilesURL   = DefaultBaseURL + "/epstein/files"
	DefaultListingURL = DefaultBaseURL + "/epstein/doj-disclosures"

	// ConsentCookie must accompany every listing and document request.
	ConsentCookie = "justiceGovAgeVerified=true"
)

// Trackers are appended to every magnet link handed to the swarm downloader.
var Trackers = []string{
	"http://bt1.archive.org:6969/announce",
	"http://bt2.archive.org:6969/announce",
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://tracker.openbittorrent.com:6969/announce",
	"udp://9.rarbg.com:2810/announce",
	"udp://explodie.org:6969/announce",
	"udp://tracker.torrent.eu.org:451/announce",
	"udp://tracker.moeking.me:6969/announce",
	"udp://open.stealth.si:80/announce",
	"udp://vibe.community:6969/announce",
}

// URLs templates every remote location derived from a dataset number.
type URLs struct {
	FilesURL    string
	ListingBase string
}

func DefaultURLs() URLs {
	return URLs{
		FilesURL:    DefaultFilesURL,
		ListingBase: DefaultListingURL,
	}
}

func (u URLs) ZipURL(dataset int) string {
	return fmt.Sprintf("%s/DataSet%%20%d.zip", strings.TrimRight(u.FilesURL, "/"), dataset)
}

func ZipFilename(dataset int) string {
	return fmt.Sprintf("DataSet%d.zip", dataset)
}

func DocumentID(number int64) string {
	return fmt.Sprintf("EFTA%08d", number)
}

func DocumentFilename(number int64) string {
	return DocumentID(number) + ".pdf"
}

func (u URLs) DocumentURL(dataset int, number int64) string {
	return fmt.Sprintf("%s/DataSet%%20%d/%s", strings.TrimRight(u.FilesURL, "/"), dataset, DocumentFilename(number))
}

func (u URLs) ListingURL(dataset int, page int) string {
	return fmt.Sprintf("%s/data-set-%d-files?page=%d", strings.TrimRight(u.ListingBase, "/"), dataset, page)
}

// Reference derives the full document reference for a number in a dataset.
func (u URLs) Reference(dataset int, number int64) internal.Reference {
	return internal.Reference{
		ID:       DocumentID(number),
		Number:   number,
		URL:      u.DocumentURL(dataset, number),
		Filename: DocumentFilename(number),
	}
}

// MagnetWithTrackers appends the known announce trackers to a magnet link.
func MagnetWithTrackers(magnet string) string {
	if magnet == "" {
		return magnet
	}
	params := make([]string, len(Trackers))
	for i, t := range Trackers {
		params[i] = "tr=" + t
	}
	joined := strings.Join(params, "&")
	if strings.Contains(magnet, "?") {
		return magnet + "&" + joined
	}
	return magnet + "?" + joined
}
