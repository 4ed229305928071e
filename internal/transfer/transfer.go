package transfer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

var (
	ErrToolMissing = errors.New("transfer tool not installed")
	ErrIncomplete  = errors.New("transfer did not produce the expected file")
)

type Kind string

const (
	KindDirect Kind = "direct"
	KindSwarm  Kind = "swarm"
)

// Resource is a single bulk artifact: an archive URL or a swarm reference.
type Resource struct {
	Kind Kind
	// Location is an URL for direct resources and a magnet link for swarm
	// resources.
	Location string
	Dir      string
	// Filename names the downloaded file. Swarm downloads name their own
	// files and leave it empty.
	Filename string
}

func (r Resource) Path() string {
	if r.Filename == "" {
		return ""
	}
	return filepath.Join(r.Dir, r.Filename)
}

// Request is one file of a batch.
type Request struct {
	URL      string
	Dir      string
	Filename string
}

func (r Request) Path() string {
	return filepath.Join(r.Dir, r.Filename)
}

type Outcome struct {
	Target  string
	Path    string
	Skipped bool
	Err     error
}

func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report is the result of a batch: one outcome per request, in request
// order, and the error the transfer tool itself exited with.
type Report struct {
	Outcomes []Outcome
	Err      error
}

func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

func (r Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// Transferer moves remote resources onto the local filesystem.
type Transferer interface {
	Fetch(ctx context.Context, r Resource) Outcome
	Batch(ctx context.Context, reqs []Request, concurrency int) (Report, error)
}

// Present reports whether path holds a non-empty regular file.
func Present(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// Resolve fills in per-request outcomes from what is on disk after a batch.
func Resolve(reqs []Request, runErr error) Report {
	report := Report{Err: runErr}
	for _, req := range reqs {
		o := Outcome{Target: req.URL, Path: req.Path()}
		if !Present(o.Path) {
			o.Err = ErrIncomplete
		}
		report.Outcomes = append(report.Outcomes, o)
	}
	return report
}
