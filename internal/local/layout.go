package local

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Layout names every location docket uses below the output directory.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) ZipsDir() string {
	return filepath.Join(l.Root, "zips")
}

func (l Layout) TorrentsDir() string {
	return filepath.Join(l.Root, "torrents")
}

// DocumentDir is where the individually scraped documents of a dataset go.
func (l Layout) DocumentDir(dataset int) string {
	return filepath.Join(l.Root, fmt.Sprintf("dataset%d-pdfs", dataset))
}

func (l Layout) RunsDir() string {
	return filepath.Join(l.Root, "runs")
}

// Usage is a file count and total size.
type Usage struct {
	Files int
	Bytes int64
}

func (u Usage) MB() float64 {
	return float64(u.Bytes) / (1024 * 1024)
}

func (u Usage) GB() float64 {
	return u.MB() / 1024
}

// Measure counts regular files under dir whose base name matches pattern
// (every file when pattern is empty). A missing directory measures as zero.
func Measure(dir string, pattern string, recursive bool) (Usage, error) {
	var u Usage

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return fs.SkipDir
			}
			return nil
		}
		if pattern != "" {
			ok, err := filepath.Match(pattern, d.Name())
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		u.Files++
		u.Bytes += info.Size()
		return nil
	})
	return u, err
}

// Sizes maps the name of each regular file directly inside dir to its size.
// A missing directory yields an empty map.
func Sizes(dir string) (map[string]int64, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, err
	}

	sizes := make(map[string]int64, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		sizes[e.Name()] = info.Size()
	}
	return sizes, nil
}
