package aria2

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turbolytics/docket/internal/catalog"
	"github.com/turbolytics/docket/internal/transfer"
)

type call struct {
	name  string
	args  []string
	input string
}

type fakeRunner struct {
	missing bool
	err     error
	version string
	calls   []call
	// write simulates aria2 completing these file paths
	write []string
}

func (f *fakeRunner) LookPath(file string) (string, error) {
	if f.missing {
		return "", errors.New("executable file not found in $PATH")
	}
	return "/usr/bin/" + file, nil
}

func (f *fakeRunner) Run(ctx context.Context, name string, args []string) error {
	c := call{name: name, args: args}
	for _, a := range args {
		if strings.HasPrefix(a, "--input-file=") {
			data, err := os.ReadFile(strings.TrimPrefix(a, "--input-file="))
			if err != nil {
				return err
			}
			c.input = string(data)
		}
	}
	f.calls = append(f.calls, c)
	for _, p := range f.write {
		if err := os.WriteFile(p, []byte("%PDF"), 0644); err != nil {
			return err
		}
	}
	return f.err
}

func (f *fakeRunner) Output(ctx context.Context, name string, args []string) ([]byte, error) {
	if f.missing {
		return nil, errors.New("not found")
	}
	return []byte(f.version), nil
}

func TestClient_Check(t *testing.T) {
	c := New(WithRunner(&fakeRunner{missing: true}))
	err := c.Check()
	assert.ErrorIs(t, err, transfer.ErrToolMissing)
	assert.Contains(t, err.Error(), "brew install aria2")

	assert.NoError(t, New(WithRunner(&fakeRunner{})).Check())
}

func TestClient_Fetch(t *testing.T) {
	ctx := context.Background()

	t.Run("direct", func(t *testing.T) {
		dir := t.TempDir()
		r := &fakeRunner{}
		c := New(WithRunner(r), WithCacheDir(t.TempDir()))

		out := c.Fetch(ctx, transfer.Resource{
			Kind:     transfer.KindDirect,
			Location: "https://example.com/DataSet%201.zip",
			Dir:      dir,
			Filename: "DataSet1.zip",
		})
		require.NoError(t, out.Err)
		require.Len(t, r.calls, 1)

		args := r.calls[0].args
		assert.Equal(t, "aria2c", r.calls[0].name)
		assert.Equal(t, "https://example.com/DataSet%201.zip", args[0])
		assert.Contains(t, args, "--dir="+dir)
		assert.Contains(t, args, "--out=DataSet1.zip")
		assert.Contains(t, args, "--header=Cookie: "+catalog.ConsentCookie)
		assert.Contains(t, args, "--split=8")
	})

	t.Run("existing archive is skipped", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "DataSet1.zip"), []byte("PK"), 0644))
		r := &fakeRunner{}

		out := New(WithRunner(r)).Fetch(ctx, transfer.Resource{
			Kind: transfer.KindDirect, Location: "u", Dir: dir, Filename: "DataSet1.zip",
		})
		assert.True(t, out.OK())
		assert.True(t, out.Skipped)
		assert.Empty(t, r.calls)
	})

	t.Run("swarm repairs dht cache", func(t *testing.T) {
		cache := filepath.Join(t.TempDir(), "aria2")
		require.NoError(t, os.MkdirAll(cache, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(cache, "dht.dat"), []byte("short"), 0644))

		r := &fakeRunner{}
		c := New(WithRunner(r), WithCacheDir(cache))
		out := c.Fetch(ctx, transfer.Resource{
			Kind:     transfer.KindSwarm,
			Location: "magnet:?xt=urn:btih:abc",
			Dir:      t.TempDir(),
		})
		require.NoError(t, out.Err)

		_, err := os.Stat(filepath.Join(cache, "dht.dat"))
		assert.True(t, os.IsNotExist(err))

		args := r.calls[0].args
		assert.True(t, strings.HasPrefix(args[0], "magnet:?xt=urn:btih:abc&tr="))
		assert.Contains(t, args, "--seed-time=0")
		assert.Contains(t, args, "--dht-file-path="+filepath.Join(cache, "dht.dat"))
	})

	t.Run("healthy dht cache is kept", func(t *testing.T) {
		cache := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(cache, "dht.dat"), make([]byte, 512), 0644))

		c := New(WithRunner(&fakeRunner{}), WithCacheDir(cache))
		require.NoError(t, c.RepairDHT())
		_, err := os.Stat(filepath.Join(cache, "dht.dat"))
		assert.NoError(t, err)
	})

	t.Run("tool failure", func(t *testing.T) {
		r := &fakeRunner{err: errors.New("exit status 3")}
		out := New(WithRunner(r)).Fetch(ctx, transfer.Resource{
			Kind: transfer.KindDirect, Location: "u", Dir: t.TempDir(), Filename: "x.zip",
		})
		assert.False(t, out.OK())
	})

	t.Run("missing tool", func(t *testing.T) {
		out := New(WithRunner(&fakeRunner{missing: true})).Fetch(ctx, transfer.Resource{Kind: transfer.KindDirect})
		assert.ErrorIs(t, out.Err, transfer.ErrToolMissing)
	})
}

func TestClient_Batch(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tmp := t.TempDir()

	reqs := []transfer.Request{
		{URL: "https://example.com/EFTA00000001.pdf", Dir: dir, Filename: "EFTA00000001.pdf"},
		{URL: "https://example.com/EFTA00000003.pdf", Dir: dir, Filename: "EFTA00000003.pdf"},
	}

	r := &fakeRunner{
		err:   errors.New("exit status 1"),
		write: []string{filepath.Join(dir, "EFTA00000001.pdf")},
	}
	c := New(WithRunner(r), WithTempDir(tmp))

	report, err := c.Batch(ctx, reqs, 5)
	require.NoError(t, err)
	require.Len(t, r.calls, 1)

	assert.Contains(t, r.calls[0].args, "--max-concurrent-downloads=5")
	assert.Contains(t, r.calls[0].args, "--header=Cookie: "+catalog.ConsentCookie)
	assert.Equal(t, InputFile(reqs), r.calls[0].input)

	assert.Error(t, report.Err)
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 1, report.Failed())
	assert.True(t, report.Outcomes[0].OK())
	assert.ErrorIs(t, report.Outcomes[1].Err, transfer.ErrIncomplete)

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "input file is removed")

	t.Run("empty batch", func(t *testing.T) {
		r := &fakeRunner{}
		report, err := New(WithRunner(r)).Batch(ctx, nil, 5)
		require.NoError(t, err)
		assert.Empty(t, report.Outcomes)
		assert.Empty(t, r.calls)
	})

	t.Run("missing tool", func(t *testing.T) {
		_, err := New(WithRunner(&fakeRunner{missing: true})).Batch(ctx, reqs, 5)
		assert.ErrorIs(t, err, transfer.ErrToolMissing)
	})
}

func TestInputFile(t *testing.T) {
	got := InputFile([]transfer.Request{
		{URL: "https://a/EFTA00000001.pdf", Dir: "/out/dataset9-pdfs", Filename: "EFTA00000001.pdf"},
	})
	assert.Equal(t, "https://a/EFTA00000001.pdf\n  dir=/out/dataset9-pdfs\n  out=EFTA00000001.pdf\n", got)
}

func TestClient_Diagnose(t *testing.T) {
	tracker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("d14:failure reason0:e"))
	}))
	defer tracker.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	busy := ln.Addr().(*net.TCPAddr).Port

	cache := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cache, "dht.dat"), make([]byte, 200), 0644))

	c := New(
		WithRunner(&fakeRunner{version: "aria2 version 1.37.0\nCopyright"}),
		WithCacheDir(cache),
	)
	d := c.Diagnose(context.Background(),
		[]string{tracker.URL + "/announce", "udp://tracker.example.org:1337/announce"},
		[]int{busy},
	)

	assert.Equal(t, "aria2 version 1.37.0", d.Version)
	assert.True(t, d.DHT.Exists)
	assert.Equal(t, int64(200), d.DHT.Size)

	require.Len(t, d.Trackers, 2)
	assert.True(t, d.Trackers[0].Tested)
	assert.True(t, d.Trackers[0].Reachable)
	assert.False(t, d.Trackers[1].Tested)
	assert.Equal(t, "tracker.example.org", d.Trackers[1].Host)

	require.Len(t, d.Ports, 1)
	assert.True(t, d.Ports[0].InUse)
}
