package aria2

import (
	"fmt"
	"strings"

	"github.com/turbolytics/docket/internal/transfer"
)

// DirectArgs downloads one archive over HTTP with split connections.
func DirectArgs(url, dir, filename, cookie string) []string {
	args := []string{
		url,
		"--dir=" + dir,
		"--out=" + filename,
	}
	if cookie != "" {
		args = append(args, "--header=Cookie: "+cookie)
	}
	return append(args,
		"--max-connection-per-server=8",
		"--split=8",
		"--min-split-size=10M",
		"--continue=true",
		"--auto-file-renaming=false",
		"--timeout=120",
		"--max-tries=10",
		"--retry-wait=5",
		"--console-log-level=notice",
		"--summary-interval=10",
	)
}

// SwarmArgs downloads a magnet link and stops once the download completes.
func SwarmArgs(magnet, dir, dhtPath string) []string {
	return []string{
		magnet,
		"--dir=" + dir,
		"--seed-time=0",
		"--max-connection-per-server=16",
		"--split=16",
		"--min-split-size=1M",
		"--bt-stop-timeout=600",
		"--bt-tracker-timeout=60",
		"--continue=true",
		"--auto-file-renaming=false",
		"--console-log-level=notice",
		"--summary-interval=5",
		"--enable-dht=true",
		"--enable-dht6=false",
		"--bt-enable-lpd=true",
		"--bt-max-peers=100",
		"--bt-request-peer-speed-limit=50K",
		"--dht-file-path=" + dhtPath,
		"--dht-listen-port=6881-6999",
		"--dht-entry-point=router.bittorrent.com:6881",
		"--dht-entry-point6=router.bittorrent.com:6881",
		"--bt-tracker-connect-timeout=30",
		"--bt-tracker-interval=60",
	}
}

// BatchArgs downloads every entry of an input file.
func BatchArgs(inputFile string, concurrency int, cookie string) []string {
	args := []string{"--input-file=" + inputFile}
	if cookie != "" {
		args = append(args, "--header=Cookie: "+cookie)
	}
	return append(args,
		fmt.Sprintf("--max-concurrent-downloads=%d", concurrency),
		"--max-connection-per-server=4",
		"--continue=true",
		"--auto-file-renaming=false",
		"--timeout=60",
		"--max-tries=5",
		"--retry-wait=3",
		"--console-log-level=notice",
		"--summary-interval=30",
	)
}

// InputFile renders requests in aria2's input file format: the URL on its
// own line followed by indented per-download options.
func InputFile(reqs []transfer.Request) string {
	var b strings.Builder
	for _, r := range reqs {
		fmt.Fprintf(&b, "%s\n  dir=%s\n  out=%s\n", r.URL, r.Dir, r.Filename)
	}
	return b.String()
}
