package aria2

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultPorts are the local ports aria2 listens on by default.
var DefaultPorts = []int{6918, 6971}

type DHTStatus struct {
	Path   string
	Exists bool
	Size   int64
}

type TrackerCheck struct {
	Tracker string
	Host    string
	// Tested is false for trackers that cannot be checked over HTTP.
	Tested    bool
	Reachable bool
	Elapsed   time.Duration
	Err       error
}

type PortCheck struct {
	Port  int
	InUse bool
}

type Diagnosis struct {
	Version    string
	VersionErr error
	DHT        DHTStatus
	Trackers   []TrackerCheck
	Ports      []PortCheck
}

// Diagnose inspects the local aria2 installation and swarm connectivity.
func (c *Client) Diagnose(ctx context.Context, trackers []string, ports []int) Diagnosis {
	var d Diagnosis

	out, err := c.runner.Output(ctx, c.binary, []string{"--version"})
	if err != nil {
		d.VersionErr = err
	} else {
		d.Version = strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	}

	d.DHT.Path = c.DHTPath()
	if info, err := os.Stat(d.DHT.Path); err == nil {
		d.DHT.Exists = true
		d.DHT.Size = info.Size()
	}

	client := resty.New().SetTimeout(5 * time.Second)
	for _, t := range trackers {
		d.Trackers = append(d.Trackers, checkTracker(ctx, client, t))
	}

	for _, p := range ports {
		d.Ports = append(d.Ports, PortCheck{Port: p, InUse: portInUse(p)})
	}
	return d
}

func checkTracker(ctx context.Context, client *resty.Client, tracker string) TrackerCheck {
	check := TrackerCheck{Tracker: tracker, Host: tracker}

	u, err := url.Parse(tracker)
	if err != nil {
		check.Err = err
		return check
	}
	check.Host = u.Hostname()

	if u.Scheme != "http" && u.Scheme != "https" {
		return check
	}

	check.Tested = true
	start := time.Now()
	resp, err := client.R().SetContext(ctx).Get(tracker)
	check.Elapsed = time.Since(start)
	switch {
	case err != nil:
		check.Err = err
	case resp.IsError():
		check.Err = fmt.Errorf("status %d", resp.StatusCode())
	default:
		check.Reachable = true
	}
	return check
}

func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
