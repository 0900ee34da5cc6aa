// Package mockdevice is the scriptable Device-API test double spec §9
// requires ("a mock for tests"), grounded on
// original_source/tests/mock_panorama/device_manager.py: callers seed a
// State per serial and the mock drives itself through downloads/installs/
// reboots against that state instead of a real device.
package mockdevice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/natej/panos-upgrade/internal/deviceapi"
)

// State is the scripted condition of one mock device.
type State struct {
	Serial            string
	Hostname          string
	Model             string
	CurrentVersion    string
	HAState           deviceapi.HAState
	TCPSessions       int
	Routes            []deviceapi.Route
	ARPEntries        []deviceapi.ARPEntry
	DiskAvailableGB   float64
	AvailableVersions []string
	DownloadedVersions []string

	// Unreachable, when true, makes every call fail with ErrUnreachable.
	Unreachable bool
	// RebootDuration simulates the time the device spends offline after
	// Reboot before WaitOnline succeeds.
	RebootDuration time.Duration
	// DownloadDuration/InstallDuration simulate async job latency.
	DownloadDuration time.Duration
	InstallDuration  time.Duration
	// HashesByVersion, when set, makes WaitDownload report that hash in
	// DownloadResult.SHA256 for the given version.
	HashesByVersion map[string]string
}

// Registry holds State per serial and is shared by every mock Capability
// opened against it, so a test can assert on the post-workflow state.
type Registry struct {
	mu     sync.Mutex
	states map[string]*State
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{states: map[string]*State{}}
}

// Seed registers or replaces the state for a serial.
func (r *Registry) Seed(s *State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[s.Serial] = s
}

// State returns the live state for a serial, for test assertions.
func (r *Registry) State(serial string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[serial]
}

// Factory returns a deviceapi.Factory bound to this registry, keyed by
// management IP == serial (the mock does not model a separate IP space).
func (r *Registry) Factory() deviceapi.Factory {
	return func(mgmtIP string) (deviceapi.Capability, error) {
		r.mu.Lock()
		_, ok := r.states[mgmtIP]
		r.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("mockdevice: no seeded state for %q", mgmtIP)
		}
		return &capability{reg: r, serial: mgmtIP, jobs: map[deviceapi.JobID]*job{}}, nil
	}
}

type job struct {
	kind      string // "download" or "install"
	version   string
	startedAt time.Time
	duration  time.Duration
}

type capability struct {
	reg    *Registry
	serial string

	mu      sync.Mutex
	jobs    map[deviceapi.JobID]*job
	seq     int
	rebootAt time.Time
}

func (c *capability) state() (*State, error) {
	st := c.reg.State(c.serial)
	if st == nil {
		return nil, fmt.Errorf("mockdevice: serial %q vanished from registry", c.serial)
	}
	if st.Unreachable {
		return nil, fmt.Errorf("mockdevice %s: %w", c.serial, deviceapi.ErrUnreachable)
	}
	return st, nil
}

func (c *capability) Close() error { return nil }

func (c *capability) SystemInfo(ctx context.Context) (deviceapi.SystemInfo, error) {
	st, err := c.state()
	if err != nil {
		return deviceapi.SystemInfo{}, err
	}
	return deviceapi.SystemInfo{Version: st.CurrentVersion, Model: st.Model, Serial: st.Serial}, nil
}

func (c *capability) HAState(ctx context.Context) (deviceapi.HAState, error) {
	st, err := c.state()
	if err != nil {
		return deviceapi.HAUnknown, err
	}
	return st.HAState, nil
}

func (c *capability) Metrics(ctx context.Context) (deviceapi.Metrics, error) {
	st, err := c.state()
	if err != nil {
		return deviceapi.Metrics{}, err
	}
	return deviceapi.Metrics{
		TCPSessions:     st.TCPSessions,
		Routes:          append([]deviceapi.Route{}, st.Routes...),
		ARPEntries:      append([]deviceapi.ARPEntry{}, st.ARPEntries...),
		DiskAvailableGB: st.DiskAvailableGB,
	}, nil
}

func (c *capability) SoftwareCheck(ctx context.Context) error {
	_, err := c.state()
	return err
}

func (c *capability) SoftwareInfo(ctx context.Context) (deviceapi.SoftwareInfo, error) {
	st, err := c.state()
	if err != nil {
		return deviceapi.SoftwareInfo{}, err
	}
	return deviceapi.SoftwareInfo{
		Downloaded: append([]string{}, st.DownloadedVersions...),
		Available:  append([]string{}, st.AvailableVersions...),
	}, nil
}

func (c *capability) DiskAvailable(ctx context.Context) (float64, error) {
	st, err := c.state()
	if err != nil {
		return 0, err
	}
	return st.DiskAvailableGB, nil
}

func (c *capability) newJob(kind, version string, duration time.Duration) deviceapi.JobID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	id := deviceapi.JobID(fmt.Sprintf("%s-%s-%d", kind, c.serial, c.seq))
	c.jobs[id] = &job{kind: kind, version: version, startedAt: time.Now(), duration: duration}
	return id
}

func (c *capability) Download(ctx context.Context, version string) (deviceapi.JobID, error) {
	st, err := c.state()
	if err != nil {
		return "", err
	}
	return c.newJob("download", version, st.DownloadDuration), nil
}

func (c *capability) WaitDownload(ctx context.Context, id deviceapi.JobID) (deviceapi.DownloadResult, error) {
	c.mu.Lock()
	j, ok := c.jobs[id]
	c.mu.Unlock()
	if !ok {
		return deviceapi.DownloadResult{}, fmt.Errorf("mockdevice: unknown job %q", id)
	}

	_, err := deviceapi.Poll(ctx, deviceapi.BackoffConfig{
		Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 1.5, StallWindow: time.Minute,
	}, func(ctx context.Context) (deviceapi.JobProgress, error) {
		elapsed := time.Since(j.startedAt)
		if elapsed >= j.duration {
			return deviceapi.JobProgress{Done: true, PercentComplete: 100}, nil
		}
		pct := int(100 * elapsed / max1(j.duration))
		return deviceapi.JobProgress{Done: false, PercentComplete: pct}, nil
	})
	if err != nil {
		return deviceapi.DownloadResult{}, err
	}

	st, err := c.state()
	if err != nil {
		return deviceapi.DownloadResult{}, err
	}
	c.reg.mu.Lock()
	st.DownloadedVersions = appendIfMissing(st.DownloadedVersions, j.version)
	c.reg.mu.Unlock()

	hash := ""
	if st.HashesByVersion != nil {
		hash = st.HashesByVersion[j.version]
	}
	return deviceapi.DownloadResult{SHA256: hash}, nil
}

func (c *capability) Install(ctx context.Context, version string) (deviceapi.JobID, error) {
	st, err := c.state()
	if err != nil {
		return "", err
	}
	return c.newJob("install", version, st.InstallDuration), nil
}

func (c *capability) WaitInstall(ctx context.Context, id deviceapi.JobID) error {
	c.mu.Lock()
	j, ok := c.jobs[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("mockdevice: unknown job %q", id)
	}

	_, err := deviceapi.Poll(ctx, deviceapi.BackoffConfig{
		Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 1.5, StallWindow: time.Minute,
	}, func(ctx context.Context) (deviceapi.JobProgress, error) {
		elapsed := time.Since(j.startedAt)
		if elapsed >= j.duration {
			return deviceapi.JobProgress{Done: true, PercentComplete: 100}, nil
		}
		return deviceapi.JobProgress{Done: false, PercentComplete: int(100 * elapsed / max1(j.duration))}, nil
	})
	if err != nil {
		return err
	}

	st, err := c.state()
	if err != nil {
		return err
	}
	c.reg.mu.Lock()
	st.CurrentVersion = j.version
	c.reg.mu.Unlock()
	return nil
}

func (c *capability) Reboot(ctx context.Context) error {
	st, err := c.state()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.rebootAt = time.Now()
	c.mu.Unlock()
	_ = st
	return nil
}

func (c *capability) WaitOnline(ctx context.Context, maxWait time.Duration) error {
	c.mu.Lock()
	rebootAt := c.rebootAt
	c.mu.Unlock()

	st, err := c.state()
	if err != nil {
		return err
	}
	deadline := time.Now().Add(maxWait)

	_, err = deviceapi.Poll(ctx, deviceapi.BackoffConfig{
		Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond, Multiplier: 1.5, StallWindow: time.Minute,
	}, func(ctx context.Context) (deviceapi.JobProgress, error) {
		if time.Now().After(deadline) {
			return deviceapi.JobProgress{}, deviceapi.ErrTimeout
		}
		if time.Since(rebootAt) >= st.RebootDuration {
			return deviceapi.JobProgress{Done: true, PercentComplete: 100}, nil
		}
		return deviceapi.JobProgress{Done: false}, nil
	})
	return err
}

func appendIfMissing(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}

func max1(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Nanosecond
	}
	return d
}
