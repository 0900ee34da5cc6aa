// Package validator implements the pre/post-flight health snapshots and
// comparison logic of spec §4.5: collect a canonicalized metrics snapshot
// before and after an upgrade, then compare within operator-configured
// margins. A failed comparison is advisory only — the caller decides
// whether it blocks the workflow.
package validator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/natej/panos-upgrade/internal/config"
	"github.com/natej/panos-upgrade/internal/deviceapi"
	"github.com/natej/panos-upgrade/internal/fsstore"
	"github.com/natej/panos-upgrade/internal/model"
)

// Validator collects and compares pre/post-flight artifacts for one
// device, persisting them under validation/pre_flight and
// validation/post_flight.
type Validator struct {
	cfg *config.Config
}

// New returns a Validator bound to cfg's margins and file layout.
func New(cfg *config.Config) *Validator {
	return &Validator{cfg: cfg}
}

// Collect calls metrics() on cap, canonicalizes the result, and atomically
// writes validation/{pre_flight,post_flight}/{serial}.json depending on
// phase ("pre" or "post"), returning the artifact written.
func (v *Validator) Collect(ctx context.Context, cap deviceapi.Capability, serial, phase string, now time.Time) (model.PreFlightArtifact, error) {
	m, err := cap.Metrics(ctx)
	if err != nil {
		return model.PreFlightArtifact{}, fmt.Errorf("validator: collecting metrics for %s: %w", serial, err)
	}

	artifact := model.PreFlightArtifact{
		Serial:          serial,
		Timestamp:       now.UTC().Format(time.RFC3339),
		TCPSessions:     m.TCPSessions,
		RouteCount:      len(m.Routes),
		Routes:          canonicalRoutes(m.Routes),
		ARPCount:        len(m.ARPEntries),
		ARPEntries:      canonicalARP(m.ARPEntries),
		DiskAvailableGB: m.DiskAvailableGB,
		Custom:          m.Custom,
	}

	dir := v.cfg.ValidationPreDir()
	if phase == "post" {
		dir = v.cfg.ValidationPostDir()
	}
	path := dir + "/" + serial + ".json"
	if err := fsstore.WriteJSON(path, artifact); err != nil {
		return model.PreFlightArtifact{}, fmt.Errorf("validator: writing %s: %w", path, err)
	}
	return artifact, nil
}

// LoadPreFlight reads back a previously collected pre-flight artifact from
// validation/pre_flight/{serial}.json.
func (v *Validator) LoadPreFlight(serial string) (model.PreFlightArtifact, error) {
	var artifact model.PreFlightArtifact
	path := v.cfg.ValidationPreDir() + "/" + serial + ".json"
	if err := fsstore.ReadJSON(path, &artifact); err != nil {
		return model.PreFlightArtifact{}, fmt.Errorf("validator: loading %s: %w", path, err)
	}
	return artifact, nil
}

// Compare evaluates post against pre within the configured margins. It
// writes nothing; WritePostFlight persists the pair and the comparison.
func (v *Validator) Compare(pre, post model.PreFlightArtifact) model.Comparison {
	cmp := model.Comparison{
		TCPSessions: compareTCP(pre.TCPSessions, post.TCPSessions, v.cfg.Validation.TCPSessionMarginPercent),
		Routes:      compareRoutes(pre.Routes, post.Routes, v.cfg.Validation.RouteMargin),
		ARPEntries:  compareARP(pre.ARPEntries, post.ARPEntries, v.cfg.Validation.ARPMargin),
		Custom:      compareCustom(pre.Custom, post.Custom, v.cfg.Validation.CustomMetrics, v.cfg.Validation.TCPSessionMarginPercent),
	}
	cmp.ValidationPassed = cmp.TCPSessions.WithinMargin && cmp.Routes.ValidationPassed && cmp.ARPEntries.ValidationPassed
	for _, c := range cmp.Custom {
		cmp.ValidationPassed = cmp.ValidationPassed && c.WithinMargin
	}
	return cmp
}

// WritePostFlight persists the combined pre/post/comparison record for an
// operator to review later.
func (v *Validator) WritePostFlight(serial string, pre, post model.PreFlightArtifact, cmp model.Comparison, now time.Time) error {
	record := model.PostFlightArtifact{
		Serial:     serial,
		Timestamp:  now.UTC().Format(time.RFC3339),
		PreFlight:  pre,
		PostFlight: post,
		Comparison: cmp,
	}
	path := v.cfg.ValidationPostDir() + "/" + serial + ".json"
	return fsstore.WriteJSON(path, record)
}

// DiskPrecheck reports whether cap has at least minGB of free space,
// called before every download per spec §4.6.
func DiskPrecheck(ctx context.Context, cap deviceapi.Capability, minGB float64) (ok bool, availableGB float64, err error) {
	availableGB, err = cap.DiskAvailable(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("validator: checking disk space: %w", err)
	}
	return availableGB >= minGB, availableGB, nil
}

func canonicalRoutes(in []deviceapi.Route) []model.RouteEntry {
	out := make([]model.RouteEntry, len(in))
	for i, r := range in {
		out[i] = model.RouteEntry{Destination: r.Destination, Gateway: r.Gateway, Interface: r.Interface}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Destination != out[j].Destination {
			return out[i].Destination < out[j].Destination
		}
		if out[i].Gateway != out[j].Gateway {
			return out[i].Gateway < out[j].Gateway
		}
		return out[i].Interface < out[j].Interface
	})
	return out
}

func canonicalARP(in []deviceapi.ARPEntry) []model.ARPEntry {
	out := make([]model.ARPEntry, len(in))
	for i, e := range in {
		out[i] = model.ARPEntry{IP: e.IP, MAC: e.MAC}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IP != out[j].IP {
			return out[i].IP < out[j].IP
		}
		return out[i].MAC < out[j].MAC
	})
	return out
}

func compareTCP(pre, post int, marginPercent float64) model.TCPComparison {
	diff := post - pre
	denom := pre
	if denom < 1 {
		denom = 1
	}
	pct := 100.0 * float64(diff) / float64(denom)
	return model.TCPComparison{
		Difference:   diff,
		Percentage:   pct,
		WithinMargin: absFloat(pct) <= marginPercent,
	}
}

func compareRoutes(pre, post []model.RouteEntry, margin int) model.RouteComparison {
	added, removed := diffRoutes(pre, post)
	countDiff := len(post) - len(pre)
	return model.RouteComparison{
		CountDifference:  countDiff,
		Added:            added,
		Removed:          removed,
		ValidationPassed: len(added) <= margin && len(removed) <= margin,
	}
}

func diffRoutes(pre, post []model.RouteEntry) (added, removed []model.RouteEntry) {
	preSet := map[model.RouteEntry]bool{}
	for _, r := range pre {
		preSet[r] = true
	}
	postSet := map[model.RouteEntry]bool{}
	for _, r := range post {
		postSet[r] = true
	}
	for _, r := range post {
		if !preSet[r] {
			added = append(added, r)
		}
	}
	for _, r := range pre {
		if !postSet[r] {
			removed = append(removed, r)
		}
	}
	return added, removed
}

func compareARP(pre, post []model.ARPEntry, margin int) model.ARPComparison {
	added, removed := diffARP(pre, post)
	countDiff := len(post) - len(pre)
	return model.ARPComparison{
		CountDifference:  countDiff,
		Added:            added,
		Removed:          removed,
		ValidationPassed: len(added) <= margin && len(removed) <= margin,
	}
}

func diffARP(pre, post []model.ARPEntry) (added, removed []model.ARPEntry) {
	preSet := map[model.ARPEntry]bool{}
	for _, e := range pre {
		preSet[e] = true
	}
	postSet := map[model.ARPEntry]bool{}
	for _, e := range post {
		postSet[e] = true
	}
	for _, e := range post {
		if !preSet[e] {
			added = append(added, e)
		}
	}
	for _, e := range pre {
		if !postSet[e] {
			removed = append(removed, e)
		}
	}
	return added, removed
}

// compareCustom applies the same percentage-margin rule as tcp_sessions to
// each operator-named custom metric, per SPEC_FULL.md §C.5. A metric
// missing from either snapshot is skipped rather than treated as zero.
func compareCustom(pre, post map[string]float64, names []string, marginPercent float64) []model.CustomComparison {
	if len(names) == 0 {
		return nil
	}
	out := make([]model.CustomComparison, 0, len(names))
	for _, name := range names {
		preVal, preOK := pre[name]
		postVal, postOK := post[name]
		if !preOK || !postOK {
			continue
		}
		diff := postVal - preVal
		denom := absFloat(preVal)
		if denom < 1 {
			denom = 1
		}
		pct := 100.0 * diff / denom
		out = append(out, model.CustomComparison{
			Name:         name,
			Difference:   diff,
			Percentage:   pct,
			WithinMargin: absFloat(pct) <= marginPercent,
		})
	}
	return out
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
