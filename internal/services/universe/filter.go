package universe

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"PairPilot/internal/domain/models"
	"PairPilot/internal/domain/repository"
	applogger "PairPilot/pkg/logger"
)

// ErrAutoAddDisabled is returned when promotion is attempted without the
// auto-add flag.
var ErrAutoAddDisabled = errors.New("universe: auto-add to whitelist is disabled")

// Thresholds are the discovery-mode quality gates. A zero Max* threshold
// disables that check.
type Thresholds struct {
	MinVolume24h      float64
	MinAgeDays        float64
	MaxSpreadBps      float64
	MinDepthUSD       float64
	MinVenues         int
	MaxSuspicionScore float64
}

// FilterConfig configures DiscoveryFilter.
type FilterConfig struct {
	WhitelistMode bool
	Whitelist     []string
	AutoAdd       bool
	Thresholds    Thresholds
}

// DiscoveryFilter narrows the discovered universe to tradable candidates.
type DiscoveryFilter struct {
	mu        sync.RWMutex
	cfg       FilterConfig
	whitelist []string
	now       func() time.Time
	log       *applogger.Logger
}

// NewDiscoveryFilter builds a filter. The whitelist is de-duplicated,
// keeping first occurrences.
func NewDiscoveryFilter(cfg FilterConfig, log *applogger.Logger) *DiscoveryFilter {
	if log == nil {
		log = applogger.NewNop()
	}
	return &DiscoveryFilter{
		cfg:       cfg,
		whitelist: dedupe(cfg.Whitelist),
		now:       time.Now,
		log:       log,
	}
}

// SetClock overrides time.Now for listing-age checks.
func (f *DiscoveryFilter) SetClock(now func() time.Time) {
	if now != nil {
		f.now = now
	}
}

// WhitelistMode reports whether discovery results are ignored.
func (f *DiscoveryFilter) WhitelistMode() bool { return f.cfg.WhitelistMode }

// Whitelist returns a copy of the current allow-list.
func (f *DiscoveryFilter) Whitelist() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return slices.Clone(f.whitelist)
}

// Filter applies the configured policy to discovered pairs.
//
// In whitelist mode the allow-list is returned as is and every other
// discovered pair is rejected NOT_IN_WHITELIST. In discovery mode each
// discovered pair is checked in order against volume, listing age, spread,
// depth, venue count and suspicion score; the first failing check is the
// rejection reason. Pairs without metadata are rejected NO_METADATA. With
// AutoAdd, accepted pairs are appended to the in-memory allow-list and
// reported in Promoted; the allow-list is not persisted.
func (f *DiscoveryFilter) Filter(ctx context.Context, discovered []string, meta repository.MetadataSource) (models.FilterResult, error) {
	res := models.FilterResult{Rejected: map[string]models.RejectionReason{}}
	discovered = dedupe(discovered)

	if f.cfg.WhitelistMode {
		wl := f.Whitelist()
		res.Accepted = wl
		for _, p := range discovered {
			if !slices.Contains(wl, p) {
				res.Rejected[p] = models.RejectNotInWhitelist
			}
		}
		return res, nil
	}

	var md map[string]models.PairMetadata
	if meta != nil && len(discovered) > 0 {
		var err error
		md, err = meta.GetPairMetadata(ctx, discovered)
		if err != nil {
			return res, fmt.Errorf("pair metadata: %w", err)
		}
	}

	res.Accepted = make([]string, 0, len(discovered))
	for _, p := range discovered {
		m, ok := md[p]
		if !ok {
			res.Rejected[p] = models.RejectNoMetadata
			continue
		}
		if reason, ok := f.Check(m); !ok {
			res.Rejected[p] = reason
			continue
		}
		res.Accepted = append(res.Accepted, p)
	}

	if f.cfg.AutoAdd {
		for _, p := range res.Accepted {
			added, err := f.PromoteToWhitelist(p)
			if err != nil {
				return res, err
			}
			if added {
				res.Promoted = append(res.Promoted, p)
			}
		}
		if len(res.Promoted) > 0 {
			f.log.Info("pairs promoted to whitelist", applogger.Strings("pairs", res.Promoted))
		}
	}
	return res, nil
}

// Check runs the discovery checks against m, stopping at the first failure.
func (f *DiscoveryFilter) Check(m models.PairMetadata) (models.RejectionReason, bool) {
	th := f.cfg.Thresholds
	switch {
	case m.Volume24h < th.MinVolume24h:
		return models.RejectLowVolume, false
	case th.MinAgeDays > 0 && (m.ListedAt.IsZero() || f.now().Sub(m.ListedAt).Hours()/24 < th.MinAgeDays):
		return models.RejectTooNew, false
	case th.MaxSpreadBps > 0 && m.SpreadBps > th.MaxSpreadBps:
		return models.RejectWideSpread, false
	case m.DepthUSD < th.MinDepthUSD:
		return models.RejectShallowDepth, false
	case m.VenueCount < th.MinVenues:
		return models.RejectFewVenues, false
	case th.MaxSuspicionScore > 0 && m.SuspicionScore > th.MaxSuspicionScore:
		return models.RejectSuspicious, false
	}
	return "", true
}

// PromoteToWhitelist appends pair to the allow-list. It reports whether the
// pair was new and fails with ErrAutoAddDisabled unless auto-add is on.
func (f *DiscoveryFilter) PromoteToWhitelist(pair string) (bool, error) {
	if !f.cfg.AutoAdd {
		return false, ErrAutoAddDisabled
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if slices.Contains(f.whitelist, pair) {
		return false, nil
	}
	f.whitelist = append(f.whitelist, pair)
	return true, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
