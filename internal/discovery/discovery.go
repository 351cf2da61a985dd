// Package discovery implements per-organization version-discovery
// strategies: given a directory listing from the fetcher, decide which
// external versions exist upstream, which one is current, and which
// ones the registry has already ingested.
package discovery

import (
	"context"
	"time"

	"bioingest/internal/fetcher"
	"bioingest/internal/model"
)

// DiscoveredVersion is one upstream release a Strategy found.
type DiscoveredVersion struct {
	ExternalVersion string
	ReleaseDate     time.Time
	Location        string
	IsCurrent       bool
}

// Strategy discovers releases for one organization's upstream layout.
// Implementations must return candidates oldest first.
type Strategy interface {
	Discover(ctx context.Context, lister Lister) ([]DiscoveredVersion, error)
}

// Lister is the subset of fetcher.Fetcher a Strategy needs: directory
// listing only, never download.
type Lister interface {
	List(ctx context.Context, directory string) ([]fetcher.DirEntry, error)
}

// IngestedVersion is what the registry already knows about a release,
// used to filter Discover's results and to run migration detection.
type IngestedVersion struct {
	ExternalVersion string
	WasCurrent      bool
}

// Filter narrows a Strategy's raw candidates down to versions genuinely
// worth ingesting: never-seen-before versions, and a cutoff on date or
// external version string.
type Filter struct {
	Ingested      []IngestedVersion
	StartDate     time.Time
	StartExternal string
}

// Apply returns the subset of candidates that pass the cutoff, are not a
// no-op migration of an already-ingested current release, and have not
// been ingested before.
func (f Filter) Apply(candidates []DiscoveredVersion) []DiscoveredVersion {
	ingested := make(map[string]bool, len(f.Ingested))
	wasCurrent := make(map[string]bool, len(f.Ingested))
	for _, v := range f.Ingested {
		ingested[v.ExternalVersion] = true
		if v.WasCurrent {
			wasCurrent[v.ExternalVersion] = true
		}
	}

	var out []DiscoveredVersion
	for _, c := range candidates {
		if !f.StartDate.IsZero() && !c.ReleaseDate.IsZero() && c.ReleaseDate.Before(f.StartDate) {
			continue
		}
		if f.StartExternal != "" && c.ExternalVersion < f.StartExternal {
			continue
		}
		// Migration detection: a historical candidate that was ingested
		// while it was still current is a no-op move, not a new release.
		if !c.IsCurrent && wasCurrent[c.ExternalVersion] {
			continue
		}
		if ingested[c.ExternalVersion] {
			// Already ingested (as current or historical): skip duplicate
			// work.
			continue
		}
		out = append(out, c)
	}
	return out
}

// CheckForNewerVersion compares the most recent discovered current
// version against the latest ingested current version by semantic
// triple (not by external string), returning the newer one if any.
func CheckForNewerVersion(discoveredCurrent DiscoveredVersion, latestIngested model.SemVer, discoveredAsSemVer func(DiscoveredVersion) model.SemVer) (DiscoveredVersion, bool) {
	candidate := discoveredAsSemVer(discoveredCurrent)
	if latestIngested.Less(candidate) {
		return discoveredCurrent, true
	}
	return DiscoveredVersion{}, false
}
