package discovery

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"time"
)

// MonthlyStrategy discovers releases named YYYY_MM in a historical
// releases directory (UniProt's `previous_releases/` layout). UniProt
// additionally republishes the current release under a distinguished
// `current_release/` path that carries no YYYY_MM name of its own; since
// Lister only lists directories (it never reads file content, so it
// cannot parse the `reldate.txt` marker that names the current release),
// the most recent historical entry is treated as current — which holds
// because `previous_releases/` always contains a copy of the release
// that is presently current.
type MonthlyStrategy struct {
	HistoricalPath string
}

var monthlyPattern = regexp.MustCompile(`^\d{4}_\d{2}$`)

func (s MonthlyStrategy) Discover(ctx context.Context, lister Lister) ([]DiscoveredVersion, error) {
	entries, err := lister.List(ctx, s.HistoricalPath)
	if err != nil {
		return nil, err
	}

	var out []DiscoveredVersion
	for _, e := range entries {
		if !e.IsDir || !monthlyPattern.MatchString(e.Name) {
			continue
		}
		date, ok := parseYYYYMM(e.Name)
		if !ok {
			continue
		}
		out = append(out, DiscoveredVersion{ExternalVersion: e.Name, ReleaseDate: date, Location: s.HistoricalPath + "/" + e.Name})
	}

	sortByDate(out)
	if len(out) > 0 {
		out[len(out)-1].IsCurrent = true
	}
	return out, nil
}

func parseYYYYMM(name string) (time.Time, bool) {
	t, err := time.Parse("2006_01", name)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DailyStrategy discovers releases named YYYY-MM-DD (Gene Ontology,
// NCBI Taxonomy archive), each candidate validated as a real calendar
// date before being accepted.
type DailyStrategy struct {
	Path string
}

var dailyPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

func (s DailyStrategy) Discover(ctx context.Context, lister Lister) ([]DiscoveredVersion, error) {
	entries, err := lister.List(ctx, s.Path)
	if err != nil {
		return nil, err
	}

	var out []DiscoveredVersion
	for _, e := range entries {
		if !dailyPattern.MatchString(e.Name) {
			continue
		}
		date, err := time.Parse("2006-01-02", e.Name)
		if err != nil {
			continue // not a real calendar date, e.g. 2024-13-40
		}
		out = append(out, DiscoveredVersion{ExternalVersion: e.Name, ReleaseDate: date, Location: s.Path + "/" + e.Name})
	}
	sortByDate(out)
	if len(out) > 0 {
		out[len(out)-1].IsCurrent = true
	}
	return out, nil
}

// MajorMinorStrategy discovers releases named NN.N (InterPro) as numbered
// sibling directories. The `current/` symlink entry is skipped; the
// highest numbered release is marked current.
type MajorMinorStrategy struct {
	Path string
}

var majorMinorPattern = regexp.MustCompile(`^(\d+)\.(\d+)$`)

func (s MajorMinorStrategy) Discover(ctx context.Context, lister Lister) ([]DiscoveredVersion, error) {
	entries, err := lister.List(ctx, s.Path)
	if err != nil {
		return nil, err
	}

	var out []DiscoveredVersion
	for _, e := range entries {
		// "current" is a symlink to the newest numbered directory, not a
		// release of its own; skip it and derive current from ordering.
		if e.Name == "current" {
			continue
		}
		if !majorMinorPattern.MatchString(e.Name) {
			continue
		}
		out = append(out, DiscoveredVersion{ExternalVersion: e.Name, Location: s.Path + "/" + e.Name})
	}

	sort.Slice(out, func(i, j int) bool { return majorMinorLess(out[i].ExternalVersion, out[j].ExternalVersion) })
	if len(out) > 0 {
		out[len(out)-1].IsCurrent = true
	}
	return out, nil
}

func majorMinorLess(a, b string) bool {
	am := majorMinorPattern.FindStringSubmatch(a)
	bm := majorMinorPattern.FindStringSubmatch(b)
	if am == nil || bm == nil {
		return a < b
	}
	aMajor, _ := strconv.Atoi(am[1])
	aMinor, _ := strconv.Atoi(am[2])
	bMajor, _ := strconv.Atoi(bm[1])
	bMinor, _ := strconv.Atoi(bm[2])
	if aMajor != bMajor {
		return aMajor < bMajor
	}
	return aMinor < bMinor
}

// MonotoneIntegerStrategy discovers releases named with a monotonically
// increasing release number (GenBank `GB_Release_N.0`, RefSeq
// `RefSeq-N`). Upstream rarely publishes real dates for old releases, so
// release dates are estimated with a linear formula in release number;
// the formula's constants are configuration (spec's Open Question:
// "exact constants drift between documents, expose as config").
type MonotoneIntegerStrategy struct {
	Path    string
	Pattern *regexp.Regexp // must have exactly one capture group: the release number

	// DateEstimation estimates a release's date from its number when the
	// upstream listing carries no usable ModTime.
	DateEstimation LinearDateEstimation
}

// LinearDateEstimation estimates release N's date as
// Epoch + (N - EpochRelease) * Period.
type LinearDateEstimation struct {
	EpochRelease int
	Epoch        time.Time
	Period       time.Duration
}

func (e LinearDateEstimation) Estimate(release int) time.Time {
	delta := release - e.EpochRelease
	return e.Epoch.Add(time.Duration(delta) * e.Period)
}

// GenBankPattern matches `GB_Release_257.0`-style entries.
var GenBankPattern = regexp.MustCompile(`^GB_Release_(\d+)\.0$`)

// RefSeqPattern matches `RefSeq-221`-style entries.
var RefSeqPattern = regexp.MustCompile(`^RefSeq-(\d+)$`)

func (s MonotoneIntegerStrategy) Discover(ctx context.Context, lister Lister) ([]DiscoveredVersion, error) {
	entries, err := lister.List(ctx, s.Path)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		DiscoveredVersion
		n int
	}
	var out []numbered
	for _, e := range entries {
		m := s.Pattern.FindStringSubmatch(e.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		date := e.ModTime
		if date.IsZero() {
			date = s.DateEstimation.Estimate(n)
		}
		out = append(out, numbered{DiscoveredVersion{ExternalVersion: e.Name, ReleaseDate: date, Location: s.Path + "/" + e.Name}, n})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].n < out[j].n })

	result := make([]DiscoveredVersion, len(out))
	for i, n := range out {
		result[i] = n.DiscoveredVersion
	}
	if len(result) > 0 {
		result[len(result)-1].IsCurrent = true
	}
	return result, nil
}

func sortByDate(versions []DiscoveredVersion) {
	sort.Slice(versions, func(i, j int) bool { return versions[i].ReleaseDate.Before(versions[j].ReleaseDate) })
}
