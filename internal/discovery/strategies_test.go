package discovery

import (
	"context"
	"testing"
	"time"

	"bioingest/internal/fetcher"

	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	byDir map[string][]fetcher.DirEntry
}

func (f fakeLister) List(ctx context.Context, directory string) ([]fetcher.DirEntry, error) {
	return f.byDir[directory], nil
}

func TestMonthlyStrategy_LatestHistoricalIsCurrent(t *testing.T) {
	lister := fakeLister{byDir: map[string][]fetcher.DirEntry{
		"previous_releases": {
			{Name: "2023_11", IsDir: true},
			{Name: "2024_01", IsDir: true},
			{Name: "2023_12", IsDir: true},
			{Name: "README", IsDir: false},
		},
	}}

	versions, err := MonthlyStrategy{HistoricalPath: "previous_releases"}.Discover(context.Background(), lister)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	require.Equal(t, "2023_11", versions[0].ExternalVersion)
	require.Equal(t, "2024_01", versions[2].ExternalVersion)
	require.True(t, versions[2].IsCurrent)
	require.False(t, versions[0].IsCurrent)
}

func TestDailyStrategy_RejectsInvalidCalendarDates(t *testing.T) {
	lister := fakeLister{byDir: map[string][]fetcher.DirEntry{
		"release": {
			{Name: "2024-01-15"},
			{Name: "2024-13-40"}, // not a real date
			{Name: "not-a-date"},
			{Name: "2024-02-01"},
		},
	}}

	versions, err := DailyStrategy{Path: "release"}.Discover(context.Background(), lister)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	require.Equal(t, "2024-01-15", versions[0].ExternalVersion)
	require.Equal(t, "2024-02-01", versions[1].ExternalVersion)
	require.True(t, versions[1].IsCurrent)
}

func TestMajorMinorStrategy_OrdersNumerically(t *testing.T) {
	lister := fakeLister{byDir: map[string][]fetcher.DirEntry{
		"interpro": {
			{Name: "current"},
			{Name: "95.0"},
			{Name: "100.0"},
			{Name: "99.1"},
		},
	}}

	versions, err := MajorMinorStrategy{Path: "interpro"}.Discover(context.Background(), lister)
	require.NoError(t, err)
	require.Equal(t, []string{"95.0", "99.1", "100.0"}, []string{
		versions[0].ExternalVersion, versions[1].ExternalVersion, versions[2].ExternalVersion,
	})
	require.True(t, versions[2].IsCurrent)
}

func TestMonotoneIntegerStrategy_EstimatesDateWhenModTimeMissing(t *testing.T) {
	estimation := LinearDateEstimation{
		EpochRelease: 250,
		Epoch:        time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		Period:       45 * 24 * time.Hour,
	}
	lister := fakeLister{byDir: map[string][]fetcher.DirEntry{
		"genbank": {
			{Name: "GB_Release_252.0"},
			{Name: "GB_Release_250.0"},
			{Name: "GB_Release_251.0"},
			{Name: "ignored.txt"},
		},
	}}

	versions, err := MonotoneIntegerStrategy{Path: "genbank", Pattern: GenBankPattern, DateEstimation: estimation}.Discover(context.Background(), lister)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	require.Equal(t, "GB_Release_250.0", versions[0].ExternalVersion)
	require.Equal(t, estimation.Epoch, versions[0].ReleaseDate)
	require.Equal(t, "GB_Release_252.0", versions[2].ExternalVersion)
	require.True(t, versions[2].IsCurrent)
}

func TestMonotoneIntegerStrategy_PrefersRealModTimeOverEstimate(t *testing.T) {
	real := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	lister := fakeLister{byDir: map[string][]fetcher.DirEntry{
		"refseq": {
			{Name: "RefSeq-220", ModTime: real},
		},
	}}

	versions, err := MonotoneIntegerStrategy{Path: "refseq", Pattern: RefSeqPattern}.Discover(context.Background(), lister)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, real, versions[0].ReleaseDate)
}
