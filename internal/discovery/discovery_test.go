package discovery

import (
	"testing"
	"time"

	"bioingest/internal/model"

	"github.com/stretchr/testify/require"
)

func TestFilter_Apply_SkipsAlreadyIngestedUnchanged(t *testing.T) {
	filter := Filter{Ingested: []IngestedVersion{
		{ExternalVersion: "2024_01", WasCurrent: true},
	}}

	candidates := []DiscoveredVersion{
		{ExternalVersion: "2024_01", IsCurrent: true},
		{ExternalVersion: "2024_02", IsCurrent: true},
	}

	out := filter.Apply(candidates)
	require.Len(t, out, 1)
	require.Equal(t, "2024_02", out[0].ExternalVersion)
}

func TestFilter_Apply_MigrationOfFormerCurrentIsNoOp(t *testing.T) {
	// 2024_01 was ingested while current; now it shows up again in the
	// historical listing (no longer current) after the next release
	// moved it there. That is a migration, not a new release.
	filter := Filter{Ingested: []IngestedVersion{
		{ExternalVersion: "2024_01", WasCurrent: true},
	}}

	candidates := []DiscoveredVersion{
		{ExternalVersion: "2024_01", IsCurrent: false},
		{ExternalVersion: "2024_02", IsCurrent: true},
	}

	out := filter.Apply(candidates)
	require.Len(t, out, 1)
	require.Equal(t, "2024_02", out[0].ExternalVersion)
}

func TestFilter_Apply_RespectsStartDateCutoff(t *testing.T) {
	filter := Filter{StartDate: time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)}

	candidates := []DiscoveredVersion{
		{ExternalVersion: "2024_01", ReleaseDate: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{ExternalVersion: "2024_02", ReleaseDate: time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)},
	}

	out := filter.Apply(candidates)
	require.Len(t, out, 1)
	require.Equal(t, "2024_02", out[0].ExternalVersion)
}

func TestFilter_Apply_RespectsStartExternalCutoff(t *testing.T) {
	filter := Filter{StartExternal: "95.0"}

	candidates := []DiscoveredVersion{
		{ExternalVersion: "90.0"},
		{ExternalVersion: "95.0"},
		{ExternalVersion: "96.0"},
	}

	out := filter.Apply(candidates)
	require.Len(t, out, 2)
	require.Equal(t, "95.0", out[0].ExternalVersion)
	require.Equal(t, "96.0", out[1].ExternalVersion)
}

func TestCheckForNewerVersion_ComparesBySemVerNotString(t *testing.T) {
	asSemVer := func(d DiscoveredVersion) model.SemVer {
		switch d.ExternalVersion {
		case "2024_01":
			return model.SemVer{Major: 2024, Minor: 1, Patch: 0}
		case "2024_09":
			return model.SemVer{Major: 2024, Minor: 9, Patch: 0}
		}
		return model.SemVer{}
	}

	latest := model.SemVer{Major: 2024, Minor: 1, Patch: 0}
	newer, ok := CheckForNewerVersion(DiscoveredVersion{ExternalVersion: "2024_09", IsCurrent: true}, latest, asSemVer)
	require.True(t, ok)
	require.Equal(t, "2024_09", newer.ExternalVersion)

	_, ok = CheckForNewerVersion(DiscoveredVersion{ExternalVersion: "2024_01", IsCurrent: true}, latest, asSemVer)
	require.False(t, ok)
}
