package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyLineage(t *testing.T) {
	require.Equal(t, OrganismEukaryote, ClassifyLineage([]string{"Eukaryota", "Metazoa"}))
	require.Equal(t, OrganismVirus, ClassifyLineage([]string{"Viruses", "Varidnaviria"}))
	require.Equal(t, OrganismBacteria, ClassifyLineage([]string{"Bacteria", "Proteobacteria"}))
	require.Equal(t, OrganismArchaea, ClassifyLineage([]string{"Archaea"}))
	require.Equal(t, OrganismUnknown, ClassifyLineage(nil))
}

func TestBuildSentinelIndex_FindsEachRecordStart(t *testing.T) {
	data := "ID   ONE\n//\nID   TWO\n//\nID   THREE\n//\n"
	index, err := BuildSentinelIndex(strings.NewReader(data), "//")
	require.NoError(t, err)
	require.Equal(t, OffsetIndex{0, int64(len("ID   ONE\n//\n")), int64(len("ID   ONE\n//\nID   TWO\n//\n"))}, index)
}

func TestBuildLineOffsetIndex_SkipsBlankLines(t *testing.T) {
	data := "a\n\nb\nc\n"
	index, err := BuildLineOffsetIndex(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, index, 3)
}

func TestParseRange(t *testing.T) {
	start, end, ok := parseRange("1..256")
	require.True(t, ok)
	require.Equal(t, 1, start)
	require.Equal(t, 256, end)

	start, end, ok = parseRange("42")
	require.True(t, ok)
	require.Equal(t, 42, start)
	require.Equal(t, 42, end)

	_, _, ok = parseRange("not-a-range")
	require.False(t, ok)
}

func TestExtractKeyValue(t *testing.T) {
	v, ok := extractKeyValue("RecName: Full=Cytochrome c; EC=1.1.1.1;", "Full")
	require.True(t, ok)
	require.Equal(t, "Cytochrome c", v)

	v, ok = extractKeyValue("RecName: Full=Cytochrome c; EC=1.1.1.1;", "EC")
	require.True(t, ok)
	require.Equal(t, "1.1.1.1", v)

	_, ok = extractKeyValue("RecName: Full=Cytochrome c;", "Missing")
	require.False(t, ok)
}
