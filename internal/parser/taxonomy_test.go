package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTaxonomyNodeScanner_ParsesAndSkipsMalformed(t *testing.T) {
	data := "9606\t|\t9605\t|\tspecies\t|\n" +
		"not-a-number\t|\t1\t|\tspecies\t|\n" +
		"9605\t|\t207598\t|\tgenus\t|\n"

	scanner := NewTaxonomyNodeScanner(strings.NewReader(data))

	require.True(t, scanner.Scan())
	require.Equal(t, TaxonomyNode{TaxonID: 9606, ParentID: 9605, Rank: "species"}, scanner.Record())

	require.True(t, scanner.Scan())
	require.Equal(t, TaxonomyNode{TaxonID: 9605, ParentID: 207598, Rank: "genus"}, scanner.Record())

	require.False(t, scanner.Scan())
	require.Equal(t, 2, scanner.Stats().RecordsSeen)
	require.Equal(t, 1, scanner.Stats().RecordsSkipped)
}

func TestTaxonomyNameScanner_ParsesScientificName(t *testing.T) {
	data := "9606\t|\tHomo sapiens\t|\t\t|\tscientific name\t|\n"
	scanner := NewTaxonomyNameScanner(strings.NewReader(data))

	require.True(t, scanner.Scan())
	rec := scanner.Record()
	require.Equal(t, 9606, rec.TaxonID)
	require.Equal(t, "Homo sapiens", rec.Name)
	require.Equal(t, "scientific name", rec.NameClass)
}
