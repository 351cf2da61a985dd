package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const uniprotFixture = `ID   TEST_ORG                Reviewed;          10 AA.
AC   P00001; P00002;
DE   RecName: Full=Test protein;
DE   AltName: Full=Alternate test protein;
GN   Name=testA;
OS   Homo sapiens.
OC   Eukaryota; Metazoa; Chordata; Craniata; Vertebrata.
OX   NCBI_TaxID=9606;
DT   01-JAN-2020, integrated into UniProtKB/Swiss-Prot.
KW   Reference proteome; Transferase.
FT   CHAIN           1..10
FT                   /note="Test protein chain"
DR   PDB; 1ABC; X-ray; 1.50 A; A=1-10.
CC   -!- FUNCTION: Does a test thing.
SQ   SEQUENCE   10 AA;  1234 MW;  ABCD1234EFGH5678 CRC64;
     ABCDEFGHIJ
//
`

func TestUniProtScanner_ParsesCoreFields(t *testing.T) {
	scanner := NewUniProtScanner(strings.NewReader(uniprotFixture))
	require.True(t, scanner.Scan())
	rec := scanner.Record()

	require.Equal(t, "P00001", rec.PrimaryAccession)
	require.Equal(t, []string{"P00002"}, rec.SecondaryAccessions)
	require.Equal(t, "TEST_ORG", rec.EntryName)
	require.Equal(t, "Test protein", rec.RecommendedName)
	require.Equal(t, []string{"Alternate test protein"}, rec.AlternativeNames)
	require.Equal(t, "testA", rec.GeneName)
	require.Equal(t, "Homo sapiens", rec.OrganismName)
	require.Equal(t, 9606, rec.TaxonomyID)
	require.Equal(t, []string{"Eukaryota", "Metazoa", "Chordata", "Craniata", "Vertebrata"}, rec.Lineage)
	require.Equal(t, OrganismEukaryote, rec.OrganismKind)
	require.Equal(t, "ABCDEFGHIJ", rec.Sequence)
	require.Equal(t, 10, rec.SequenceLength)
	require.Equal(t, []string{"Reference proteome", "Transferase"}, rec.Keywords)
	require.Len(t, rec.Features, 1)
	require.Equal(t, "CHAIN", rec.Features[0].Type)
	require.Equal(t, 1, rec.Features[0].Start)
	require.Equal(t, 10, rec.Features[0].End)
	require.Len(t, rec.CrossReferences, 1)
	require.Equal(t, "PDB", rec.CrossReferences[0].Database)
	require.Len(t, rec.Comments, 1)
	require.Equal(t, "FUNCTION", rec.Comments[0].Topic)

	require.False(t, scanner.Scan())
	require.NoError(t, scanner.Err())
	require.Equal(t, 1, scanner.Stats().RecordsSeen)
	require.Equal(t, 0, scanner.Stats().RecordsSkipped)
}

func TestUniProtScanner_SkipsSequenceLengthMismatchWithoutHalting(t *testing.T) {
	good := uniprotFixture
	bad := strings.Replace(uniprotFixture, "SEQUENCE   10 AA", "SEQUENCE   99 AA", 1)
	data := bad + good

	scanner := NewUniProtScanner(strings.NewReader(data))
	require.True(t, scanner.Scan())
	require.Equal(t, "P00001", scanner.Record().PrimaryAccession)
	require.False(t, scanner.Scan())
	require.Equal(t, 1, scanner.Stats().RecordsSeen)
	require.Equal(t, 1, scanner.Stats().RecordsSkipped)
}
