package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const genbankFixture = `LOCUS       TESTSEQ1                  20 bp    DNA     linear   BCT 01-JAN-2024
DEFINITION  Test sequence one.
ACCESSION   TESTSEQ1
VERSION     TESTSEQ1.1
SOURCE      Escherichia coli
  ORGANISM  Escherichia coli
            Bacteria; Pseudomonadota; Gammaproteobacteria; Enterobacterales;
            Enterobacteriaceae; Escherichia.
FEATURES             Location/Qualifiers
     source          1..20
                     /organism="Escherichia coli"
     CDS             complement(join(1..5,11..20))
                     /gene="testGene"
                     /protein_id="ABC12345.1"
ORIGIN
        1 acgtacgtac gtacgtacgt
//
`

func TestGenBankScanner_ParsesLocusAndOrganism(t *testing.T) {
	scanner := NewGenBankScanner(strings.NewReader(genbankFixture))
	require.True(t, scanner.Scan())
	rec := scanner.Record()

	require.Equal(t, "TESTSEQ1", rec.Locus)
	require.Equal(t, 20, rec.Length)
	require.Equal(t, "DNA", rec.MoleculeType)
	require.Equal(t, "Test sequence one", rec.Definition)
	require.Equal(t, "TESTSEQ1", rec.Accession)
	require.Equal(t, "TESTSEQ1.1", rec.Version)
	require.Equal(t, "Escherichia coli", rec.OrganismName)
	require.Equal(t, []string{"Bacteria", "Pseudomonadota", "Gammaproteobacteria", "Enterobacterales", "Enterobacteriaceae", "Escherichia"}, rec.Lineage)
	require.Equal(t, OrganismBacteria, rec.OrganismKind)
	require.Equal(t, "acgtacgtacgtacgtacgt", rec.Sequence)

	require.Len(t, rec.Features, 2)
	require.Equal(t, "source", rec.Features[0].Type)
	require.Equal(t, "CDS", rec.Features[1].Type)
	require.True(t, rec.Features[1].Location.Complement)
	require.Equal(t, []GenBankRange{{Start: 1, End: 5}, {Start: 11, End: 20}}, rec.Features[1].Location.Ranges)
	require.Equal(t, []string{"ABC12345.1"}, rec.Features[1].Qualifiers["protein_id"])

	require.False(t, scanner.Scan())
	require.NoError(t, scanner.Err())
}

func TestParseGenBankLocation(t *testing.T) {
	loc, err := parseGenBankLocation("123..456")
	require.NoError(t, err)
	require.False(t, loc.Complement)
	require.Equal(t, []GenBankRange{{Start: 123, End: 456}}, loc.Ranges)

	loc, err = parseGenBankLocation("complement(123..456)")
	require.NoError(t, err)
	require.True(t, loc.Complement)

	loc, err = parseGenBankLocation("join(1..10,20..30)")
	require.NoError(t, err)
	require.Equal(t, []GenBankRange{{Start: 1, End: 10}, {Start: 20, End: 30}}, loc.Ranges)

	_, err = parseGenBankLocation("garbage")
	require.Error(t, err)
}
