package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const oboFixture = `format-version: 1.2

[Term]
id: GO:0008150
name: biological_process
namespace: biological_process
def: "A biological process." [GOC:go_curators]

[Typedef]
id: part_of
name: part of

[Term]
id: GO:0009987
name: cellular process
namespace: biological_process
is_a: GO:0008150 ! biological_process
synonym: "cell process" EXACT []

[Term]
id: GO:0000001
name: obsolete term
is_obsolete: true
`

func TestOBOScanner_YieldsOnlyTermStanzas(t *testing.T) {
	scanner := NewOBOScanner(strings.NewReader(oboFixture))

	require.True(t, scanner.Scan())
	first := scanner.Record()
	require.Equal(t, "GO:0008150", first.ID)
	require.Equal(t, "biological_process", first.Name)
	require.Equal(t, "A biological process.", first.Definition)

	require.True(t, scanner.Scan())
	second := scanner.Record()
	require.Equal(t, "GO:0009987", second.ID)
	require.Len(t, second.Relations, 1)
	require.Equal(t, "is_a", second.Relations[0].Kind)
	require.Equal(t, "GO:0008150", second.Relations[0].Target)
	require.Equal(t, []string{"cell process"}, second.Synonyms)

	require.True(t, scanner.Scan())
	third := scanner.Record()
	require.Equal(t, "GO:0000001", third.ID)
	require.True(t, third.Obsolete)

	require.False(t, scanner.Scan())
	require.Equal(t, 3, scanner.Stats().RecordsSeen)
}
