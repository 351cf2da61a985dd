package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const interproXMLFixture = `<?xml version="1.0"?>
<interpromatch>
  <interpro id="IPR000001" type="Domain">
    <name>Test domain</name>
    <member_list>
      <db_xref db="PFAM" dbkey="PF00001"/>
    </member_list>
    <class_list>
      <classification id="GO:0008150" class_type="GO"/>
      <classification id="NOT_GO" class_type="OTHER"/>
    </class_list>
  </interpro>
</interpromatch>
`

func TestParseInterProXML(t *testing.T) {
	entries, err := ParseInterProXML(strings.NewReader(interproXMLFixture))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.Equal(t, "IPR000001", e.ID)
	require.Equal(t, "Domain", e.Type)
	require.Equal(t, "Test domain", e.Name)
	require.Equal(t, []string{"PFAM:PF00001"}, e.MemberDatabases)
	require.Equal(t, []string{"GO:0008150"}, e.GOCrossReferences)
}

func TestParseInterProXML_MalformedIsFatal(t *testing.T) {
	_, err := ParseInterProXML(strings.NewReader("not xml at all <<<"))
	require.Error(t, err)
}

func TestInterProListScanner_SkipsHeaderAndShortRows(t *testing.T) {
	data := "ENTRY_AC\tENTRY_TYPE\tENTRY_NAME\n" +
		"IPR000001\tDomain\tTest domain\n" +
		"malformed-row\n" +
		"IPR000002\tFamily\tTest family\n"

	scanner := NewInterProListScanner(strings.NewReader(data))

	require.True(t, scanner.Scan())
	require.Equal(t, InterProListRow{ID: "IPR000001", Type: "Domain", Name: "Test domain"}, scanner.Record())

	require.True(t, scanner.Scan())
	require.Equal(t, InterProListRow{ID: "IPR000002", Type: "Family", Name: "Test family"}, scanner.Record())

	require.False(t, scanner.Scan())
	require.Equal(t, 2, scanner.Stats().RecordsSeen)
	require.Equal(t, 1, scanner.Stats().RecordsSkipped)
}
