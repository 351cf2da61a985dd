package versioning

import (
	"testing"

	"bioingest/internal/model"

	"github.com/stretchr/testify/require"
)

func TestStrategy_Classify_EmptyChangelogIsNone(t *testing.T) {
	require.Equal(t, model.BumpNone, Protein.Classify(nil))
	require.Equal(t, model.BumpNone, Protein.Classify(model.Changelog{}))
}

func TestStrategy_Classify_InitialAlwaysWins(t *testing.T) {
	changelog := model.Changelog{
		{Kind: model.ChangeInitial, Category: model.CategoryMetadata},
		{Kind: model.ChangeModified, Category: model.CategorySequence},
	}
	require.Equal(t, model.BumpInitial, Protein.Classify(changelog))
}

func TestProtein_SequenceChangeIsMajor(t *testing.T) {
	changelog := model.Changelog{
		{Kind: model.ChangeModified, Category: model.CategorySequence},
	}
	require.Equal(t, model.BumpMajor, Protein.Classify(changelog))
}

func TestProtein_MajorOutranksMinorAndPatchInSameChangelog(t *testing.T) {
	changelog := model.Changelog{
		{Kind: model.ChangeModified, Category: model.CategoryDefinition}, // patch
		{Kind: model.ChangeModified, Category: model.CategoryName},       // minor
		{Kind: model.ChangeModified, Category: model.CategorySequence},   // major
	}
	require.Equal(t, model.BumpMajor, Protein.Classify(changelog))
}

func TestProtein_MinorOutranksPatch(t *testing.T) {
	changelog := model.Changelog{
		{Kind: model.ChangeModified, Category: model.CategoryDefinition}, // patch
		{Kind: model.ChangeModified, Category: model.CategoryName},       // minor
	}
	require.Equal(t, model.BumpMinor, Protein.Classify(changelog))
}

func TestProtein_UnrecognizedChangeIsNone(t *testing.T) {
	changelog := model.Changelog{
		{Kind: model.ChangeAdded, Category: model.CategoryRelationship},
	}
	require.Equal(t, model.BumpNone, Protein.Classify(changelog))
}

func TestGOTerm_ObsoletionIsMajor(t *testing.T) {
	changelog := model.Changelog{
		{Kind: model.ChangeObsoleted, Category: model.CategoryObsolescence},
	}
	require.Equal(t, model.BumpMajor, GOTerm.Classify(changelog))
}

func TestBundle_DependencyAddedIsMajor_VersionBumpIsMinor(t *testing.T) {
	require.Equal(t, model.BumpMajor, Bundle.Classify(model.Changelog{
		{Kind: model.ChangeAdded, Category: model.CategoryDependency},
	}))
	require.Equal(t, model.BumpMinor, Bundle.Classify(model.Changelog{
		{Kind: model.ChangeModified, Category: model.CategoryDependency},
	}))
}

func TestForSourceType_ResolvesCanonicalStrategies(t *testing.T) {
	require.Equal(t, "protein", ForSourceType("protein").Name)
	require.Equal(t, "go_term", ForSourceType("go_term").Name)
	require.Equal(t, "taxon", ForSourceType("taxon").Name)
	require.Equal(t, "genome", ForSourceType("genome").Name)
	require.Equal(t, "genome", ForSourceType("refseq").Name)
	require.Equal(t, "bundle", ForSourceType("unknown_type").Name)
}
