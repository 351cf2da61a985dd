package storage

import (
	"fmt"
	"reflect"
	"sort"

	"bioingest/internal/model"
)

// stringSetChanges reports added/removed members between two unordered
// string slices, sorted for deterministic changelog ordering.
func stringSetChanges(prev, next []string) (added, removed []string) {
	prevSet := make(map[string]struct{}, len(prev))
	for _, s := range prev {
		prevSet[s] = struct{}{}
	}
	nextSet := make(map[string]struct{}, len(next))
	for _, s := range next {
		nextSet[s] = struct{}{}
	}
	for s := range nextSet {
		if _, ok := prevSet[s]; !ok {
			added = append(added, s)
		}
	}
	for s := range prevSet {
		if _, ok := nextSet[s]; !ok {
			removed = append(removed, s)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}

// DetectProteinChanges builds the Changelog for a UniProt record update,
// grounded on spec.md's Protein trigger table in §4.6.1.
func DetectProteinChanges(prev, next ProteinMetadata, firstSeen bool) model.Changelog {
	if firstSeen {
		return model.Changelog{{Kind: model.ChangeInitial, Category: model.CategorySequence, Summary: "first ingest"}}
	}

	var cl model.Changelog
	if prev.SequenceHash != next.SequenceHash {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategorySequence, Field: "sequence", Summary: "sequence changed"})
	}
	if prev.AccessionKey != "" && next.AccessionKey != "" && prev.AccessionKey != next.AccessionKey {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryRelationship, Field: "accession", Summary: "primary accession merged or split"})
	}
	if prev.Organism != next.Organism {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategorySequence, Field: "organism", Summary: "organism changed"})
	}
	if prev.GeneName != next.GeneName {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryName, Field: "gene_name", Summary: "gene name changed"})
	}
	if prev.ProteinName != next.ProteinName {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryName, Field: "protein_name", Summary: "protein name changed"})
	}
	if addedF, _ := stringSetChanges(prev.Features, next.Features); len(addedF) > 0 {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeAdded, Category: model.CategoryFeatures, Field: "features", Summary: fmt.Sprintf("%d new feature(s)", len(addedF))})
	}
	if addedK, _ := stringSetChanges(prev.Keywords, next.Keywords); len(addedK) > 0 {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeAdded, Category: model.CategoryKeywords, Field: "keywords", Summary: fmt.Sprintf("%d new keyword(s)", len(addedK))})
	}
	addedX, _ := stringSetChanges(prev.Xrefs, next.Xrefs)
	if len(addedX) > 0 {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeAdded, Category: model.CategoryXrefs, Field: "xrefs", Summary: fmt.Sprintf("%d new xref(s)", len(addedX))})
	} else if len(prev.Xrefs) == len(next.Xrefs) && !reflect.DeepEqual(prev.Xrefs, next.Xrefs) {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryXrefs, Field: "xrefs", Summary: "xref URL updated"})
	}
	if prev.Description != next.Description {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryDefinition, Field: "description", Summary: "description text updated"})
	}
	return cl
}

// DetectGOTermChanges builds the Changelog for an OBO term update.
func DetectGOTermChanges(prev, next GOTermMetadata, firstSeen bool) model.Changelog {
	if firstSeen {
		return model.Changelog{{Kind: model.ChangeInitial, Category: model.CategoryDefinition, Summary: "first ingest"}}
	}

	var cl model.Changelog
	if !prev.Obsolete && next.Obsolete {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeObsoleted, Category: model.CategoryObsolescence, Field: "is_obsolete", Summary: "term obsoleted"})
	}
	if prev.Definition != next.Definition {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryDefinition, Field: "definition", Summary: "definition modified"})
	}
	if prev.Name != next.Name {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryName, Field: "name", Summary: "name modified"})
	}
	if addedS, _ := stringSetChanges(prev.Synonyms, next.Synonyms); len(addedS) > 0 {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeAdded, Category: model.CategoryDefinition, Field: "synonyms", Summary: "synonyms added"})
	}
	if addedX, _ := stringSetChanges(prev.Xrefs, next.Xrefs); len(addedX) > 0 {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeAdded, Category: model.CategoryXrefs, Field: "xrefs", Summary: "xrefs added"})
	}
	if !reflect.DeepEqual(prev.Relationships, next.Relationships) {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryRelationship, Field: "relationships", Summary: "relationships modified"})
	}
	return cl
}

// DetectTaxonChanges builds the Changelog for an NCBI taxonomy node update.
func DetectTaxonChanges(prev, next TaxonMetadata, firstSeen bool) model.Changelog {
	if firstSeen {
		return model.Changelog{{Kind: model.ChangeInitial, Category: model.CategoryName, Summary: "first ingest"}}
	}

	var cl model.Changelog
	if prev.Rank != next.Rank || prev.ParentTaxonID != next.ParentTaxonID {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryRelationship, Field: "rank", Summary: "reclassification: rank or parent changed"})
	}
	if prev.ScientificName != next.ScientificName {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryName, Field: "scientific_name", Summary: "scientific name changed"})
	}
	if prev.CommonName != next.CommonName || !reflect.DeepEqual(prev.Lineage, next.Lineage) {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryAnnotation, Field: "common_name_or_lineage", Summary: "common name updated or lineage refined"})
	}
	return cl
}

// DetectGenomeChanges builds the Changelog for a GenBank/RefSeq record update.
func DetectGenomeChanges(prev, next GenomeMetadata, firstSeen bool) model.Changelog {
	if firstSeen {
		return model.Changelog{{Kind: model.ChangeInitial, Category: model.CategorySequence, Summary: "first ingest"}}
	}

	var cl model.Changelog
	if prev.AssemblyAccession != next.AssemblyAccession || prev.SequenceHash != next.SequenceHash {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategorySequence, Field: "sequence", Summary: "assembly changed or sequence corrected"})
	}
	if prev.Annotation != next.Annotation {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryAnnotation, Field: "annotation", Summary: "annotation updated"})
	}
	if addedF, _ := stringSetChanges(prev.Features, next.Features); len(addedF) > 0 {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeAdded, Category: model.CategoryFeatures, Field: "features", Summary: "new gene model"})
	}
	if prev.MetadataText != next.MetadataText {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryMetadata, Field: "metadata_text", Summary: "metadata corrected"})
	}
	return cl
}

// DetectBundleChanges builds the Changelog for a bundle's pinned
// dependency set. The dependent data source ids passed in are strings so
// the detector stays free of a uuid import; the cascade machinery in
// engine.go deals in real uuid.UUIDs.
func DetectBundleChanges(prev, next BundleMetadata, firstSeen bool) model.Changelog {
	if firstSeen {
		return model.Changelog{{Kind: model.ChangeInitial, Category: model.CategoryDependency, Summary: "first ingest"}}
	}

	var cl model.Changelog
	for dep := range next.Dependencies {
		if _, ok := prev.Dependencies[dep]; !ok {
			cl = append(cl, model.ChangeEntry{Kind: model.ChangeAdded, Category: model.CategoryDependency, Field: dep, Summary: "dependency added: " + dep})
		}
	}
	for dep := range prev.Dependencies {
		if _, ok := next.Dependencies[dep]; !ok {
			cl = append(cl, model.ChangeEntry{Kind: model.ChangeRemoved, Category: model.CategoryDependency, Field: dep, Summary: "dependency removed: " + dep})
		}
	}
	for dep, nextVer := range next.Dependencies {
		if prevVer, ok := prev.Dependencies[dep]; ok && prevVer != nextVer {
			cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryDependency, Field: dep, Summary: fmt.Sprintf("dependency %s bumped %s -> %s", dep, prevVer, nextVer)})
		}
	}

	prevGO := make(map[string]bool, len(prev.GOCrossReferences))
	for _, id := range prev.GOCrossReferences {
		prevGO[id] = true
	}
	nextGO := make(map[string]bool, len(next.GOCrossReferences))
	for _, id := range next.GOCrossReferences {
		nextGO[id] = true
	}
	for id := range nextGO {
		if !prevGO[id] {
			cl = append(cl, model.ChangeEntry{Kind: model.ChangeAdded, Category: model.CategoryDependency, Field: id, Summary: "GO cross-reference added: " + id})
		}
	}
	for id := range prevGO {
		if !nextGO[id] {
			cl = append(cl, model.ChangeEntry{Kind: model.ChangeRemoved, Category: model.CategoryDependency, Field: id, Summary: "GO cross-reference removed: " + id})
		}
	}

	if prev.MetadataText != next.MetadataText {
		cl = append(cl, model.ChangeEntry{Kind: model.ChangeModified, Category: model.CategoryMetadata, Field: "metadata_text", Summary: "metadata corrected"})
	}
	return cl
}
