// Package storage implements the Storage Engine: the component that
// turns a parsed record into registry/version rows, deduplicated content,
// uploaded version files, and (on a MAJOR bump) a dependency cascade.
//
// Parsers hand back format-specific structs (parser.UniProtRecord,
// parser.OBOTerm, ...); the engine never imports parser types directly
// so that it stays agnostic of upstream formats. Instead every record is
// first normalized into a NormalizedRecord plus a source-type-specific
// metadata struct, the way the teacher's playground/registry package
// separates "what a prompt template is" from "how it got parsed from
// disk".
package storage

import (
	"time"

	"bioingest/internal/model"
)

// NormalizedRecord is the source-type-agnostic half of an Upsert input:
// identity, organism linkage, and the immutable payload eligible for
// content-hash deduplication.
type NormalizedRecord struct {
	Slug            string
	DisplayName     string
	Description     string
	SourceType      model.SourceType
	TaxonID         int64 // 0 when the record carries no organism link
	ScientificName  string
	Sequence        []byte // nil when the record has no dedup-eligible payload
	ExternalVersion string
	ReleaseDate     time.Time
}

// ProteinMetadata is the type-specific comparison surface for a UniProt
// entry, matching spec.md's Protein trigger table field-for-field.
type ProteinMetadata struct {
	// SequenceHash is the content pool's SHA-256 hex digest, not the raw
	// sequence: spec.md §4.6 step 4 stores only the pool id/hash in
	// metadata, so "did the sequence change" is a hash comparison rather
	// than a full-string diff.
	SequenceHash string
	GeneName     string
	ProteinName  string
	Description  string
	Organism     string
	Features     []string
	Keywords     []string
	Xrefs        []string
	AccessionKey string // primary accession; a change signals merge/split
}

// GOTermMetadata is the comparison surface for an OBO term.
type GOTermMetadata struct {
	Name          string
	Definition    string
	Synonyms      []string
	Xrefs         []string
	Relationships []string
	Obsolete      bool
}

// TaxonMetadata is the comparison surface for an NCBI taxonomy node.
type TaxonMetadata struct {
	ScientificName string
	Rank           string
	ParentTaxonID  int64
	CommonName     string
	Lineage        []string
}

// GenomeMetadata is the comparison surface for a GenBank/RefSeq record.
type GenomeMetadata struct {
	AssemblyAccession string
	SequenceHash      string // see ProteinMetadata.SequenceHash
	Annotation        string
	Features          []string
	MetadataText      string // free-text fields (definition, division) that only warrant a patch
}

// BundleMetadata is the comparison surface for a bundle's pinned
// dependency set.
type BundleMetadata struct {
	// Dependencies pins a dependency whose Data Source id the caller
	// already has in hand, keyed by that id (as a string, to stay
	// comparable/hashable without importing uuid here) -> pinned version
	// string.
	Dependencies map[string]string

	// GOCrossReferences names GO terms this bundle cites (InterPro
	// entry.xml's GO cross-references), resolved into Dependency edges
	// the same way a protein's GO xrefs are (see
	// Engine.wireGOXrefDependencies): an InterPro member-database
	// signature (Pfam, PROSITE, ...) has no Data Source of its own in
	// this registry, so only the GO-term half of an entry's cross
	// references is a real, resolvable dependency.
	GOCrossReferences []string

	MetadataText string
}
