package versioning

import "bioingest/internal/model"

// Canonical per-source-type strategies, straight from the authoritative
// examples table: any change-kind/category pair not listed here falls
// through to the next-lower trigger list, and ultimately to BumpNone.

var Protein = Strategy{
	Name: "protein",
	MajorTriggers: []Trigger{
		{Kind: model.ChangeModified, Category: model.CategorySequence},
		{Kind: model.ChangeModified, Category: model.CategoryRelationship}, // accession merged/split
	},
	MinorTriggers: []Trigger{
		{Kind: model.ChangeModified, Category: model.CategoryName},
		{Kind: model.ChangeAdded, Category: model.CategoryAnnotation},
		{Kind: model.ChangeAdded, Category: model.CategoryFeatures},
		{Kind: model.ChangeAdded, Category: model.CategoryKeywords},
		{Kind: model.ChangeAdded, Category: model.CategoryXrefs},
	},
	PatchTriggers: []Trigger{
		{Kind: model.ChangeModified, Category: model.CategoryDefinition},
		{Kind: model.ChangeModified, Category: model.CategoryXrefs},
	},
	CascadeOnMajor: true,
}

var GOTerm = Strategy{
	Name: "go_term",
	MajorTriggers: []Trigger{
		{Kind: model.ChangeObsoleted, Category: model.CategoryObsolescence},
		{Kind: model.ChangeRemoved, Category: model.CategoryObsolescence},
	},
	MinorTriggers: []Trigger{
		{Kind: model.ChangeModified, Category: model.CategoryDefinition},
		{Kind: model.ChangeModified, Category: model.CategoryName},
		{Kind: model.ChangeAdded, Category: model.CategoryXrefs},
		{Kind: model.ChangeModified, Category: model.CategoryRelationship},
	},
	CascadeOnMajor: true,
}

var Taxon = Strategy{
	Name: "taxon",
	MajorTriggers: []Trigger{
		{Kind: model.ChangeModified, Category: model.CategoryRelationship}, // reclassification / rank change
		{Kind: model.ChangeModified, Category: model.CategoryName},         // scientific name changed
	},
	MinorTriggers: []Trigger{
		{Kind: model.ChangeModified, Category: model.CategoryAnnotation}, // common name, lineage refined
	},
	PatchTriggers: []Trigger{
		{Kind: model.ChangeModified, Category: model.CategoryDefinition}, // typo
	},
	CascadeOnMajor: true,
}

var Genome = Strategy{
	Name: "genome",
	MajorTriggers: []Trigger{
		{Kind: model.ChangeModified, Category: model.CategorySequence}, // assembly/sequence corrected
	},
	MinorTriggers: []Trigger{
		{Kind: model.ChangeModified, Category: model.CategoryAnnotation},
		{Kind: model.ChangeAdded, Category: model.CategoryFeatures}, // new gene model
	},
	PatchTriggers: []Trigger{
		{Kind: model.ChangeModified, Category: model.CategoryMetadata},
	},
	CascadeOnMajor: true,
}

var Bundle = Strategy{
	Name: "bundle",
	MajorTriggers: []Trigger{
		{Kind: model.ChangeAdded, Category: model.CategoryDependency},
		{Kind: model.ChangeRemoved, Category: model.CategoryDependency},
	},
	MinorTriggers: []Trigger{
		{Kind: model.ChangeModified, Category: model.CategoryDependency}, // version bump of existing dependency
	},
	PatchTriggers: []Trigger{
		{Kind: model.ChangeModified, Category: model.CategoryMetadata},
	},
	CascadeOnMajor: true,
}

// ForSourceType resolves the canonical strategy for a registry entry's
// source_type. Unknown source types get Bundle's conservative defaults
// rather than silently falling back to BumpNone on every change.
func ForSourceType(sourceType string) Strategy {
	switch sourceType {
	case "protein":
		return Protein
	case "go_term":
		return GOTerm
	case "taxon":
		return Taxon
	case "genome", "refseq":
		return Genome
	case "bundle":
		return Bundle
	default:
		return Bundle
	}
}
