package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"bioingest/internal/model"
	"bioingest/internal/versioning"

	"github.com/google/uuid"
)

// UpsertProtein implements the Upsert contract for a UniProt record.
func (e *Engine) UpsertProtein(ctx context.Context, organization uuid.UUID, orgSlug string, license uuid.UUID, rec NormalizedRecord, meta ProteinMetadata) (UpsertResult, error) {
	rc := recordContext{Organization: organization, OrgSlug: orgSlug, License: license, Rec: rec}
	if err := e.resolveOrganism(ctx, rc); err != nil {
		return UpsertResult{}, err
	}
	dsID, err := e.upsertRegistry(ctx, rc)
	if err != nil {
		return UpsertResult{}, err
	}

	if _, err := e.dedupeContent(ctx, rec.Sequence); err != nil {
		return UpsertResult{DataSourceID: dsID}, err
	}
	meta.SequenceHash = hashHex(rec.Sequence)

	var prev ProteinMetadata
	firstSeen, err := loadMetadata(ctx, e.Metadata, dsID, &prev)
	if err != nil {
		return UpsertResult{DataSourceID: dsID}, fmt.Errorf("storage: load previous protein metadata: %w", err)
	}
	changelog := DetectProteinChanges(prev, meta, firstSeen)

	stored, bump, err := e.bumpAndInsertVersion(ctx, dsID, versioning.Protein, changelog, rec.ExternalVersion, rc)
	if err != nil {
		return UpsertResult{DataSourceID: dsID}, err
	}
	result := UpsertResult{DataSourceID: dsID, VersionID: stored.ID, VersionStr: stored.SemVer.String(), BumpKind: bump}
	if bump == model.BumpNone {
		return result, nil
	}

	arts := proteinArtifacts(rec.Slug, string(rec.Sequence), meta)
	if err := uploadArtifacts(ctx, e.Objects, e.Files, stored.ID, orgSlug, rec.Slug, stored.SemVer, arts, false); err != nil {
		return result, err
	}
	if err := saveMetadata(ctx, e.Metadata, dsID, meta); err != nil {
		return result, fmt.Errorf("storage: save protein metadata: %w", err)
	}
	if err := e.wireGOXrefDependencies(ctx, dsID, meta.Xrefs); err != nil {
		return result, err
	}
	if err := e.maybeCascade(ctx, dsID, stored, bump, versioning.Protein); err != nil {
		return result, err
	}
	return result, nil
}

// UpsertGOTerm implements the Upsert contract for an OBO term.
func (e *Engine) UpsertGOTerm(ctx context.Context, organization uuid.UUID, orgSlug string, license uuid.UUID, rec NormalizedRecord, meta GOTermMetadata) (UpsertResult, error) {
	rc := recordContext{Organization: organization, OrgSlug: orgSlug, License: license, Rec: rec}
	dsID, err := e.upsertRegistry(ctx, rc)
	if err != nil {
		return UpsertResult{}, err
	}

	var prev GOTermMetadata
	firstSeen, err := loadMetadata(ctx, e.Metadata, dsID, &prev)
	if err != nil {
		return UpsertResult{DataSourceID: dsID}, fmt.Errorf("storage: load previous GO term metadata: %w", err)
	}
	changelog := DetectGOTermChanges(prev, meta, firstSeen)

	stored, bump, err := e.bumpAndInsertVersion(ctx, dsID, versioning.GOTerm, changelog, rec.ExternalVersion, rc)
	if err != nil {
		return UpsertResult{DataSourceID: dsID}, err
	}
	result := UpsertResult{DataSourceID: dsID, VersionID: stored.ID, VersionStr: stored.SemVer.String(), BumpKind: bump}
	if bump == model.BumpNone {
		return result, nil
	}

	arts := goTermArtifacts(rec.Slug, meta)
	if err := uploadArtifacts(ctx, e.Objects, e.Files, stored.ID, orgSlug, rec.Slug, stored.SemVer, arts, false); err != nil {
		return result, err
	}
	if err := saveMetadata(ctx, e.Metadata, dsID, meta); err != nil {
		return result, fmt.Errorf("storage: save GO term metadata: %w", err)
	}
	if err := e.maybeCascade(ctx, dsID, stored, bump, versioning.GOTerm); err != nil {
		return result, err
	}
	return result, nil
}

// UpsertTaxon implements the Upsert contract for an NCBI taxonomy node.
func (e *Engine) UpsertTaxon(ctx context.Context, organization uuid.UUID, orgSlug string, license uuid.UUID, rec NormalizedRecord, meta TaxonMetadata) (UpsertResult, error) {
	rc := recordContext{Organization: organization, OrgSlug: orgSlug, License: license, Rec: rec}
	dsID, err := e.upsertRegistry(ctx, rc)
	if err != nil {
		return UpsertResult{}, err
	}

	var prev TaxonMetadata
	firstSeen, err := loadMetadata(ctx, e.Metadata, dsID, &prev)
	if err != nil {
		return UpsertResult{DataSourceID: dsID}, fmt.Errorf("storage: load previous taxon metadata: %w", err)
	}
	changelog := DetectTaxonChanges(prev, meta, firstSeen)

	stored, bump, err := e.bumpAndInsertVersion(ctx, dsID, versioning.Taxon, changelog, rec.ExternalVersion, rc)
	if err != nil {
		return UpsertResult{DataSourceID: dsID}, err
	}
	result := UpsertResult{DataSourceID: dsID, VersionID: stored.ID, VersionStr: stored.SemVer.String(), BumpKind: bump}
	if bump == model.BumpNone {
		return result, nil
	}

	arts := taxonArtifacts(rec.Slug, meta)
	if err := uploadArtifacts(ctx, e.Objects, e.Files, stored.ID, orgSlug, rec.Slug, stored.SemVer, arts, false); err != nil {
		return result, err
	}
	if err := saveMetadata(ctx, e.Metadata, dsID, meta); err != nil {
		return result, fmt.Errorf("storage: save taxon metadata: %w", err)
	}
	if err := e.maybeCascade(ctx, dsID, stored, bump, versioning.Taxon); err != nil {
		return result, err
	}
	return result, nil
}

// UpsertGenome implements the Upsert contract for a GenBank/RefSeq record.
func (e *Engine) UpsertGenome(ctx context.Context, organization uuid.UUID, orgSlug string, license uuid.UUID, rec NormalizedRecord, meta GenomeMetadata) (UpsertResult, error) {
	rc := recordContext{Organization: organization, OrgSlug: orgSlug, License: license, Rec: rec}
	if err := e.resolveOrganism(ctx, rc); err != nil {
		return UpsertResult{}, err
	}
	dsID, err := e.upsertRegistry(ctx, rc)
	if err != nil {
		return UpsertResult{}, err
	}

	if _, err := e.dedupeContent(ctx, rec.Sequence); err != nil {
		return UpsertResult{DataSourceID: dsID}, err
	}
	meta.SequenceHash = hashHex(rec.Sequence)

	var prev GenomeMetadata
	firstSeen, err := loadMetadata(ctx, e.Metadata, dsID, &prev)
	if err != nil {
		return UpsertResult{DataSourceID: dsID}, fmt.Errorf("storage: load previous genome metadata: %w", err)
	}
	changelog := DetectGenomeChanges(prev, meta, firstSeen)

	stored, bump, err := e.bumpAndInsertVersion(ctx, dsID, versioning.Genome, changelog, rec.ExternalVersion, rc)
	if err != nil {
		return UpsertResult{DataSourceID: dsID}, err
	}
	result := UpsertResult{DataSourceID: dsID, VersionID: stored.ID, VersionStr: stored.SemVer.String(), BumpKind: bump}
	if bump == model.BumpNone {
		return result, nil
	}

	arts := genomeArtifacts(rec.Slug, string(rec.Sequence), meta)
	if err := uploadArtifacts(ctx, e.Objects, e.Files, stored.ID, orgSlug, rec.Slug, stored.SemVer, arts, false); err != nil {
		return result, err
	}
	if err := saveMetadata(ctx, e.Metadata, dsID, meta); err != nil {
		return result, fmt.Errorf("storage: save genome metadata: %w", err)
	}
	if err := e.maybeCascade(ctx, dsID, stored, bump, versioning.Genome); err != nil {
		return result, err
	}
	return result, nil
}

// UpsertBundle implements the Upsert contract for a bundle's pinned
// dependency manifest.
func (e *Engine) UpsertBundle(ctx context.Context, organization uuid.UUID, orgSlug string, license uuid.UUID, rec NormalizedRecord, meta BundleMetadata) (UpsertResult, error) {
	rc := recordContext{Organization: organization, OrgSlug: orgSlug, License: license, Rec: rec}
	dsID, err := e.upsertRegistry(ctx, rc)
	if err != nil {
		return UpsertResult{}, err
	}

	var prev BundleMetadata
	firstSeen, err := loadMetadata(ctx, e.Metadata, dsID, &prev)
	if err != nil {
		return UpsertResult{DataSourceID: dsID}, fmt.Errorf("storage: load previous bundle metadata: %w", err)
	}
	changelog := DetectBundleChanges(prev, meta, firstSeen)

	stored, bump, err := e.bumpAndInsertVersion(ctx, dsID, versioning.Bundle, changelog, rec.ExternalVersion, rc)
	if err != nil {
		return UpsertResult{DataSourceID: dsID}, err
	}
	result := UpsertResult{DataSourceID: dsID, VersionID: stored.ID, VersionStr: stored.SemVer.String(), BumpKind: bump}
	if bump == model.BumpNone {
		return result, nil
	}

	arts := bundleArtifacts(meta)
	if err := uploadArtifacts(ctx, e.Objects, e.Files, stored.ID, orgSlug, rec.Slug, stored.SemVer, arts, true); err != nil {
		return result, err
	}
	if err := saveMetadata(ctx, e.Metadata, dsID, meta); err != nil {
		return result, fmt.Errorf("storage: save bundle metadata: %w", err)
	}
	if err := e.wireBundleDependencies(ctx, dsID, meta.Dependencies); err != nil {
		return result, err
	}
	if err := e.wireGOXrefDependencies(ctx, dsID, meta.GOCrossReferences); err != nil {
		return result, err
	}
	if err := e.maybeCascade(ctx, dsID, stored, bump, versioning.Bundle); err != nil {
		return result, err
	}
	return result, nil
}

func hashHex(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
