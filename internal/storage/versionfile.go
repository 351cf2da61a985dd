package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"bioingest/internal/model"
	"bioingest/internal/objectstore"

	"github.com/google/uuid"
)

// artifact is one serialized representation of a record's metadata, ready
// to upload. Format names match spec.md §4.6 step 8 (FASTA/JSON/TSV/OBO).
type artifact struct {
	format string
	body   []byte
}

// proteinArtifacts renders the two formats spec.md requires for a
// protein record: FASTA (the sequence alone, for tooling that consumes
// raw sequence data) and JSON (the full normalized metadata).
func proteinArtifacts(slug, sequence string, meta ProteinMetadata) []artifact {
	var fasta bytes.Buffer
	fmt.Fprintf(&fasta, ">%s %s\n", slug, meta.ProteinName)
	writeWrapped(&fasta, sequence, 60)

	js, _ := json.Marshal(struct {
		Slug        string   `json:"slug"`
		GeneName    string   `json:"gene_name"`
		ProteinName string   `json:"protein_name"`
		Organism    string   `json:"organism"`
		Features    []string `json:"features"`
		Keywords    []string `json:"keywords"`
		Xrefs       []string `json:"xrefs"`
		Sequence    string   `json:"sequence"`
	}{slug, meta.GeneName, meta.ProteinName, meta.Organism, meta.Features, meta.Keywords, meta.Xrefs, sequence})

	return []artifact{{format: "fasta", body: fasta.Bytes()}, {format: "json", body: js}}
}

// goTermArtifacts renders an OBO snippet, JSON, and TSV view of a term.
func goTermArtifacts(slug string, meta GOTermMetadata) []artifact {
	var obo bytes.Buffer
	fmt.Fprintf(&obo, "[Term]\nid: %s\nname: %s\n", slug, meta.Name)
	if meta.Definition != "" {
		fmt.Fprintf(&obo, "def: %q []\n", meta.Definition)
	}
	for _, s := range meta.Synonyms {
		fmt.Fprintf(&obo, "synonym: %q EXACT []\n", s)
	}
	if meta.Obsolete {
		obo.WriteString("is_obsolete: true\n")
	}

	js, _ := json.Marshal(meta)

	var tsv bytes.Buffer
	w := csv.NewWriter(&tsv)
	w.Comma = '\t'
	_ = w.Write([]string{"id", "name", "definition", "obsolete"})
	_ = w.Write([]string{slug, meta.Name, meta.Definition, fmt.Sprintf("%t", meta.Obsolete)})
	w.Flush()

	return []artifact{{format: "obo", body: obo.Bytes()}, {format: "json", body: js}, {format: "tsv", body: tsv.Bytes()}}
}

// taxonArtifacts renders JSON and TSV views of a taxonomy node.
func taxonArtifacts(slug string, meta TaxonMetadata) []artifact {
	js, _ := json.Marshal(meta)

	var tsv bytes.Buffer
	w := csv.NewWriter(&tsv)
	w.Comma = '\t'
	_ = w.Write([]string{"slug", "scientific_name", "rank", "common_name"})
	_ = w.Write([]string{slug, meta.ScientificName, meta.Rank, meta.CommonName})
	w.Flush()

	return []artifact{{format: "json", body: js}, {format: "tsv", body: tsv.Bytes()}}
}

// genomeArtifacts renders FASTA and JSON views of a genome/RefSeq record.
func genomeArtifacts(slug, sequence string, meta GenomeMetadata) []artifact {
	var fasta bytes.Buffer
	fmt.Fprintf(&fasta, ">%s %s\n", slug, meta.AssemblyAccession)
	writeWrapped(&fasta, sequence, 70)

	js, _ := json.Marshal(meta)
	return []artifact{{format: "fasta", body: fasta.Bytes()}, {format: "json", body: js}}
}

// bundleArtifacts renders the bundle manifest as JSON.
func bundleArtifacts(meta BundleMetadata) []artifact {
	js, _ := json.Marshal(meta)
	return []artifact{{format: "json", body: js}}
}

func writeWrapped(buf *bytes.Buffer, seq string, width int) {
	for i := 0; i < len(seq); i += width {
		end := min(i+width, len(seq))
		buf.WriteString(seq[i:end])
		buf.WriteByte('\n')
	}
}

// uploadArtifacts content-hashes and uploads each artifact under its
// deterministic object-store key, then records a VersionFile row.
// Uploads are idempotent by construction: the key depends only on the
// organization, entry, version and format, so re-uploading the same
// artifact overwrites the same object. The SHA-256 is recorded on the
// VersionFile row, not used in the key. A
// bundle's single manifest artifact goes through PutBundleManifest
// instead of PutVersionFile so its key carries "manifest.json" rather
// than "${entry_slug}.json", matching spec.md §4.6 step 8's bundle
// layout.
func uploadArtifacts(ctx context.Context, store objectstore.ObjectStore, files versionFileInserter, versionID uuid.UUID, orgSlug, entrySlug string, sv model.SemVer, arts []artifact, isBundle bool) error {
	for _, a := range arts {
		sum := sha256.Sum256(a.body)
		hexSum := fmt.Sprintf("%x", sum)
		opts := objectstore.PutOptions{ContentType: contentTypeFor(a.format)}

		var key string
		var err error
		if isBundle {
			key, err = store.PutBundleManifest(ctx, orgSlug, entrySlug, sv.Major, sv.Minor, sv.Patch, bytes.NewReader(a.body), opts)
		} else {
			key, err = store.PutVersionFile(ctx, orgSlug, entrySlug, sv.Major, sv.Minor, sv.Patch, a.format, bytes.NewReader(a.body), opts)
		}
		if err != nil {
			return fmt.Errorf("upload version file for %s/%s: %w", orgSlug, entrySlug, err)
		}

		vf := model.VersionFile{
			ID:        model.NewID(),
			Version:   versionID,
			Format:    a.format,
			ObjectKey: key,
			SizeBytes: int64(len(a.body)),
			SHA256:    hexSum,
		}
		if _, err := files.Upsert(ctx, vf); err != nil {
			return fmt.Errorf("record version file %s: %w", key, err)
		}
	}
	return nil
}

// versionFileInserter is the narrow slice of persistence.VersionFileStore
// this file needs; kept separate so tests can fake it without building a
// full persistence.VersionFileStore.
type versionFileInserter interface {
	Upsert(ctx context.Context, f model.VersionFile) (model.VersionFile, error)
}

func contentTypeFor(format string) string {
	switch format {
	case "json":
		return "application/json"
	case "fasta", "obo":
		return "text/plain"
	case "tsv":
		return "text/tab-separated-values"
	default:
		return "application/octet-stream"
	}
}
