package objectstore

import "testing"

func TestVersionFileKey_Deterministic(t *testing.T) {
	a := VersionFileKey("uniprot", "p01308", 1, 0, 0, "fasta")
	b := VersionFileKey("uniprot", "p01308", 1, 0, 0, "fasta")
	if a != b {
		t.Fatalf("expected deterministic key, got %q and %q", a, b)
	}
	want := "sources/uniprot/p01308/1.0.0/p01308.fasta"
	if a != want {
		t.Fatalf("got %q, want %q", a, want)
	}
}

func TestRawArchiveKey(t *testing.T) {
	got := RawArchiveKey("uniprot", "job-123", "uniprot_sprot.dat.gz")
	want := "ingest/uniprot/job-123/uniprot_sprot.dat.gz"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBundleManifestKey(t *testing.T) {
	got := BundleManifestKey("bdp", "core-bundle", 2, 1, 0)
	want := "sources/bdp/core-bundle/2.1.0/manifest.json"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
