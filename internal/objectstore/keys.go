package objectstore

import "fmt"

// RawArchiveKey is the deterministic object-store key for a downloaded
// upstream archive, mirrored alongside the local fetch cache.
//
//	ingest/${source}/${job_id}/${filename}
func RawArchiveKey(source, jobID, filename string) string {
	return fmt.Sprintf("ingest/%s/%s/%s", source, jobID, filename)
}

// VersionFileKey is the deterministic object-store key for a Data Source's
// Version File.
//
//	sources/${org_slug}/${entry_slug}/${major}.${minor}.${patch}/${entry_slug}.${fmt}
func VersionFileKey(orgSlug, entrySlug string, major, minor, patch int, format string) string {
	return fmt.Sprintf("sources/%s/%s/%d.%d.%d/%s.%s", orgSlug, entrySlug, major, minor, patch, entrySlug, format)
}

// BundleManifestKey is the deterministic object-store key for a bundle's
// manifest Version File.
//
//	sources/${org_slug}/${bundle_slug}/${major}.${minor}.${patch}/manifest.json
func BundleManifestKey(orgSlug, bundleSlug string, major, minor, patch int) string {
	return fmt.Sprintf("sources/%s/%s/%d.%d.%d/manifest.json", orgSlug, bundleSlug, major, minor, patch)
}
