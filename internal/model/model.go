// Package model defines the domain entities shared across the ingestion
// core: organizations, registry entries, versioned data sources, and the
// job-coordination records that drive ingestion.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceType distinguishes the kind of dataset a Data Source represents.
type SourceType string

const (
	SourceTypeProtein       SourceType = "protein"
	SourceTypeGenome        SourceType = "genome"
	SourceTypeOrganism      SourceType = "organism"
	SourceTypeTaxon         SourceType = "taxon"
	SourceTypeGOTerm        SourceType = "go_term"
	SourceTypeInterProEntry SourceType = "interpro_entry"
	SourceTypeBundle        SourceType = "bundle"
	SourceTypeOther         SourceType = "other"
)

// EntryKind is the polymorphic discriminator for a Registry Entry.
type EntryKind string

const (
	EntryKindDataSource EntryKind = "data_source"
	EntryKindTool       EntryKind = "tool"
	EntryKindBundle     EntryKind = "bundle"
)

// VersionStatus is the lifecycle state of a Version row.
type VersionStatus string

const (
	VersionStatusDraft      VersionStatus = "draft"
	VersionStatusPublished  VersionStatus = "published"
	VersionStatusDeprecated VersionStatus = "deprecated"
)

// JobStatus is the Ingestion Job state machine's current phase.
type JobStatus string

const (
	JobStatusPending           JobStatus = "pending"
	JobStatusDownloading       JobStatus = "downloading"
	JobStatusDownloadVerified  JobStatus = "download_verified"
	JobStatusParsing           JobStatus = "parsing"
	JobStatusStoring           JobStatus = "storing"
	JobStatusCompleted         JobStatus = "completed"
	JobStatusFailed            JobStatus = "failed"
)

// WorkUnitStatus is the per-range claim state.
type WorkUnitStatus string

const (
	WorkUnitPending    WorkUnitStatus = "pending"
	WorkUnitProcessing WorkUnitStatus = "processing"
	WorkUnitCompleted  WorkUnitStatus = "completed"
	WorkUnitFailed     WorkUnitStatus = "failed"
)

// Organization is a seeded, mostly-immutable data provider.
type Organization struct {
	ID              uuid.UUID
	Slug            string
	DisplayName     string
	VersioningRules string
	DefaultLicense  uuid.UUID
	CreatedAt       time.Time
}

// License is a reusable legal descriptor.
type License struct {
	ID             uuid.UUID
	Identifier     string
	SPDXCode       string
	CommercialUse  bool
	DerivativeWork bool
}

// RegistryEntry is the polymorphic base identity for any addressable unit.
type RegistryEntry struct {
	ID             uuid.UUID
	Organization   uuid.UUID
	Slug           string
	DisplayName    string
	Description    string
	Kind           EntryKind
	Deprecated     bool
	SupersededBy   *uuid.UUID
	License        uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DataSource specializes a RegistryEntry with a typed source kind.
type DataSource struct {
	ID         uuid.UUID // shared with RegistryEntry.ID
	SourceType SourceType
}

// Alias is a historical identifier that must still resolve to a Data Source.
type Alias struct {
	ID         uuid.UUID
	Alias      string
	Kind       string
	ValidFrom  time.Time
	ValidUntil *time.Time
	Target     uuid.UUID
}

// ContentRef is a deduplicated, immutable payload row in a Content Hash Pool.
type ContentRef struct {
	ID     uuid.UUID
	SHA256 string
	MD5    string
	Length int64
}

// SemVer is a semantic-version triple, monotone per Data Source.
type SemVer struct {
	Major int
	Minor int
	Patch int
}

// String renders the triple in dotted form.
func (v SemVer) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Less reports whether v sorts strictly before other, lexicographically.
func (v SemVer) Less(other SemVer) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

// BumpKind classifies the magnitude of a semantic-version bump.
type BumpKind string

const (
	BumpInitial BumpKind = "initial"
	BumpMajor   BumpKind = "major"
	BumpMinor   BumpKind = "minor"
	BumpPatch   BumpKind = "patch"
	BumpNone    BumpKind = "none"
)

// Apply returns the next SemVer after applying this bump kind to prev.
func (b BumpKind) Apply(prev SemVer) SemVer {
	switch b {
	case BumpInitial:
		return SemVer{Major: 1, Minor: 0, Patch: 0}
	case BumpMajor:
		return SemVer{Major: prev.Major + 1, Minor: 0, Patch: 0}
	case BumpMinor:
		return SemVer{Major: prev.Major, Minor: prev.Minor + 1, Patch: 0}
	case BumpPatch:
		return SemVer{Major: prev.Major, Minor: prev.Minor, Patch: prev.Patch + 1}
	default:
		return prev
	}
}

// ChangeKind classifies a single field-level change a detector observed.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeRemoved   ChangeKind = "removed"
	ChangeModified  ChangeKind = "modified"
	ChangeObsoleted ChangeKind = "obsoleted"
	ChangeInitial   ChangeKind = "initial"
)

// ChangeCategory groups a change entry by the kind of field it touched.
type ChangeCategory string

const (
	CategorySequence     ChangeCategory = "sequence"
	CategoryName         ChangeCategory = "name"
	CategoryDefinition   ChangeCategory = "definition"
	CategoryRelationship ChangeCategory = "relationships"
	CategoryObsolescence ChangeCategory = "obsolescence"
	CategoryXrefs        ChangeCategory = "xrefs"
	CategoryFeatures     ChangeCategory = "features"
	CategoryKeywords     ChangeCategory = "keywords"
	CategoryAnnotation   ChangeCategory = "annotation"
	CategoryDependency   ChangeCategory = "dependency"
	CategoryMetadata     ChangeCategory = "metadata"
)

// ChangeEntry is one line of a Changelog.
type ChangeEntry struct {
	Category ChangeCategory
	Kind     ChangeKind
	Field    string
	Summary  string
}

// Changelog is the ordered list of change entries a detector produced,
// serialized verbatim into the owning Version row.
type Changelog []ChangeEntry

// Version is an immutable snapshot of a Data Source at a point in its history.
type Version struct {
	ID              uuid.UUID
	DataSource      uuid.UUID
	SemVer          SemVer
	ExternalVersion string
	ReleaseDate     time.Time
	Status          VersionStatus
	SizeBytes       int64
	Changelog       Changelog
	CreatedAt       time.Time
}

// VersionFile is a serialized artifact for a specific Version in a format.
type VersionFile struct {
	ID          uuid.UUID
	Version     uuid.UUID
	Format      string
	ObjectKey   string
	SizeBytes   int64
	SHA256      string
	Compression string
}

// Dependency is a version-pinned edge from a dependent Data Source to a
// dependency Data Source's specific Version.
type Dependency struct {
	ID           uuid.UUID
	Dependent    uuid.UUID
	DependsOn    uuid.UUID
	PinnedVersion uuid.UUID
}

// Job is a coordination record for one attempt at ingesting one upstream
// release.
type Job struct {
	ID               uuid.UUID
	Organization     uuid.UUID
	JobType          string
	ExternalVersion  string
	InternalVersion  string
	SourceURL        string
	Status           JobStatus
	TotalRecords     int64
	RecordsProcessed int64
	RecordsStored    int64
	RecordsFailed    int64
	IsCurrent        bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	StartedAt        *time.Time
	FinishedAt       *time.Time
	LastError        string
}

// WorkUnit is a contiguous record range within a Job.
type WorkUnit struct {
	ID                  uuid.UUID
	Job                 uuid.UUID
	SequenceNumber      int
	StartOffset         int64
	EndOffset           int64
	ExpectedCount       int64
	Status              WorkUnitStatus
	WorkerID            string
	WorkerHostname      string
	ClaimedAt           *time.Time
	HeartbeatAt         *time.Time
	RetryCount          int
	MaxRetries          int
	LastError           string
	ProcessingDurationMs int64
}

// RawFile is a downloaded upstream artifact tracked for audit and re-use.
type RawFile struct {
	ID               uuid.UUID
	Job              uuid.UUID
	Purpose          string
	ObjectKey        string
	ExpectedChecksum string
	ComputedChecksum string
	Verified         bool
}

// NewID generates a fresh entity identifier.
func NewID() uuid.UUID {
	return uuid.New()
}
