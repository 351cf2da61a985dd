package worker

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"bioingest/internal/model"
	"bioingest/internal/parser"
	"bioingest/internal/storage"
)

// recordSource advances one record at a time over a claimed range of an
// upstream archive and hands back the engine-ready normalized form. Each
// job type gets its own adapter; the worker loop itself never imports
// parser types directly, mirroring the separation storage.Engine already
// draws between "what a record is" and "how it got parsed".
type recordSource interface {
	// next advances to the next record in range. ok is false at the end
	// of the claimed range (not necessarily end of file); err is set only
	// on a fatal, range-halting failure.
	next() (ok bool, err error)
	record() (storage.NormalizedRecord, any)
	stats() parser.Stats
}

// openRangeFunc builds a recordSource over f, limited to [startIdx,
// endIdx) record indices, given a pre-built byte-offset index for the
// whole file.
type openRangeFunc func(f io.ReadSeeker, index parser.OffsetIndex, startIdx, endIdx int) (recordSource, error)

// buildIndex computes the OffsetIndex a job type's records are keyed by.
type buildIndexFunc func(f io.Reader) (parser.OffsetIndex, error)

// sourceKind bundles the index builder and range opener spec.md's five
// record formats each need, keyed by model.SourceType.
type sourceKind struct {
	buildIndex buildIndexFunc
	openRange  openRangeFunc
}

var sourceKinds = map[model.SourceType]sourceKind{
	model.SourceTypeProtein: {
		buildIndex: func(f io.Reader) (parser.OffsetIndex, error) { return parser.BuildSentinelIndex(f, "//") },
		openRange:  openProteinRange,
	},
	model.SourceTypeGOTerm: {
		buildIndex: func(f io.Reader) (parser.OffsetIndex, error) { return parser.BuildSentinelIndex(f, "") },
		openRange:  openGOTermRange,
	},
	model.SourceTypeTaxon: {
		buildIndex: parser.BuildLineOffsetIndex,
		openRange:  openTaxonRange,
	},
	model.SourceTypeGenome: {
		buildIndex: func(f io.Reader) (parser.OffsetIndex, error) { return parser.BuildSentinelIndex(f, "//") },
		openRange:  openGenomeRange,
	},
	model.SourceTypeBundle: {
		buildIndex: parser.BuildLineOffsetIndex,
		openRange:  openBundleRange,
	},
}

// seekTo positions f at the byte offset of record startIdx.
func seekTo(f io.ReadSeeker, index parser.OffsetIndex, startIdx int) error {
	if startIdx >= len(index) {
		// empty range: park at EOF so the caller's next() returns false
		// immediately
		_, err := f.Seek(0, io.SeekEnd)
		return err
	}
	_, err := f.Seek(index[startIdx], io.SeekStart)
	return err
}

// --- protein (UniProt) ---

type proteinSource struct {
	scanner    *parser.UniProtScanner
	remaining  int
	rec        parser.UniProtRecord
}

func openProteinRange(f io.ReadSeeker, index parser.OffsetIndex, startIdx, endIdx int) (recordSource, error) {
	if err := seekTo(f, index, startIdx); err != nil {
		return nil, err
	}
	return &proteinSource{scanner: parser.NewUniProtScanner(f), remaining: endIdx - startIdx}, nil
}

func (s *proteinSource) next() (bool, error) {
	if s.remaining <= 0 {
		return false, nil
	}
	if !s.scanner.Scan() {
		return false, s.scanner.Err()
	}
	s.rec = s.scanner.Record()
	s.remaining--
	return true, nil
}

func (s *proteinSource) record() (storage.NormalizedRecord, any) {
	r := s.rec
	norm := storage.NormalizedRecord{
		Slug:           strings.ToLower(r.PrimaryAccession),
		DisplayName:    r.EntryName,
		Description:    r.RecommendedName,
		SourceType:     model.SourceTypeProtein,
		TaxonID:        int64(r.TaxonomyID),
		ScientificName: r.OrganismName,
		Sequence:       []byte(r.Sequence),
	}
	meta := storage.ProteinMetadata{
		GeneName:     r.GeneName,
		ProteinName:  r.RecommendedName,
		Description:  r.RecommendedName,
		Organism:     r.OrganismName,
		Features:     featureStrings(r.Features),
		Keywords:     r.Keywords,
		Xrefs:        xrefStrings(r.CrossReferences),
		AccessionKey: r.PrimaryAccession,
	}
	return norm, meta
}

func (s *proteinSource) stats() parser.Stats { return s.scanner.Stats() }

func featureStrings(fs []parser.UniProtFeature) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, fmt.Sprintf("%s:%d-%d:%s", f.Type, f.Start, f.End, f.Description))
	}
	return out
}

func xrefStrings(xs []parser.UniProtXref) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		out = append(out, x.Database+":"+x.ID)
	}
	return out
}

// --- GO terms (OBO) ---

type goTermSource struct {
	scanner   *parser.OBOScanner
	remaining int
	rec       parser.OBOTerm
}

func openGOTermRange(f io.ReadSeeker, index parser.OffsetIndex, startIdx, endIdx int) (recordSource, error) {
	if err := seekTo(f, index, startIdx); err != nil {
		return nil, err
	}
	return &goTermSource{scanner: parser.NewOBOScanner(f), remaining: endIdx - startIdx}, nil
}

func (s *goTermSource) next() (bool, error) {
	if s.remaining <= 0 {
		return false, nil
	}
	if !s.scanner.Scan() {
		return false, nil
	}
	s.rec = s.scanner.Record()
	s.remaining--
	return true, nil
}

func (s *goTermSource) record() (storage.NormalizedRecord, any) {
	r := s.rec
	norm := storage.NormalizedRecord{
		Slug:        strings.ToLower(r.ID),
		DisplayName: r.Name,
		Description: r.Definition,
		SourceType:  model.SourceTypeGOTerm,
	}
	meta := storage.GOTermMetadata{
		Name:          r.Name,
		Definition:    r.Definition,
		Synonyms:      r.Synonyms,
		Xrefs:         r.Xrefs,
		Relationships: relationStrings(r.Relations),
		Obsolete:      r.Obsolete,
	}
	return norm, meta
}

func (s *goTermSource) stats() parser.Stats { return s.scanner.Stats() }

func relationStrings(rs []parser.OBORelation) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Kind+":"+r.Target)
	}
	return out
}

// --- taxonomy nodes, enriched with a pre-loaded scientific-name index ---

type taxonSource struct {
	scanner   *parser.TaxonomyNodeScanner
	names     map[int]string
	remaining int
	rec       parser.TaxonomyNode
}

// newTaxonRangeOpener closes over a names.dmp-derived lookup built once
// per Job (scientific names aren't partitioned the way nodes.dmp is: the
// full file is small enough to hold in memory and every Work Unit needs
// the whole map).
func newTaxonRangeOpener(names map[int]string) openRangeFunc {
	return func(f io.ReadSeeker, index parser.OffsetIndex, startIdx, endIdx int) (recordSource, error) {
		if err := seekTo(f, index, startIdx); err != nil {
			return nil, err
		}
		return &taxonSource{scanner: parser.NewTaxonomyNodeScanner(f), names: names, remaining: endIdx - startIdx}, nil
	}
}

func openTaxonRange(f io.ReadSeeker, index parser.OffsetIndex, startIdx, endIdx int) (recordSource, error) {
	return newTaxonRangeOpener(nil)(f, index, startIdx, endIdx)
}

func (s *taxonSource) next() (bool, error) {
	if s.remaining <= 0 {
		return false, nil
	}
	if !s.scanner.Scan() {
		return false, nil
	}
	s.rec = s.scanner.Record()
	s.remaining--
	return true, nil
}

func (s *taxonSource) record() (storage.NormalizedRecord, any) {
	r := s.rec
	name := s.names[r.TaxonID]
	if name == "" {
		name = strconv.Itoa(r.TaxonID)
	}
	norm := storage.NormalizedRecord{
		Slug:           strconv.Itoa(r.TaxonID),
		DisplayName:    name,
		SourceType:     model.SourceTypeTaxon,
		TaxonID:        int64(r.TaxonID),
		ScientificName: name,
	}
	meta := storage.TaxonMetadata{
		ScientificName: name,
		Rank:           r.Rank,
		ParentTaxonID:  int64(r.ParentID),
	}
	return norm, meta
}

func (s *taxonSource) stats() parser.Stats { return s.scanner.Stats() }

// --- genomes (GenBank/RefSeq) ---

type genomeSource struct {
	scanner   *parser.GenBankScanner
	remaining int
	rec       parser.GenBankRecord
}

func openGenomeRange(f io.ReadSeeker, index parser.OffsetIndex, startIdx, endIdx int) (recordSource, error) {
	if err := seekTo(f, index, startIdx); err != nil {
		return nil, err
	}
	return &genomeSource{scanner: parser.NewGenBankScanner(f), remaining: endIdx - startIdx}, nil
}

func (s *genomeSource) next() (bool, error) {
	if s.remaining <= 0 {
		return false, nil
	}
	if !s.scanner.Scan() {
		return false, s.scanner.Err()
	}
	s.rec = s.scanner.Record()
	s.remaining--
	return true, nil
}

func (s *genomeSource) record() (storage.NormalizedRecord, any) {
	r := s.rec
	norm := storage.NormalizedRecord{
		Slug:           strings.ToLower(r.Accession),
		DisplayName:    r.Locus,
		Description:    r.Definition,
		SourceType:     model.SourceTypeGenome,
		ScientificName: r.OrganismName,
		Sequence:       []byte(r.Sequence),
	}
	meta := storage.GenomeMetadata{
		AssemblyAccession: r.Accession,
		Annotation:        r.MoleculeType,
		Features:          genomeFeatureStrings(r.Features),
		MetadataText:      fmt.Sprintf("%s|%s|%d", r.Definition, r.DivisionCode, r.Length),
	}
	return norm, meta
}

func genomeFeatureStrings(fs []parser.GenBankFeature) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.Type)
	}
	return out
}

func (s *genomeSource) stats() parser.Stats { return s.scanner.Stats() }

// --- InterPro entries (entry.list rows, enriched by interpro.xml) ---

type bundleSource struct {
	scanner   *parser.InterProListScanner
	entries   map[string]parser.InterProEntry
	remaining int
	rec       parser.InterProListRow
}

// newBundleRangeOpener closes over the interpro.xml-derived enrichment
// map, loaded once per Job for the same reason the taxonomy names map is.
func newBundleRangeOpener(entries map[string]parser.InterProEntry) openRangeFunc {
	return func(f io.ReadSeeker, index parser.OffsetIndex, startIdx, endIdx int) (recordSource, error) {
		if err := seekTo(f, index, startIdx); err != nil {
			return nil, err
		}
		return &bundleSource{scanner: parser.NewInterProListScanner(f), entries: entries, remaining: endIdx - startIdx}, nil
	}
}

func openBundleRange(f io.ReadSeeker, index parser.OffsetIndex, startIdx, endIdx int) (recordSource, error) {
	return newBundleRangeOpener(nil)(f, index, startIdx, endIdx)
}

func (s *bundleSource) next() (bool, error) {
	if s.remaining <= 0 {
		return false, nil
	}
	if !s.scanner.Scan() {
		return false, nil
	}
	s.rec = s.scanner.Record()
	s.remaining--
	return true, nil
}

func (s *bundleSource) record() (storage.NormalizedRecord, any) {
	r := s.rec
	entry := s.entries[r.ID]
	norm := storage.NormalizedRecord{
		Slug:        strings.ToLower(r.ID),
		DisplayName: r.Name,
		SourceType:  model.SourceTypeBundle,
	}
	meta := storage.BundleMetadata{
		// Member-database signatures (Pfam, PROSITE, ...) have no Data
		// Source of their own in this registry, so only the list itself
		// is carried into MetadataText for change detection; GO
		// cross-references are the bundle's one resolvable dependency
		// (see storage.Engine.wireGOXrefDependencies).
		GOCrossReferences: entry.GOCrossReferences,
		MetadataText:      r.Type + " " + strings.Join(entry.MemberDatabases, ",") + " " + strings.Join(entry.GOCrossReferences, ","),
	}
	return norm, meta
}

func (s *bundleSource) stats() parser.Stats { return s.scanner.Stats() }
