package parser

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// UniProtFeature is one FT block entry: a type, a 1-based inclusive
// range, and a free-text description.
type UniProtFeature struct {
	Type        string
	Start       int
	End         int
	Description string
}

// UniProtXref is one DR cross-reference line.
type UniProtXref struct {
	Database string
	ID       string
	Extra    string
}

// UniProtComment is one topic-tagged CC block.
type UniProtComment struct {
	Topic string
	Text  string
}

// UniProtPublication is one citation referenced by an RN/RX/RA/RT/RL group.
type UniProtPublication struct {
	Number  int
	PubMed  string
	DOI     string
	Authors string
	Title   string
	Journal string
}

// UniProtRecord is one parsed entry of the protein flat-file format.
type UniProtRecord struct {
	PrimaryAccession    string
	SecondaryAccessions []string
	EntryName           string
	RecommendedName     string
	AlternativeNames    []string
	GeneName            string
	OrganismName        string
	TaxonomyID          int
	Lineage             []string
	OrganismKind        OrganismKind
	Sequence            string
	SequenceLength      int
	Mass                int
	ECNumbers           []string
	Keywords            []string
	ProteinExistence    string
	Features            []UniProtFeature
	CrossReferences     []UniProtXref
	Comments            []UniProtComment
	Publications        []UniProtPublication
	CreatedDate         string
	LastUpdateDate      string
}

// UniProtScanner yields UniProtRecords from a "//"-delimited flat file,
// skipping malformed records (counted in Stats) without halting.
type UniProtScanner struct {
	reader  *bufio.Reader
	current UniProtRecord
	stats   Stats
	index   int
	err     error // fatal, file-level
}

// NewUniProtScanner wraps r for sequential scanning from its current
// position; callers that need to resume from a record offset should
// seek r (or its underlying ReaderAt) to an OffsetIndex entry first.
func NewUniProtScanner(r io.Reader) *UniProtScanner {
	return &UniProtScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Scan advances to the next well-formed record, skipping malformed ones.
// It returns false at EOF or on a fatal file-level error (see Err).
func (s *UniProtScanner) Scan() bool {
	for {
		lines, eof, err := s.readOneRecord()
		if err != nil {
			s.err = err
			return false
		}
		if len(lines) == 0 {
			return false // eof with nothing buffered
		}

		rec, parseErr := parseUniProtRecord(lines)
		s.index++
		if parseErr != nil {
			// A malformed ID/AC block invalidates only this record, not the
			// range: UniProt's sentinel-delimited format gives every record
			// its own header.
			s.stats.skip(s.index, 0, parseErr.Error())
			if eof {
				return false
			}
			continue
		}
		s.stats.RecordsSeen++
		s.current = rec
		return true
	}
}

// Record returns the most recently scanned record.
func (s *UniProtScanner) Record() UniProtRecord { return s.current }

// Stats reports this range's record-level outcomes so far.
func (s *UniProtScanner) Stats() Stats { return s.stats }

// Err returns the fatal file-level error that stopped scanning, if any.
func (s *UniProtScanner) Err() error { return s.err }

func (s *UniProtScanner) readOneRecord() (lines []string, eof bool, err error) {
	for {
		line, readErr := s.reader.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "//" {
			return lines, false, nil
		}
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
		if readErr != nil {
			if readErr == io.EOF {
				return lines, true, nil
			}
			return nil, false, readErr
		}
	}
}

func parseUniProtRecord(lines []string) (UniProtRecord, error) {
	var rec UniProtRecord
	var lineage strings.Builder
	var pendingPub *UniProtPublication

	for _, line := range lines {
		if len(line) < 2 {
			continue
		}
		code := line[:2]
		rest := strings.TrimSpace(strings.TrimPrefix(line[2:], " "))

		switch code {
		case "ID":
			fields := strings.Fields(rest)
			if len(fields) > 0 {
				rec.EntryName = fields[0]
			}
		case "AC":
			for _, ac := range strings.Split(strings.TrimSuffix(rest, ";"), ";") {
				ac = strings.TrimSpace(ac)
				if ac == "" {
					continue
				}
				if rec.PrimaryAccession == "" {
					rec.PrimaryAccession = ac
				} else {
					rec.SecondaryAccessions = append(rec.SecondaryAccessions, ac)
				}
			}
		case "DE":
			parseDELine(rest, &rec)
		case "GN":
			if name, ok := extractKeyValue(rest, "Name"); ok {
				rec.GeneName = name
			}
		case "OS":
			rec.OrganismName = strings.TrimSuffix(rest, ".")
		case "OC":
			lineage.WriteString(strings.TrimSuffix(rest, "."))
		case "OX":
			if taxID, ok := extractKeyValue(rest, "NCBI_TaxID"); ok {
				taxID = strings.TrimSuffix(strings.Split(taxID, ";")[0], ";")
				if n, err := strconv.Atoi(strings.TrimSpace(taxID)); err == nil {
					rec.TaxonomyID = n
				}
			}
		case "DT":
			if strings.Contains(rest, "integrated into UniProtKB") || rec.CreatedDate == "" {
				rec.CreatedDate = firstField(rest)
			}
			rec.LastUpdateDate = firstField(rest)
		case "KW":
			for _, kw := range strings.Split(strings.TrimSuffix(rest, "."), ";") {
				kw = strings.TrimSpace(kw)
				if kw != "" {
					rec.Keywords = append(rec.Keywords, kw)
				}
			}
		case "FT":
			parseFTLine(rest, &rec)
		case "DR":
			parseDRLine(rest, &rec)
		case "CC":
			parseCCLine(rest, &rec)
		case "RN":
			if pendingPub != nil {
				rec.Publications = append(rec.Publications, *pendingPub)
			}
			pendingPub = &UniProtPublication{}
		case "RX":
			if pendingPub != nil {
				if pm, ok := extractKeyValue(rest, "PubMed"); ok {
					pendingPub.PubMed = strings.TrimSuffix(pm, ";")
				}
				if doi, ok := extractKeyValue(rest, "DOI"); ok {
					pendingPub.DOI = strings.TrimSuffix(doi, ";")
				}
			}
		case "RA":
			if pendingPub != nil {
				pendingPub.Authors = strings.TrimSpace(strings.TrimSuffix(pendingPub.Authors+" "+rest, ";"))
			}
		case "RT":
			if pendingPub != nil {
				pendingPub.Title = strings.Trim(strings.TrimSpace(pendingPub.Title+" "+rest), "\";")
			}
		case "RL":
			if pendingPub != nil {
				pendingPub.Journal = strings.TrimSuffix(rest, ".")
			}
		case "PE":
			rec.ProteinExistence = strings.TrimSuffix(rest, ";")
		case "SQ":
			parseSQLine(rest, &rec)
		case "  ": // sequence data line, indented with two spaces
			rec.Sequence += strings.ReplaceAll(rest, " ", "")
		}
	}
	if pendingPub != nil {
		rec.Publications = append(rec.Publications, *pendingPub)
	}

	if lineage.Len() > 0 {
		parts := strings.Split(lineage.String(), ";")
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				rec.Lineage = append(rec.Lineage, p)
			}
		}
		rec.OrganismKind = ClassifyLineage(rec.Lineage)
	}

	if rec.PrimaryAccession == "" {
		return rec, &RecordError{Message: "missing AC line"}
	}
	if rec.SequenceLength > 0 && len(rec.Sequence) != rec.SequenceLength {
		return rec, &RecordError{Message: "sequence length mismatch with SQ header"}
	}
	return rec, nil
}

func parseDELine(rest string, rec *UniProtRecord) {
	if name, ok := extractKeyValue(rest, "Full"); ok {
		name = strings.TrimSuffix(name, ";")
		if rec.RecommendedName == "" && strings.Contains(rest, "RecName") {
			rec.RecommendedName = name
		} else if strings.Contains(rest, "AltName") {
			rec.AlternativeNames = append(rec.AlternativeNames, name)
		} else if rec.RecommendedName == "" {
			rec.RecommendedName = name
		}
	}
	if ec, ok := extractKeyValue(rest, "EC"); ok {
		rec.ECNumbers = append(rec.ECNumbers, strings.TrimSuffix(ec, ";"))
	}
}

func parseFTLine(rest string, rec *UniProtRecord) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return
	}
	start, end, ok := parseRange(fields[1])
	if !ok {
		return
	}
	desc := ""
	if len(fields) > 2 {
		desc = strings.Join(fields[2:], " ")
	}
	rec.Features = append(rec.Features, UniProtFeature{Type: fields[0], Start: start, End: end, Description: desc})
}

func parseRange(raw string) (start, end int, ok bool) {
	parts := strings.SplitN(raw, "..", 2)
	start, err := strconv.Atoi(strings.TrimPrefix(parts[0], "<"))
	if err != nil {
		return 0, 0, false
	}
	if len(parts) == 1 {
		return start, start, true
	}
	end, err = strconv.Atoi(strings.TrimPrefix(parts[1], ">"))
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

func parseDRLine(rest string, rec *UniProtRecord) {
	fields := strings.Split(strings.TrimSuffix(rest, "."), ";")
	if len(fields) < 2 {
		return
	}
	xref := UniProtXref{Database: strings.TrimSpace(fields[0]), ID: strings.TrimSpace(fields[1])}
	if len(fields) > 2 {
		xref.Extra = strings.TrimSpace(strings.Join(fields[2:], ";"))
	}
	rec.CrossReferences = append(rec.CrossReferences, xref)
}

func parseCCLine(rest string, rec *UniProtRecord) {
	if !strings.HasPrefix(rest, "-!-") {
		if len(rec.Comments) > 0 {
			last := &rec.Comments[len(rec.Comments)-1]
			last.Text = strings.TrimSpace(last.Text + " " + rest)
		}
		return
	}
	body := strings.TrimSpace(strings.TrimPrefix(rest, "-!-"))
	parts := strings.SplitN(body, ":", 2)
	topic := strings.TrimSpace(parts[0])
	text := ""
	if len(parts) == 2 {
		text = strings.TrimSpace(parts[1])
	}
	rec.Comments = append(rec.Comments, UniProtComment{Topic: topic, Text: text})
}

func parseSQLine(rest string, rec *UniProtRecord) {
	fields := strings.Fields(rest)
	for i, f := range fields {
		switch f {
		case "AA;":
			if i > 0 {
				if n, err := strconv.Atoi(fields[i-1]); err == nil {
					rec.SequenceLength = n
				}
			}
		case "MW;":
			if i > 0 {
				if n, err := strconv.Atoi(fields[i-1]); err == nil {
					rec.Mass = n
				}
			}
		}
	}
}

// extractKeyValue pulls "Key=Value" out of a semicolon/space-separated
// field list such as `RecName: Full=Cytochrome c; EC=1.1.1.1;`.
func extractKeyValue(s, key string) (string, bool) {
	marker := key + "="
	idx := strings.Index(s, marker)
	if idx < 0 {
		return "", false
	}
	rest := s[idx+len(marker):]
	if semi := strings.IndexByte(rest, ';'); semi >= 0 {
		return strings.TrimSpace(rest[:semi]), true
	}
	return strings.TrimSpace(rest), true
}

func firstField(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimSuffix(fields[0], ",")
}
