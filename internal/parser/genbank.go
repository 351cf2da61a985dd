package parser

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// GenBankRange is one contiguous span within a location expression.
type GenBankRange struct {
	Start int
	End   int
}

// GenBankLocation is a parsed feature location: one or more ranges
// (joined by `join(...)`), optionally complemented.
type GenBankLocation struct {
	Ranges     []GenBankRange
	Complement bool
}

// GenBankFeature is one FEATURES table entry.
type GenBankFeature struct {
	Type       string
	Location   GenBankLocation
	Qualifiers map[string][]string
}

// GenBankRecord is one parsed LOCUS...//  entry.
type GenBankRecord struct {
	Locus          string
	Length         int
	MoleculeType   string
	DivisionCode   string
	Definition     string
	Accession      string
	Version        string
	OrganismName   string
	Lineage        []string
	OrganismKind   OrganismKind
	Features       []GenBankFeature
	Sequence       string
}

// GenBankScanner yields GenBankRecords from a "//"-delimited flat file.
type GenBankScanner struct {
	reader *bufio.Reader
	rec    GenBankRecord
	stats  Stats
	index  int
	err    error
}

func NewGenBankScanner(r io.Reader) *GenBankScanner {
	return &GenBankScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

func (s *GenBankScanner) Scan() bool {
	for {
		lines, eof, err := s.readOneRecord()
		if err != nil {
			s.err = err
			return false
		}
		if len(lines) == 0 {
			return false
		}

		s.index++
		rec, parseErr := parseGenBankRecord(lines)
		if parseErr != nil {
			// Each GenBank record carries its own LOCUS header, so a
			// malformed one invalidates only that record, not the range.
			s.stats.skip(s.index, 0, parseErr.Error())
			if eof {
				return false
			}
			continue
		}
		s.stats.RecordsSeen++
		s.rec = rec
		return true
	}
}

func (s *GenBankScanner) Record() GenBankRecord { return s.rec }
func (s *GenBankScanner) Stats() Stats          { return s.stats }
func (s *GenBankScanner) Err() error            { return s.err }

func (s *GenBankScanner) readOneRecord() (lines []string, eof bool, err error) {
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

func parseGenBankRecord(lines []string) (GenBankRecord, error) {
	var rec GenBankRecord
	var lineage strings.Builder
	var inFeatures, inOrigin, inOrganism bool
	var currentFeature *GenBankFeature
	var pendingQualifier string

	for _, raw := range lines {
		switch {
		case strings.HasPrefix(raw, "LOCUS"):
			fields := strings.Fields(raw)
			if len(fields) < 3 {
				return rec, &RecordError{Message: "malformed LOCUS line"}
			}
			rec.Locus = fields[1]
			if n, err := strconv.Atoi(fields[2]); err == nil {
				rec.Length = n
			}
			if len(fields) > 4 {
				rec.MoleculeType = fields[4]
			}
			if len(fields) > 6 {
				rec.DivisionCode = fields[len(fields)-2]
			}
			inFeatures, inOrigin, inOrganism = false, false, false
		case strings.HasPrefix(raw, "DEFINITION"):
			rec.Definition = strings.TrimSuffix(strings.TrimSpace(strings.TrimPrefix(raw, "DEFINITION")), ".")
			inFeatures, inOrigin, inOrganism = false, false, false
		case strings.HasPrefix(raw, "ACCESSION"):
			fields := strings.Fields(raw)
			if len(fields) > 1 {
				rec.Accession = fields[1]
			}
			inFeatures, inOrigin, inOrganism = false, false, false
		case strings.HasPrefix(raw, "VERSION"):
			fields := strings.Fields(raw)
			if len(fields) > 1 {
				rec.Version = fields[1]
			}
			inFeatures, inOrigin, inOrganism = false, false, false
		case strings.HasPrefix(raw, "  ORGANISM"):
			rec.OrganismName = strings.TrimSpace(strings.TrimPrefix(raw, "  ORGANISM"))
			inOrganism = true
			inFeatures, inOrigin = false, false
		case inOrganism && strings.HasPrefix(raw, "            "):
			lineage.WriteString(" " + strings.TrimSuffix(strings.TrimSpace(raw), "."))
		case strings.HasPrefix(raw, "FEATURES"):
			inFeatures, inOrigin, inOrganism = true, false, false
		case strings.HasPrefix(raw, "ORIGIN"):
			inFeatures, inOrigin, inOrganism = false, true, false
		case inFeatures && strings.HasPrefix(raw, "     ") && !strings.HasPrefix(raw, "                "):
			fields := strings.Fields(raw)
			if len(fields) < 2 {
				continue
			}
			loc, err := parseGenBankLocation(fields[1])
			if err != nil {
				continue // malformed feature location: skip this feature only
			}
			rec.Features = append(rec.Features, GenBankFeature{Type: fields[0], Location: loc, Qualifiers: map[string][]string{}})
			currentFeature = &rec.Features[len(rec.Features)-1]
			pendingQualifier = ""
		case inFeatures && currentFeature != nil && strings.HasPrefix(strings.TrimSpace(raw), "/"):
			qualifier := strings.TrimSpace(raw)[1:]
			name, value, hasValue := strings.Cut(qualifier, "=")
			if !hasValue {
				currentFeature.Qualifiers[name] = append(currentFeature.Qualifiers[name], "")
				pendingQualifier = name
				continue
			}
			value = strings.Trim(value, "\"")
			currentFeature.Qualifiers[name] = append(currentFeature.Qualifiers[name], value)
			pendingQualifier = name
		case inFeatures && currentFeature != nil && pendingQualifier != "":
			values := currentFeature.Qualifiers[pendingQualifier]
			if len(values) > 0 {
				values[len(values)-1] = strings.TrimSuffix(values[len(values)-1], "\"") + " " + strings.Trim(strings.TrimSpace(raw), "\"")
				currentFeature.Qualifiers[pendingQualifier] = values
			}
		case inOrigin:
			fields := strings.Fields(raw)
			for _, f := range fields[min(1, len(fields)):] {
				rec.Sequence += f
			}
		}
	}

	if lineage.Len() > 0 {
		for _, p := range strings.Split(lineage.String(), ";") {
			p = strings.TrimSpace(p)
			if p != "" {
				rec.Lineage = append(rec.Lineage, p)
			}
		}
		rec.OrganismKind = ClassifyLineage(rec.Lineage)
	}

	if rec.Locus == "" {
		return rec, &RecordError{Message: "missing LOCUS line"}
	}
	return rec, nil
}

// parseGenBankLocation parses location expressions of the form
// "123..456", "complement(123..456)", "join(1..10,20..30)", and
// "complement(join(1..10,20..30))".
func parseGenBankLocation(expr string) (GenBankLocation, error) {
	var loc GenBankLocation

	if strings.HasPrefix(expr, "complement(") && strings.HasSuffix(expr, ")") {
		loc.Complement = true
		expr = expr[len("complement(") : len(expr)-1]
	}
	if strings.HasPrefix(expr, "join(") && strings.HasSuffix(expr, ")") {
		expr = expr[len("join(") : len(expr)-1]
	}

	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimPrefix(strings.TrimSpace(part), "<")
		part = strings.ReplaceAll(part, ">", "")
		start, end, ok := parseRange(part)
		if !ok {
			return GenBankLocation{}, &RecordError{Message: "unparseable location: " + expr}
		}
		loc.Ranges = append(loc.Ranges, GenBankRange{Start: start, End: end})
	}
	if len(loc.Ranges) == 0 {
		return GenBankLocation{}, &RecordError{Message: "empty location expression"}
	}
	return loc, nil
}
