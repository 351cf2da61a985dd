package parser

import (
	"bufio"
	"io"
	"strings"
)

// OBORelation is one is_a/part_of/regulates edge to another term id.
type OBORelation struct {
	Kind   string // "is_a", "part_of", "regulates"
	Target string
}

// OBOTerm is one [Term] stanza of an OBO ontology file.
type OBOTerm struct {
	ID         string
	Name       string
	Namespace  string
	Definition string
	Synonyms   []string
	Xrefs      []string
	AltIDs     []string
	Relations  []OBORelation
	Obsolete   bool
}

// OBOScanner yields OBOTerm records, skipping malformed stanzas and
// silently passing over [Typedef] stanzas (relation-type declarations
// carry no term fields worth storing).
type OBOScanner struct {
	reader *bufio.Reader
	rec    OBOTerm
	stats  Stats
	index  int
}

func NewOBOScanner(r io.Reader) *OBOScanner {
	return &OBOScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

func (s *OBOScanner) Scan() bool {
	for {
		stanzaHeader, lines, eof := s.readStanza()
		if stanzaHeader == "" && len(lines) == 0 {
			return false
		}
		if stanzaHeader != "[Term]" {
			if eof {
				return false
			}
			continue
		}

		s.index++
		rec, err := parseOBOTerm(lines)
		if err != nil {
			s.stats.skip(s.index, 0, err.Error())
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

func (s *OBOScanner) Record() OBOTerm { return s.rec }
func (s *OBOScanner) Stats() Stats    { return s.stats }

// readStanza reads until the next blank line or EOF, returning the
// bracketed header line (if the first non-blank line starts with "[")
// and the tag:value body lines. Stanzas are assumed blank-line
// separated, per the OBO format.
func (s *OBOScanner) readStanza() (header string, lines []string, eof bool) {
	for {
		line, err := s.reader.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")

		switch {
		case trimmed == "":
			if header == "" && len(lines) == 0 {
				if err != nil {
					return "", nil, true
				}
				continue // leading blank lines before the first stanza
			}
			return header, lines, err != nil
		case strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]"):
			header = trimmed
		default:
			lines = append(lines, trimmed)
		}

		if err != nil {
			return header, lines, true
		}
	}
}

func parseOBOTerm(lines []string) (OBOTerm, error) {
	var term OBOTerm
	for _, line := range lines {
		tag, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		tag = strings.TrimSpace(tag)
		value = strings.TrimSpace(value)

		switch tag {
		case "id":
			term.ID = value
		case "name":
			term.Name = value
		case "namespace":
			term.Namespace = value
		case "def":
			term.Definition = stripOBOQuoted(value)
		case "synonym":
			term.Synonyms = append(term.Synonyms, stripOBOQuoted(value))
		case "xref":
			term.Xrefs = append(term.Xrefs, value)
		case "alt_id":
			term.AltIDs = append(term.AltIDs, value)
		case "is_obsolete":
			term.Obsolete = value == "true"
		case "is_a":
			target, _, _ := strings.Cut(value, "!")
			term.Relations = append(term.Relations, OBORelation{Kind: "is_a", Target: strings.TrimSpace(target)})
		case "relationship":
			fields := strings.Fields(value)
			if len(fields) >= 2 {
				term.Relations = append(term.Relations, OBORelation{Kind: fields[0], Target: fields[1]})
			}
		}
	}
	if term.ID == "" {
		return term, &RecordError{Message: "[Term] stanza missing id"}
	}
	return term, nil
}

// stripOBOQuoted extracts the quoted portion of a def/synonym value
// like `"definition text" [GOC:go_curators]`.
func stripOBOQuoted(value string) string {
	if !strings.HasPrefix(value, "\"") {
		return value
	}
	if end := strings.Index(value[1:], "\""); end >= 0 {
		return value[1 : end+1]
	}
	return value
}
