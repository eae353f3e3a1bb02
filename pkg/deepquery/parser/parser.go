// Package parser turns the semicolon-delimited output of a point query into match records.
//
// A data line carries 13 fields:
//
//	index; total; query path; query start; query stop; match path; match id;
//	match start; match stop; score; time factor; freq factor; match %
//
// Anything that does not start with a digit is treated as diagnostics and skipped.
package parser

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/himanishpuri/DeepQuery/pkg/models"
)

const (
	fieldQueryPath  = 2
	fieldMatchPath  = 5
	fieldMatchStart = 7
	fieldMatchStop  = 8
	fieldScore      = 9

	// minFields is the number of leading fields the parser actually reads.
	minFields = fieldScore + 1
)

// DefaultScratchPrefixes are directory prefixes reserved for extraction scratch areas.
var DefaultScratchPrefixes = []string{"deepquery_", "panako_deep_"}

var clipName = regexp.MustCompile(`^segment_\d{4}\.wav$`)

// Stats counts what happened to the lines of one response.
type Stats struct {
	DataLines      int
	Malformed      int
	SelfMatches    int
	ScratchMatches int
	Records        int
}

// Parser is stateless apart from its filter configuration and safe for concurrent use.
type Parser struct {
	// Exclude lists identities that count as the query itself, typically the
	// absolute path of the original recording.
	Exclude []string
	// ScratchPrefixes marks directories holding extraction artifacts.
	ScratchPrefixes []string
}

// New returns a parser excluding the given identities and the default scratch prefixes.
func New(exclude ...string) *Parser {
	return &Parser{Exclude: exclude, ScratchPrefixes: DefaultScratchPrefixes}
}

// Parse extracts the match records from raw engine output. Order is not significant.
func (p *Parser) Parse(output string) ([]models.MatchRecord, Stats) {
	var (
		records []models.MatchRecord
		stats   Stats
	)

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line[0] < '0' || line[0] > '9' {
			continue
		}
		stats.DataLines++

		rec, ok := parseLine(line)
		if !ok {
			stats.Malformed++
			continue
		}
		if p.isSelf(rec) {
			stats.SelfMatches++
			continue
		}
		if p.IsScratch(rec.CandidatePath) {
			stats.ScratchMatches++
			continue
		}
		records = append(records, rec)
	}

	stats.Records = len(records)
	return records, stats
}

func parseLine(line string) (models.MatchRecord, bool) {
	parts := strings.Split(line, ";")
	if len(parts) < minFields {
		return models.MatchRecord{}, false
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	start, err := parseSeconds(parts[fieldMatchStart])
	if err != nil {
		return models.MatchRecord{}, false
	}
	stop, err := parseSeconds(parts[fieldMatchStop])
	if err != nil {
		return models.MatchRecord{}, false
	}
	score, err := strconv.Atoi(parts[fieldScore])
	if err != nil || score < 0 {
		return models.MatchRecord{}, false
	}

	return models.MatchRecord{
		QueryPath:      parts[fieldQueryPath],
		CandidatePath:  parts[fieldMatchPath],
		CandidateStart: start,
		CandidateStop:  stop,
		Score:          score,
	}, true
}

// parseSeconds treats a blank field as zero.
func parseSeconds(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func (p *Parser) isSelf(rec models.MatchRecord) bool {
	if rec.CandidatePath == rec.QueryPath {
		return true
	}
	for _, id := range p.Exclude {
		if id != "" && rec.CandidatePath == id {
			return true
		}
	}
	return false
}

// IsScratch reports whether path names an extraction artifact rather than a library entry.
func (p *Parser) IsScratch(path string) bool {
	if clipName.MatchString(filepath.Base(path)) {
		return true
	}
	for _, dir := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		for _, prefix := range p.ScratchPrefixes {
			if prefix != "" && strings.HasPrefix(dir, prefix) {
				return true
			}
		}
	}
	return false
}
