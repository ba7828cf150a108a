package ingest

import (
	"strings"
)

// sniffSize is how much of the stream is inspected to pick the delimiter.
const sniffSize = 1024

var candidateDelimiters = []rune{',', ';', '\t', '|'}

// SniffDelimiter picks the field delimiter from a leading sample of a CSV stream.
//
// A candidate is consistent when it occurs the same non-zero number of times (outside
// quotes) on every complete line of the sample. Among consistent candidates the one with
// the most occurrences in the header wins; without any consistent candidate the most
// frequent header delimiter is used.
func SniffDelimiter(sample []byte) (rune, error) {
	text := strings.TrimPrefix(string(sample), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	if len(lines) > 1 && !strings.HasSuffix(text, "\n") {
		// last line was cut by the sample size
		lines = lines[:len(lines)-1]
	}

	var kept []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		return 0, ErrUnknownDialect
	}

	var (
		best      rune
		bestCount int
		fallback  rune
		fallbackN int
	)
	for _, d := range candidateDelimiters {
		header := countOutsideQuotes(kept[0], d)
		if header == 0 {
			continue
		}
		if header > fallbackN {
			fallback, fallbackN = d, header
		}
		consistent := true
		for _, l := range kept[1:] {
			if countOutsideQuotes(l, d) != header {
				consistent = false
				break
			}
		}
		if consistent && header > bestCount {
			best, bestCount = d, header
		}
	}

	switch {
	case bestCount > 0:
		return best, nil
	case fallbackN > 0:
		return fallback, nil
	default:
		return 0, ErrUnknownDialect
	}
}

func countOutsideQuotes(line string, delim rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == delim && !quoted:
			n++
		}
	}
	return n
}
