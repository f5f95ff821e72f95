package heuristics

import (
	"strings"
	"unicode/utf8"

	"github.com/dvloznov/mail-ledger/internal/domain"
)

// ExtractIssuer returns the best-guess issuing party for a document, or
// domain.Unidentified. Strategies run in order; each one scans every
// candidate line before the next strategy is tried.
func (e *Extractor) ExtractIssuer(documentText string) string {
	lines := headLines(documentText, issuerLineLimit)

	strategies := []func([]string) string{
		e.brandWithLegalSuffix,
		e.wholeUppercaseLine,
		e.brandAnywhereInLine,
		e.genericKeywordLine,
		e.uppercaseRunNearTop,
	}
	for _, strategy := range strategies {
		if hit := strategy(lines); hit != "" {
			return hit
		}
	}

	if brand := e.findBrand(documentText); brand != "" {
		return brand
	}
	return domain.Unidentified
}

// headLines returns up to limit non-blank lines, trimmed and with inner
// whitespace collapsed.
func headLines(text string, limit int) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		line := collapseSpaces(raw)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == limit {
			break
		}
	}
	return out
}

func (e *Extractor) brandWithLegalSuffix(lines []string) string {
	for _, line := range lines {
		m, err := e.brandWithSuffix.FindStringMatch(strings.ToUpper(line))
		if err != nil || m == nil {
			continue
		}
		return collapseSpaces(m.String())
	}
	return ""
}

func (e *Extractor) wholeUppercaseLine(lines []string) string {
	for _, line := range lines {
		if utf8.RuneCountInString(line) < minWholeLineLen {
			continue
		}
		if e.uppercaseLine.MatchString(line) {
			return line
		}
	}
	return ""
}

func (e *Extractor) brandAnywhereInLine(lines []string) string {
	for _, line := range lines {
		if brand := e.findBrand(line); brand != "" {
			return brand
		}
	}
	return ""
}

func (e *Extractor) genericKeywordLine(lines []string) string {
	for _, line := range lines {
		upper := strings.ToUpper(line)
		for _, k := range e.keywords {
			if strings.Contains(upper, k) {
				return line
			}
		}
	}
	return ""
}

func (e *Extractor) uppercaseRunNearTop(lines []string) string {
	if len(lines) > uppercaseRunLineSpan {
		lines = lines[:uppercaseRunLineSpan]
	}
	for _, line := range lines {
		m, err := e.uppercaseRun.FindStringMatch(line)
		for err == nil && m != nil {
			if n := utf8.RuneCountInString(m.String()); n >= minUppercaseRunLen && n <= maxUppercaseRunLen {
				return m.String()
			}
			m, err = e.uppercaseRun.FindNextMatch(m)
		}
	}
	return ""
}

// findBrand reports the first brand token contained in text, ignoring case.
func (e *Extractor) findBrand(text string) string {
	upper := strings.ToUpper(text)
	for _, b := range e.brands {
		if strings.Contains(upper, b) {
			return b
		}
	}
	return ""
}
