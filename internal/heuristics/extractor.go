// Package heuristics recovers an issuer name from document text and an
// amount/city pair from a subject line. Everything here is pure: an Extractor
// is immutable after New and holds no I/O.
package heuristics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/dvloznov/mail-ledger/internal/domain"
)

const (
	issuerLineLimit      = 15
	uppercaseRunLineSpan = 5
	minWholeLineLen      = 10
	minUppercaseRunLen   = 4
	maxUppercaseRunLen   = 25
)

// Extractor applies the compiled pattern tables. It is safe for concurrent use.
type Extractor struct {
	brands   []string
	keywords []string

	brandWithSuffix *regexp2.Regexp
	uppercaseLine   *regexp.Regexp
	uppercaseRun    *regexp2.Regexp

	amountPatterns []*regexp.Regexp

	cityLabeled     *regexp.Regexp
	cityCapitalized *regexp2.Regexp
	cityAfterMarker *regexp.Regexp
	requestWords    map[string]bool
	gazetteer       []gazetteerEntry
}

type gazetteerEntry struct {
	canonical string
	pattern   *regexp.Regexp // matches the folded name on folded text
}

var defaultExtractor = MustNew(DefaultPatterns())

// ExtractIssuer runs the default extractor. See Extractor.ExtractIssuer.
func ExtractIssuer(documentText string) string {
	return defaultExtractor.ExtractIssuer(documentText)
}

// ExtractSubjectFields runs the default extractor. See Extractor.ExtractSubjectFields.
func ExtractSubjectFields(subject string) domain.SubjectFields {
	return defaultExtractor.ExtractSubjectFields(subject)
}

// MustNew is New that panics on an invalid table.
func MustNew(p Patterns) *Extractor {
	e, err := New(p)
	if err != nil {
		panic(err)
	}
	return e
}

// New compiles the pattern tables into an Extractor.
func New(p Patterns) (*Extractor, error) {
	e := &Extractor{
		requestWords: make(map[string]bool, len(p.RequestWords)),
	}

	for _, b := range p.BrandTokens {
		e.brands = append(e.brands, strings.ToUpper(b))
	}
	for _, k := range p.GenericKeywords {
		e.keywords = append(e.keywords, strings.ToUpper(k))
	}
	e.keywords = append(e.keywords, e.brands...)

	for _, w := range p.RequestWords {
		e.requestWords[fold(w)] = true
	}

	suffixes := "(?:" + strings.Join(p.LegalSuffixes, "|") + ")"
	brands := quoteAll(e.brands)
	currency := "(?:" + strings.Join(quoteAll(p.CurrencyWords), "|") + ")"
	number := `(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?)`

	var err error

	// Strategy 1: a whole-word brand token, then any number of legal suffixes.
	e.brandWithSuffix, err = regexp2.Compile(
		`(?<![\p{L}\d])(?:`+strings.Join(brands, "|")+`)(?![\p{L}\d])(?:[\s,]+`+suffixes+`(?![\p{L}]))*`,
		regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("New: brand pattern: %w", err)
	}

	// Strategy 2: the whole line is uppercase words, optionally ending in a suffix.
	word := `[\p{Lu}&][\p{Lu}&'\-]*`
	e.uppercaseLine, err = regexp.Compile(`^` + word + `(?:\s+` + word + `)*(?:,?\s+` + suffixes + `)?$`)
	if err != nil {
		return nil, fmt.Errorf("New: uppercase line pattern: %w", err)
	}

	// Strategy 5: a standalone run of uppercase words of at least 3 letters each.
	e.uppercaseRun, err = regexp2.Compile(`(?<![\p{L}])\p{Lu}{3,}(?:\s+\p{Lu}{3,})*(?![\p{L}])`, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("New: uppercase run pattern: %w", err)
	}

	amountSources := []string{
		`\$\s*` + number,
		`(?i)` + number + `\s*` + currency + `\b`,
		`(?i)\b(?:` + strings.Join(quoteAll(p.AmountLabels), "|") + `)\b\s*:?\s*\$?\s*` + number,
		number + `\s*-`,
	}
	for _, src := range amountSources {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("New: amount pattern %q: %w", src, err)
		}
		e.amountPatterns = append(e.amountPatterns, re)
	}

	e.cityLabeled, err = regexp.Compile(
		`(?i)\b(?:` + strings.Join(quoteAll(p.CityLabels), "|") + `)\s*[:=]\s*([^\d$\-]+?)\s*(?:-|\$|\d|\b` + currency + `\b|$)`)
	if err != nil {
		return nil, fmt.Errorf("New: labeled city pattern: %w", err)
	}

	e.cityCapitalized, err = regexp2.Compile(
		`(?<![\p{L}])\p{Lu}\p{Ll}+(?:\s+(?:(?:de|del|la|las|los)\s+)?\p{Lu}\p{Ll}+)*(?=\s*(?:-|\$|(?i:mxn|usd)(?![\p{L}])|$))`,
		regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("New: capitalized city pattern: %w", err)
	}

	e.cityAfterMarker, err = regexp.Compile(
		`(?:(?i:recurso)|\blos|\blas)\s+(.+?)\s*(?:\$|(?i:\b` + currency + `\b))`)
	if err != nil {
		return nil, fmt.Errorf("New: marker city pattern: %w", err)
	}

	for _, name := range p.Gazetteer {
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(fold(name)) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("New: gazetteer entry %q: %w", name, err)
		}
		e.gazetteer = append(e.gazetteer, gazetteerEntry{canonical: name, pattern: re})
	}

	return e, nil
}

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = regexp.QuoteMeta(s)
	}
	return out
}

// collapseSpaces trims s and replaces every whitespace run with one space.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
