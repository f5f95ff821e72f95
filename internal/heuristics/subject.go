package heuristics

import (
	"strings"
	"unicode"

	"github.com/dvloznov/mail-ledger/internal/domain"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ExtractSubjectFields recovers an amount and a city from a subject line.
// Either field is empty when nothing matched.
func (e *Extractor) ExtractSubjectFields(subject string) domain.SubjectFields {
	return domain.SubjectFields{
		Amount: e.extractAmount(subject),
		City:   e.extractCity(subject),
	}
}

func (e *Extractor) extractAmount(subject string) string {
	for _, re := range e.amountPatterns {
		if m := re.FindStringSubmatch(subject); m != nil {
			return strings.ReplaceAll(m[1], ",", "")
		}
	}
	return ""
}

func (e *Extractor) extractCity(subject string) string {
	finders := []func(string) string{
		e.labeledCity,
		e.capitalizedCity,
		e.gazetteerCity,
		e.cityAfterRequestMarker,
	}
	for _, find := range finders {
		if city := strings.TrimSpace(find(subject)); city != "" {
			return city
		}
	}
	return ""
}

func (e *Extractor) labeledCity(subject string) string {
	if m := e.cityLabeled.FindStringSubmatch(subject); m != nil {
		return collapseSpaces(m[1])
	}
	return ""
}

// capitalizedCity takes the first capitalized word run that sits right before
// a hyphen, a currency marker or the end, once request words are stripped
// from its front.
func (e *Extractor) capitalizedCity(subject string) string {
	m, err := e.cityCapitalized.FindStringMatch(subject)
	for err == nil && m != nil {
		if city := e.stripRequestWords(m.String()); city != "" {
			return city
		}
		m, err = e.cityCapitalized.FindNextMatch(m)
	}
	return ""
}

func (e *Extractor) stripRequestWords(candidate string) string {
	words := strings.Fields(candidate)
	for len(words) > 0 && e.requestWords[fold(words[0])] {
		words = words[1:]
	}
	// A run never starts with a connector, but stripping can expose one.
	for len(words) > 0 && isConnector(words[0]) {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

func isConnector(w string) bool {
	switch w {
	case "de", "del", "la", "las", "los":
		return true
	}
	return false
}

func (e *Extractor) gazetteerCity(subject string) string {
	folded := fold(subject)
	for _, entry := range e.gazetteer {
		if entry.pattern.MatchString(folded) {
			return entry.canonical
		}
	}
	return ""
}

func (e *Extractor) cityAfterRequestMarker(subject string) string {
	if m := e.cityAfterMarker.FindStringSubmatch(subject); m != nil {
		return collapseSpaces(m[1])
	}
	return ""
}

// fold lowercases s and strips combining marks, so "Mérida" and "MERIDA"
// compare equal. A fresh transformer is built per call; transform chains
// carry state.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
