// Package attachments decides which attachments of a message are extracted
// and in what order.
package attachments

import (
	"sort"
	"strings"

	"github.com/dvloznov/mail-ledger/internal/domain"
)

// CoverLetterKeyword pushes an attachment to the back of the extraction order
// when its filename contains it.
const CoverLetterKeyword = "carta"

// coverLetterPatterns include the keyword and misspellings seen in practice.
var coverLetterPatterns = []string{
	"carta",
	"crata",
	"catra",
	"carat",
	"cart_",
	"cover letter",
	"cover_letter",
	"oficio",
}

// Selected is an eligible attachment plus advisory metadata.
type Selected struct {
	domain.Attachment

	// LooksLikeCoverLetter is informational only and never affects eligibility.
	LooksLikeCoverLetter bool
}

// Select returns the PDF attachments of a message, with attachments whose
// filename does not contain CoverLetterKeyword first. Relative order is
// otherwise preserved. The result is empty when nothing is eligible.
func Select(all []domain.Attachment) []Selected {
	var out []Selected
	for _, a := range all {
		if !a.IsPDF() {
			continue
		}
		out = append(out, Selected{
			Attachment:           a,
			LooksLikeCoverLetter: LooksLikeCoverLetter(a.Filename),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return !hasKeyword(out[i].Filename) && hasKeyword(out[j].Filename)
	})
	return out
}

// LooksLikeCoverLetter reports whether a filename matches any cover-letter
// pattern, ignoring case.
func LooksLikeCoverLetter(filename string) bool {
	lower := strings.ToLower(filename)
	for _, p := range coverLetterPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func hasKeyword(filename string) bool {
	return strings.Contains(strings.ToLower(filename), CoverLetterKeyword)
}
