package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// LocalRenderer reads the embedded text layer without any network call.
type LocalRenderer struct{}

var _ Renderer = LocalRenderer{}

func (LocalRenderer) Name() string { return "local" }

// Render rebuilds text rows page by page, top to bottom.
func (LocalRenderer) Render(ctx context.Context, b []byte) (text string, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("LocalRenderer: malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("LocalRenderer: opening pdf: %w", err)
	}

	var out strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return "", fmt.Errorf("LocalRenderer: page %d: %w", i, err)
		}
		for _, row := range rows {
			out.WriteString(joinRow(row.Content))
			out.WriteByte('\n')
		}
	}

	return out.String(), nil
}

// joinRow concatenates the text runs of one row, inserting a space where the
// horizontal gap between runs is wider than a fraction of the font size.
func joinRow(runs pdf.TextHorizontal) string {
	var b strings.Builder
	prevEnd := -1.0

	for _, t := range runs {
		if prevEnd >= 0 && t.X-prevEnd > t.FontSize*0.15 && !strings.HasPrefix(t.S, " ") {
			b.WriteByte(' ')
		}
		b.WriteString(t.S)
		prevEnd = t.X + t.W
	}
	return b.String()
}
