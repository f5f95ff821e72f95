package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Export writes rows as CSV: one header row, then the visible columns of each
// row. The message id column is never written.
func Export(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(HeaderLabels); err != nil {
		return fmt.Errorf("Export: writing header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Visible()); err != nil {
			return fmt.Errorf("Export: writing row %s: %w", r.MessageID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
