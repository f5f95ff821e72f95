// Package pdftext renders PDF attachments to plain text for extraction.
package pdftext

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/rs/zerolog"
)

// Renderer turns PDF bytes into plain text, one line per text row.
type Renderer interface {
	Render(ctx context.Context, pdf []byte) (string, error)
	Name() string
}

// ChainRenderer tries renderers in order and returns the first non-blank
// text. Scanned documents without a text layer fall through to the next one.
type ChainRenderer struct {
	renderers []Renderer
	log       zerolog.Logger
}

var _ Renderer = (*ChainRenderer)(nil)

func NewChainRenderer(log zerolog.Logger, renderers ...Renderer) *ChainRenderer {
	return &ChainRenderer{renderers: renderers, log: log}
}

func (c *ChainRenderer) Name() string {
	names := make([]string, 0, len(c.renderers))
	for _, r := range c.renderers {
		names = append(names, r.Name())
	}
	return strings.Join(names, ">")
}

// Render returns apperrors.ErrEmptyDocument only when every renderer ran
// cleanly and produced blank text. If any renderer failed, the joined
// renderer errors are returned instead so the caller can retry.
func (c *ChainRenderer) Render(ctx context.Context, pdf []byte) (string, error) {
	var errs []error

	for _, r := range c.renderers {
		text, err := r.Render(ctx, pdf)
		if err != nil {
			c.log.Debug().Err(err).Str("renderer", r.Name()).Msg("Renderer failed, trying next")
			errs = append(errs, fmt.Errorf("%s: %w", r.Name(), err))
			continue
		}
		if strings.TrimSpace(text) == "" {
			c.log.Debug().Str("renderer", r.Name()).Msg("Renderer returned no text, trying next")
			continue
		}
		return text, nil
	}

	if ctx.Err() != nil {
		return "", fmt.Errorf("Render: %w", ctx.Err())
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("Render: %w", errors.Join(errs...))
	}
	return "", fmt.Errorf("Render: %w", apperrors.ErrEmptyDocument)
}
