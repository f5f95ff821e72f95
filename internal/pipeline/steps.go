package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/dvloznov/mail-ledger/internal/attachments"
	"github.com/dvloznov/mail-ledger/internal/domain"
	"github.com/dvloznov/mail-ledger/internal/ledger"
	"github.com/dvloznov/mail-ledger/internal/mailbox"
	"github.com/dvloznov/mail-ledger/internal/pdftext"
	"github.com/dvloznov/mail-ledger/internal/retry"
	"github.com/rs/zerolog"
)

// PipelineStep represents a single step in the attachment pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *AttachmentState) error
}

// AttachmentState holds the shared state across all pipeline steps for one
// attachment of one message.
type AttachmentState struct {
	Message    *domain.InboundMessage
	Attachment attachments.Selected

	PDFBytes   []byte
	ArchiveURI string
	Text       string
	Issuer     string
	Fields     domain.SubjectFields
	Record     domain.Record
	Result     ledger.AppendResult
}

// Step 1: DownloadStep fetches the attachment bytes, retrying transient failures.
type DownloadStep struct {
	Mailbox mailbox.Mailbox
	Retry   retry.Policy
}

func (s *DownloadStep) Execute(ctx context.Context, state *AttachmentState) error {
	data, err := retry.Do(ctx, s.Retry, func(ctx context.Context) ([]byte, error) {
		return s.Mailbox.DownloadAttachment(ctx, state.Message.MessageID, state.Attachment.AttachmentID)
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", state.Attachment.Filename, err)
	}
	state.PDFBytes = data
	return nil
}

// Step 2: ArchiveStep stores a copy of the attachment. Failure only warns.
type ArchiveStep struct {
	Archiver AttachmentArchiver
	Log      zerolog.Logger
}

func (s *ArchiveStep) Execute(ctx context.Context, state *AttachmentState) error {
	if s.Archiver == nil {
		return nil
	}

	uri, err := s.Archiver.StoreAttachment(ctx, state.Message.MessageID, state.Attachment.Filename, state.PDFBytes)
	if err != nil {
		s.Log.Warn().
			Err(err).
			Str("message_id", state.Message.MessageID).
			Str("attachment", state.Attachment.Filename).
			Msg("Failed to archive attachment, continuing")
		return nil
	}
	state.ArchiveURI = uri
	return nil
}

// Step 3: RenderStep turns the PDF into text, retrying renderer failures. A
// document without any text is an extraction miss, not a failure.
type RenderStep struct {
	Renderer pdftext.Renderer
	Retry    retry.Policy
	Log      zerolog.Logger
}

func (s *RenderStep) Execute(ctx context.Context, state *AttachmentState) error {
	text, err := retry.Do(ctx, s.Retry, func(ctx context.Context) (string, error) {
		return s.Renderer.Render(ctx, state.PDFBytes)
	})
	if errors.Is(err, apperrors.ErrEmptyDocument) {
		s.Log.Warn().
			Err(err).
			Str("message_id", state.Message.MessageID).
			Str("attachment", state.Attachment.Filename).
			Msg("No text recovered from attachment, issuer will fall back to sender")
		state.Text = ""
		return nil
	}
	if err != nil {
		return fmt.Errorf("render %s: %w", state.Attachment.Filename, err)
	}
	state.Text = text
	return nil
}

// Step 4: ExtractStep runs the text heuristics.
type ExtractStep struct {
	Extractor Extractor
}

func (s *ExtractStep) Execute(ctx context.Context, state *AttachmentState) error {
	state.Issuer = s.Extractor.ExtractIssuer(state.Text)
	state.Fields = s.Extractor.ExtractSubjectFields(state.Message.Subject)
	return nil
}

// Step 5: AssembleStep builds the ledger record.
type AssembleStep struct {
	Assembler RecordAssembler
}

func (s *AssembleStep) Execute(ctx context.Context, state *AttachmentState) error {
	state.Record = s.Assembler.Assemble(*state.Message, state.Issuer, state.Fields)
	return nil
}

// Step 6: AppendStep writes the record to the ledger, retrying transient failures.
type AppendStep struct {
	Ledger Ledger
	Retry  retry.Policy
}

func (s *AppendStep) Execute(ctx context.Context, state *AttachmentState) error {
	res, err := retry.Do(ctx, s.Retry, func(ctx context.Context) (ledger.AppendResult, error) {
		return s.Ledger.Append(ctx, state.Record)
	})
	if err != nil {
		return fmt.Errorf("append: %w", err)
	}
	state.Result = res
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *AttachmentState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewAttachmentPipeline creates the standard 6-step pipeline for one attachment.
func NewAttachmentPipeline(d Deps) *Pipeline {
	return NewPipeline(
		&DownloadStep{Mailbox: d.Mailbox, Retry: d.Retry},
		&ArchiveStep{Archiver: d.Archiver, Log: d.Log},
		&RenderStep{Renderer: d.Renderer, Retry: d.Retry, Log: d.Log},
		&ExtractStep{Extractor: d.Extractor},
		&AssembleStep{Assembler: d.Assembler},
		&AppendStep{Ledger: d.Ledger, Retry: d.Retry},
	)
}
