// Package pipeline processes batches of inbound messages: each eligible PDF
// attachment is downloaded, rendered, mined for fields and appended to the
// ledger at most once per message.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/dvloznov/mail-ledger/internal/attachments"
	"github.com/dvloznov/mail-ledger/internal/domain"
	"github.com/dvloznov/mail-ledger/internal/mailbox"
	"github.com/dvloznov/mail-ledger/internal/pdftext"
	"github.com/dvloznov/mail-ledger/internal/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Deps are the collaborators of a Processor. Archiver and Seen are optional.
type Deps struct {
	Mailbox   mailbox.Mailbox
	Renderer  pdftext.Renderer
	Ledger    Ledger
	Extractor Extractor
	Assembler RecordAssembler
	Archiver  AttachmentArchiver
	Retry     retry.Policy
	Seen      *SeenSet
	Log       zerolog.Logger
}

// BatchReport summarizes one ProcessBatch call.
type BatchReport struct {
	RunID         string    `json:"run_id"`
	Started       time.Time `json:"started"`
	Finished      time.Time `json:"finished"`
	Listed        int       `json:"listed"`
	Skipped       int       `json:"skipped"`
	NoAttachments int       `json:"no_attachments"`
	Ingested      int       `json:"ingested"`
	Duplicates    int       `json:"duplicates"`
	Failed        int       `json:"failed"`
	MarkFailures  int       `json:"mark_failures"`
}

// Duration is the wall time of the batch.
func (r *BatchReport) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Processor runs batches. Messages and their attachments are handled one at
// a time; a Processor must not run two batches concurrently.
type Processor struct {
	mailbox  mailbox.Mailbox
	ledger   Ledger
	retry    retry.Policy
	seen     *SeenSet
	pipeline *Pipeline
	log      zerolog.Logger
	now      func() time.Time
}

// NewProcessor validates d and builds the attachment pipeline.
func NewProcessor(d Deps) (*Processor, error) {
	switch {
	case d.Mailbox == nil:
		return nil, fmt.Errorf("NewProcessor: mailbox is required")
	case d.Renderer == nil:
		return nil, fmt.Errorf("NewProcessor: renderer is required")
	case d.Ledger == nil:
		return nil, fmt.Errorf("NewProcessor: ledger is required")
	case d.Extractor == nil:
		return nil, fmt.Errorf("NewProcessor: extractor is required")
	case d.Assembler == nil:
		return nil, fmt.Errorf("NewProcessor: assembler is required")
	}

	if d.Seen == nil {
		d.Seen = NewSeenSet()
	}
	if d.Retry.Retryable == nil {
		d.Retry.Retryable = IsTransient
	}

	return &Processor{
		mailbox:  d.Mailbox,
		ledger:   d.Ledger,
		retry:    d.Retry,
		seen:     d.Seen,
		pipeline: NewAttachmentPipeline(d),
		log:      d.Log,
		now:      time.Now,
	}, nil
}

// ProcessBatch handles every newly listed message. Failures of individual
// messages or attachments are logged and counted; only an unreachable ledger,
// a failed listing or cancellation of ctx return an error.
func (p *Processor) ProcessBatch(ctx context.Context) (*BatchReport, error) {
	report := &BatchReport{RunID: uuid.NewString(), Started: p.now()}
	log := p.log.With().Str("run_id", report.RunID).Logger()
	defer func() { report.Finished = p.now() }()

	if _, err := retry.Do(ctx, p.retry, p.ledger.Stats); err != nil {
		return report, fmt.Errorf("ProcessBatch: %w: %w", apperrors.ErrLedgerUnavailable, err)
	}

	ids, err := retry.Do(ctx, p.retry, p.mailbox.ListNewMessages)
	if err != nil {
		return report, fmt.Errorf("ProcessBatch: listing messages: %w", err)
	}
	report.Listed = len(ids)
	log.Info().Int("listed", len(ids)).Msg("Processing batch")

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("ProcessBatch: %w", err)
		}
		p.processMessage(ctx, log.With().Str("message_id", id).Logger(), id, report)
	}

	log.Info().
		Int("ingested", report.Ingested).
		Int("duplicates", report.Duplicates).
		Int("skipped", report.Skipped).
		Int("no_attachments", report.NoAttachments).
		Int("failed", report.Failed).
		Int("mark_failures", report.MarkFailures).
		Msg("Batch finished")

	return report, nil
}

func (p *Processor) processMessage(ctx context.Context, log zerolog.Logger, id string, report *BatchReport) {
	if p.seen.Contains(id) {
		log.Debug().Msg("Message already handled by this process, skipping")
		report.Skipped++
		return
	}

	msg, err := retry.Do(ctx, p.retry, func(ctx context.Context) (*domain.InboundMessage, error) {
		return p.mailbox.GetMessage(ctx, id)
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch message")
		report.Failed++
		return
	}

	selected := attachments.Select(msg.Attachments)
	if len(selected) == 0 {
		log.Info().Err(apperrors.ErrNoEligibleAttachments).Int("attachments", len(msg.Attachments)).Msg("Skipping message")
		report.NoAttachments++
		p.seen.Add(id)
		return
	}

	state, ok := p.processAttachments(ctx, log, msg, selected)
	if !ok {
		report.Failed++
		return
	}

	if state.Result.Inserted {
		report.Ingested++
	} else {
		report.Duplicates++
	}

	if err := retry.Run(ctx, p.retry, func(ctx context.Context) error {
		return p.mailbox.MarkProcessed(ctx, id)
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to mark message processed; the ledger already holds it")
		report.MarkFailures++
	}
	p.seen.Add(id)
}

// processAttachments tries attachments in order and stops after the first
// one that reaches the ledger, whether inserted or already present.
func (p *Processor) processAttachments(ctx context.Context, log zerolog.Logger, msg *domain.InboundMessage, selected []attachments.Selected) (*AttachmentState, bool) {
	for _, sel := range selected {
		alog := log.With().Str("attachment", sel.Filename).Logger()
		alog.Debug().Bool("looks_like_cover_letter", sel.LooksLikeCoverLetter).Msg("Processing attachment")

		state := &AttachmentState{Message: msg, Attachment: sel}
		if err := p.pipeline.Execute(ctx, state); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				alog.Warn().Err(err).Msg("Attachment interrupted")
				return nil, false
			}
			alog.Error().Err(err).Msg("Attachment failed, trying next")
			continue
		}

		alog.Info().
			Bool("inserted", state.Result.Inserted).
			Str("issuer", state.Record.Issuer).
			Str("city", state.Record.City).
			Str("amount", state.Record.Amount).
			Str("archive_uri", state.ArchiveURI).
			Msg("Attachment processed")
		return state, true
	}
	return nil, false
}

// IsTransient reports whether another attempt could succeed. Missing messages
// or attachments, blank documents and cancellation are final.
func IsTransient(err error) bool {
	switch {
	case errors.Is(err, apperrors.ErrMessageNotFound),
		errors.Is(err, apperrors.ErrAttachmentNotFound),
		errors.Is(err, apperrors.ErrEmptyDocument),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}
