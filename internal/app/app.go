// Package app wires configuration into the ledger, mailbox, renderers and
// processor shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/mail-ledger/internal/apperrors"
	"github.com/dvloznov/mail-ledger/internal/archive"
	"github.com/dvloznov/mail-ledger/internal/assembler"
	"github.com/dvloznov/mail-ledger/internal/config"
	"github.com/dvloznov/mail-ledger/internal/heuristics"
	infraBQ "github.com/dvloznov/mail-ledger/internal/infra/bigquery"
	"github.com/dvloznov/mail-ledger/internal/infra/sqlite"
	"github.com/dvloznov/mail-ledger/internal/ledger"
	"github.com/dvloznov/mail-ledger/internal/logger"
	"github.com/dvloznov/mail-ledger/internal/mailbox"
	"github.com/dvloznov/mail-ledger/internal/pdftext"
	"github.com/dvloznov/mail-ledger/internal/pipeline"
	"github.com/dvloznov/mail-ledger/internal/retry"
	"github.com/dvloznov/mail-ledger/internal/runs"
	"github.com/dvloznov/mail-ledger/internal/runs/inmemory"
	"github.com/rs/zerolog"
)

// App holds the long-lived clients. The ledger is opened eagerly; the mailbox
// and renderers are built by Processor so that ledger-only commands need no
// mail credentials.
type App struct {
	Config  *config.Config
	Log     zerolog.Logger
	Ledger  *ledger.Writer
	Archive *archive.GCSArchive // nil without a configured bucket
	Runs    runs.Store

	seen *pipeline.SeenSet
}

// New opens the ledger and, when configured, the attachment archive.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("New: %w: %w", apperrors.ErrLedgerUnavailable, err)
	}

	a := &App{
		Config: cfg,
		Log:    log,
		Ledger: ledger.NewWriter(store, log.With().Str("component", "ledger").Logger()),
		Runs:   inmemory.NewStore(cfg.App.RunHistory),
		seen:   pipeline.NewSeenSet(),
	}

	if bq, ok := store.(*infraBQ.LedgerStore); ok {
		rs, err := bq.RunStore(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Run history table unavailable, keeping runs in memory")
		} else {
			a.Runs = rs
		}
	}

	if cfg.Archive.Bucket != "" {
		arc, err := archive.NewGCSArchive(ctx, archive.GCSConfig{Bucket: cfg.Archive.Bucket, Prefix: cfg.Archive.Prefix})
		if err != nil {
			a.Ledger.Close()
			return nil, fmt.Errorf("New: %w", err)
		}
		a.Archive = arc
	}

	log.Info().
		Str("ledger", store.Name()).
		Str("backend", cfg.Ledger.Backend).
		Bool("archive", a.Archive != nil).
		Msg("Application initialized")

	return a, nil
}

// OpenStore opens the configured ledger backend.
func OpenStore(ctx context.Context, cfg *config.Config) (ledger.Store, error) {
	switch cfg.Ledger.Backend {
	case config.BackendSQLite:
		s, err := sqlite.NewLedgerStore(sqlite.Config{
			Path:      cfg.Ledger.SQLite.Path,
			BackupDir: cfg.Ledger.SQLite.BackupDir,
		})
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return s, nil
	case config.BackendBigQuery:
		s, err := infraBQ.NewLedgerStore(ctx, infraBQ.Config{
			ProjectID: cfg.Ledger.BigQuery.ProjectID,
			Dataset:   cfg.Ledger.BigQuery.Dataset,
			Table:     cfg.Ledger.BigQuery.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("OpenStore: unknown ledger backend %q", cfg.Ledger.Backend)
	}
}

// RetryPolicy converts the retry config section. Retries are logged at warn.
func (a *App) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: a.Config.Retry.MaxAttempts,
		Delay:       a.Config.Retry.Delay,
		OnRetry: func(attempt int, err error) {
			a.Log.Warn().Err(err).Int("attempt", attempt).Msg("Retrying")
		},
		Retryable: pipeline.IsTransient,
	}
}

// Renderer builds the configured renderer.
func (a *App) Renderer(ctx context.Context) (pdftext.Renderer, error) {
	return NewRenderer(ctx, a.Config, a.Log)
}

// NewRenderer builds the renderer selected by cfg.PDF. The result is always a
// chain so that blank output is reported as apperrors.ErrEmptyDocument.
func NewRenderer(ctx context.Context, cfg *config.Config, log zerolog.Logger) (pdftext.Renderer, error) {
	log = log.With().Str("component", "pdftext").Logger()

	var renderers []pdftext.Renderer
	switch cfg.PDF.Renderer {
	case config.RendererLocal:
		renderers = append(renderers, pdftext.LocalRenderer{})
	case config.RendererGemini, config.RendererAuto:
		if cfg.PDF.Renderer == config.RendererAuto {
			renderers = append(renderers, pdftext.LocalRenderer{})
		}
		g, err := pdftext.NewGeminiRenderer(ctx, pdftext.GeminiConfig{
			Project:  cfg.PDF.Gemini.Project,
			Location: cfg.PDF.Gemini.Location,
			Model:    cfg.PDF.Gemini.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("NewRenderer: %w", err)
		}
		renderers = append(renderers, g)
	default:
		return nil, fmt.Errorf("NewRenderer: unknown renderer %q", cfg.PDF.Renderer)
	}

	return pdftext.NewChainRenderer(log, renderers...), nil
}

// Extractor compiles the default heuristic tables.
func (a *App) Extractor() (*heuristics.Extractor, error) {
	return heuristics.New(heuristics.DefaultPatterns())
}

// Assembler builds the record assembler with the configured link template.
func (a *App) Assembler() (*assembler.Assembler, error) {
	return NewAssembler(a.Config)
}

// NewAssembler builds the record assembler from the gmail link template and
// the app timezone.
func NewAssembler(cfg *config.Config) (*assembler.Assembler, error) {
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, fmt.Errorf("NewAssembler: %w", err)
	}
	return assembler.New(assembler.Config{LinkTemplate: cfg.Gmail.LinkTemplate, Location: loc})
}

// NewLogger builds the process logger from the log config section.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return logger.NewWithOptions(logger.Options{
		Level:      cfg.Log.Level,
		FormatJSON: cfg.Log.FormatJSON,
		Rotation: logger.Rotation{
			File:       cfg.Log.Rotation.File,
			MaxSize:    cfg.Log.Rotation.MaxSize,
			MaxBackups: cfg.Log.Rotation.MaxBackups,
			MaxAge:     cfg.Log.Rotation.MaxAge,
			Compress:   cfg.Log.Rotation.Compress,
		},
	})
}

// Mailbox opens the Gmail mailbox.
func (a *App) Mailbox(ctx context.Context) (mailbox.Mailbox, error) {
	return mailbox.NewGmailMailbox(ctx, mailbox.GmailConfig{
		CredentialsFile: a.Config.Gmail.CredentialsFile,
		TokenFile:       a.Config.Gmail.TokenFile,
		User:            a.Config.Gmail.User,
		Query:           a.Config.Gmail.Query,
		ProcessedLabel:  a.Config.Gmail.ProcessedLabel,
		MaxResults:      a.Config.Gmail.MaxResults,
	}, a.Log)
}

// Processor builds a batch processor. Processors built from the same App
// share its seen set.
func (a *App) Processor(ctx context.Context) (*pipeline.Processor, error) {
	mb, err := a.Mailbox(ctx)
	if err != nil {
		return nil, fmt.Errorf("Processor: %w", err)
	}
	renderer, err := a.Renderer(ctx)
	if err != nil {
		return nil, fmt.Errorf("Processor: %w", err)
	}
	extractor, err := a.Extractor()
	if err != nil {
		return nil, fmt.Errorf("Processor: %w", err)
	}
	asm, err := a.Assembler()
	if err != nil {
		return nil, fmt.Errorf("Processor: %w", err)
	}

	deps := pipeline.Deps{
		Mailbox:   mb,
		Renderer:  renderer,
		Ledger:    a.Ledger,
		Extractor: extractor,
		Assembler: asm,
		Retry:     a.RetryPolicy(),
		Seen:      a.seen,
		Log:       a.Log.With().Str("component", "pipeline").Logger(),
	}
	// Leave the interface nil rather than holding a typed nil pointer.
	if a.Archive != nil {
		deps.Archiver = a.Archive
	}

	return pipeline.NewProcessor(deps)
}

// Runner builds a processor and wraps it with run recording.
func (a *App) Runner(ctx context.Context) (*runs.Runner, error) {
	p, err := a.Processor(ctx)
	if err != nil {
		return nil, err
	}
	return runs.NewRunner(p, a.Runs, a.Log.With().Str("component", "runs").Logger()), nil
}

// Close releases the ledger and archive clients.
func (a *App) Close() error {
	var errs []error
	if err := a.Ledger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing ledger: %w", err))
	}
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing archive: %w", err))
		}
	}
	return errors.Join(errs...)
}
