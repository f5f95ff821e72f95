package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/mail-ledger/internal/app"
	"github.com/dvloznov/mail-ledger/internal/archive"
	"github.com/dvloznov/mail-ledger/internal/config"
	"github.com/dvloznov/mail-ledger/internal/domain"
	"github.com/dvloznov/mail-ledger/internal/heuristics"
	"github.com/dvloznov/mail-ledger/internal/ledger"
	"github.com/dvloznov/mail-ledger/internal/logger"
	"github.com/dvloznov/mail-ledger/internal/runs"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "process":
		runProcess()
	case "stats":
		runStats()
	case "backup":
		runBackup()
	case "export":
		runExport()
	case "extract":
		runExtract()
	case "config":
		runConfig()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Mail Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  process   Run one batch against the mailbox")
	fmt.Println("  stats     Show the ledger row count")
	fmt.Println("  backup    Snapshot the ledger (optionally upload it)")
	fmt.Println("  export    Write the ledger as CSV")
	fmt.Println("  extract   Preview extraction for a local or gs:// PDF")
	fmt.Println("  config    Print the effective configuration")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nEvery command accepts -config PATH (or CONFIG_PATH).")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// newFlagSet registers the shared -config flag.
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config (or set CONFIG_PATH)")
	return fs, configPath
}

func load(configPath string) (*config.Config, zerolog.Logger) {
	cfg, err := config.Load(config.Path(configPath))
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	return cfg, app.NewLogger(cfg)
}

func openApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) *app.App {
	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	return application
}

func runProcess() {
	fs, configPath := newFlagSet("process")
	timeout := fs.Duration("timeout", 30*time.Minute, "Abort the batch after this long")
	fs.Parse(os.Args[2:])

	cfg, log := load(*configPath)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	application := openApp(ctx, cfg, log)
	defer application.Close()

	runner, err := application.Runner(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build processor")
	}

	run, err := runner.Run(ctx, runs.TriggerCLI)
	printJSON(run)
	if err != nil {
		log.Fatal().Err(err).Msg("Batch failed")
	}
}

func runStats() {
	fs, configPath := newFlagSet("stats")
	fs.Parse(os.Args[2:])

	cfg, log := load(*configPath)
	ctx := logger.WithContext(context.Background(), log)

	application := openApp(ctx, cfg, log)
	defer application.Close()

	stats, err := application.Ledger.Stats(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read ledger stats")
	}

	fmt.Printf("Storage: %s\n", stats.Storage)
	fmt.Printf("Rows:    %d\n", stats.Rows)
}

func runBackup() {
	fs, configPath := newFlagSet("backup")
	upload := fs.Bool("upload", false, "Upload the snapshot file to the archive bucket")
	fs.Parse(os.Args[2:])

	cfg, log := load(*configPath)
	ctx := logger.WithContext(context.Background(), log)

	application := openApp(ctx, cfg, log)
	defer application.Close()

	if *upload && application.Archive == nil {
		log.Fatal().Msg("Error: -upload needs archive.bucket to be configured")
	}

	location, err := application.Ledger.Backup(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Backup failed")
	}
	fmt.Printf("Backup written to %s\n", location)

	if *upload {
		uri, err := application.Archive.UploadFile(ctx, location)
		if err != nil {
			log.Fatal().Err(err).Msg("Upload failed")
		}
		fmt.Printf("Uploaded to %s\n", uri)
	}
}

func runExport() {
	fs, configPath := newFlagSet("export")
	out := fs.String("out", "", "Output CSV file (default stdout)")
	fs.Parse(os.Args[2:])

	cfg, log := load(*configPath)
	ctx := logger.WithContext(context.Background(), log)

	application := openApp(ctx, cfg, log)
	defer application.Close()

	rows, err := application.Ledger.Rows(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read ledger rows")
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create output file")
		}
		defer f.Close()
		w = f
	}

	if err := ledger.Export(w, rows); err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
	if *out != "" {
		fmt.Fprintf(os.Stderr, "Exported %d rows to %s\n", len(rows), *out)
	}
}

func runExtract() {
	fs, configPath := newFlagSet("extract")
	file := fs.String("file", "", "Local PDF path or gs:// URI")
	subject := fs.String("subject", "", "Subject line to mine for amount and city")
	sender := fs.String("sender", "", "From header used when no issuer is found")
	renderer := fs.String("renderer", "", "Override pdf.renderer (local, gemini, auto)")
	fs.Parse(os.Args[2:])

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: cli extract -file PATH|gs://BUCKET/OBJECT [-subject S] [-sender S]")
		os.Exit(1)
	}

	cfg, log := load(*configPath)
	if *renderer != "" {
		cfg.PDF.Renderer = *renderer
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	data, err := readDocument(ctx, *file)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read document")
	}

	r, err := app.NewRenderer(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build renderer")
	}

	// Blank documents still produce a record, like in a batch.
	text, err := r.Render(ctx, data)
	if err != nil {
		log.Warn().Err(err).Msg("No text recovered")
	}

	asm, err := app.NewAssembler(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid link template")
	}

	msg := domain.InboundMessage{
		MessageID:  "preview",
		Subject:    *subject,
		Sender:     *sender,
		ReceivedAt: time.Now(),
	}
	rec := asm.Assemble(msg, heuristics.ExtractIssuer(text), heuristics.ExtractSubjectFields(*subject))

	fmt.Println("=== Extraction Preview ===")
	fmt.Printf("Renderer: %s\n", r.Name())
	fmt.Printf("Issuer:   %s\n", rec.Issuer)
	fmt.Printf("City:     %s\n", rec.City)
	fmt.Printf("Amount:   %s\n", rec.Amount)
	fmt.Printf("Row:      %s\n", strings.Join(ledger.NewRow(rec).Visible(), " | "))
	fmt.Println("\n=== First lines ===")
	for i, line := range strings.SplitN(text, "\n", 16) {
		if i == 15 {
			break
		}
		fmt.Println(line)
	}
}

func readDocument(ctx context.Context, file string) ([]byte, error) {
	if !archive.IsURI(file) {
		return os.ReadFile(file)
	}

	bucket, _, err := archive.ParseURI(file)
	if err != nil {
		return nil, err
	}
	arc, err := archive.NewGCSArchive(ctx, archive.GCSConfig{Bucket: bucket})
	if err != nil {
		return nil, err
	}
	defer arc.Close()

	return arc.Fetch(ctx, file)
}

func runConfig() {
	fs, configPath := newFlagSet("config")
	fs.Parse(os.Args[2:])

	cfg, log := load(*configPath)
	if err := config.Print(cfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to print config")
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encoding output: %v\n", err)
		return
	}
	fmt.Println(string(data))
}
