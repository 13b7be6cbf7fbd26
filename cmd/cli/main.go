package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/tipenter/internal/app"
	"github.com/dvloznov/tipenter/internal/config"
	"github.com/dvloznov/tipenter/internal/extraction"
	"github.com/dvloznov/tipenter/internal/gcsuploader"
	"github.com/dvloznov/tipenter/internal/imaging"
	infraBQ "github.com/dvloznov/tipenter/internal/infra/bigquery"
	"github.com/dvloznov/tipenter/internal/logger"
	"github.com/dvloznov/tipenter/internal/receipt"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Out: os.Stderr})

	switch os.Args[1] {
	case "scan":
		runScan(cfg, log)
	case "verify":
		runVerify(cfg, log)
	case "enhance":
		runEnhance(cfg, log)
	case "upload":
		runUpload(cfg, log)
	case "export":
		runExport(cfg, log)
	case "delete-batch":
		runDeleteBatch(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("TipEnter CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  scan          Scan receipt images and print the extracted tips")
	fmt.Println("  verify        Check amount + tip against a total")
	fmt.Println("  enhance       Apply the OCR enhancement filters to an image")
	fmt.Println("  upload        Upload a receipt image to GCS")
	fmt.Println("  export        Export a persisted batch as CSV or XLSX")
	fmt.Println("  delete-batch  Delete a batch from BigQuery")
	fmt.Println("  help          Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// imageFiles expands the arguments into image paths; directories contribute
// their png, jpeg and webp files.
func imageFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".png", ".jpg", ".jpeg", ".webp":
				files = append(files, filepath.Join(arg, e.Name()))
			}
		}
	}
	return files, nil
}

func runScan(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	batchID := fs.String("batch-id", "", "Batch ID (generated when empty)")
	sortField := fs.String("sort", "", "Sort by field: file_name, customer_name, date, time, amount, tip, total, check_number")
	order := fs.String("order", "asc", "Sort order: asc or desc")
	unverified := fs.Bool("unverified", false, "Only show receipts that fail verification")
	format := fs.String("format", "table", "Output format: table, json, csv or xlsx")
	out := fs.String("out", "", "Output file (stdout when empty)")
	fs.Parse(os.Args[2:])

	paths, err := imageFiles(fs.Args())
	if err != nil || len(paths) == 0 {
		log.Fatal().Err(err).Msg("Usage: cli scan [options] FILE|DIR...")
	}
	if *batchID == "" {
		*batchID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	services, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scan services")
	}
	defer services.Close()

	images := make([]extraction.Image, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			log.Fatal().Err(err).Str("file", p).Msg("Failed to read image")
		}
		images = append(images, extraction.Image{Name: filepath.Base(p), Data: data})
	}

	log.Info().Str("batch_id", *batchID).Int("images", len(images)).Msg("Scanning receipts")

	records, err := services.Processor.ProcessBatch(ctx, *batchID, images)
	if err != nil {
		log.Fatal().Err(err).Msg("Scan failed")
	}

	if *unverified {
		records = receipt.Unverified(records)
	}
	if *sortField != "" {
		if err := receipt.Sort(records, *sortField, receipt.ParseOrder(*order)); err != nil {
			log.Fatal().Err(err).Msg("Invalid sort field")
		}
	}

	w, closeOut := output(*out, log)
	defer closeOut()

	if err := writeRecords(w, *format, records); err != nil {
		log.Fatal().Err(err).Msg("Failed to write results")
	}
}

func writeRecords(w io.Writer, format string, records []*receipt.Record) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	case "csv":
		return receipt.WriteCSV(w, records, true)
	case "xlsx":
		return receipt.WriteXLSX(w, records, true)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FILE\tCUSTOMER\tTIME\tAMOUNT\tTIP\tTOTAL\tSTATUS")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.FileName, r.CustomerName, r.Time, r.Amount, r.Tip, r.Total, status(r))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func status(r *receipt.Record) string {
	switch {
	case r.Error != "":
		return "error: " + r.Error
	case r.Verification == nil:
		return "-"
	case !r.Verification.IsCorrect:
		return "MISMATCH " + r.Verification.Difference
	case r.Verification.DoubleChecked:
		return "ok (double-checked)"
	default:
		return "ok"
	}
}

func output(path string, log zerolog.Logger) (io.Writer, func()) {
	if path == "" {
		return os.Stdout, func() {}
	}
	f, err := os.Create(path)
	if err != nil {
		log.Fatal().Err(err).Str("file", path).Msg("Failed to create output file")
	}
	return f, func() {
		if err := f.Close(); err != nil {
			log.Error().Err(err).Str("file", path).Msg("Failed to close output file")
		}
	}
}

func runVerify(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	amount := fs.String("amount", "", "Amount before tip, e.g. $50.00")
	tip := fs.String("tip", "$0.00", "Tip")
	total := fs.String("total", "", "Printed total")
	fs.Parse(os.Args[2:])

	if *amount == "" || *total == "" {
		log.Fatal().Msg("Usage: cli verify -amount AMOUNT -tip TIP -total TOTAL")
	}

	res := app.NewVerifier(cfg).Verify(*amount, *tip, *total)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatal().Err(err).Msg("Failed to write result")
	}
	if !res.IsCorrect {
		os.Exit(2)
	}
}

func runEnhance(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("enhance", flag.ExitOnError)
	in := fs.String("in", "", "Input image")
	out := fs.String("out", "", "Output JPEG (defaults to <in>-enhanced.jpg)")
	fs.Parse(os.Args[2:])

	if *in == "" {
		log.Fatal().Msg("Usage: cli enhance -in FILE [-out FILE]")
	}
	if *out == "" {
		*out = strings.TrimSuffix(*in, filepath.Ext(*in)) + "-enhanced.jpg"
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read image")
	}
	enhanced, err := imaging.EnhanceBytes(data, "", cfg.ImageJPEGQuality)
	if err != nil {
		log.Fatal().Err(err).Msg("Enhancement failed")
	}
	if err := os.WriteFile(*out, enhanced, 0o644); err != nil {
		log.Fatal().Err(err).Msg("Failed to write image")
	}

	fmt.Printf("Wrote %s\n", *out)
}

func runUpload(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", cfg.GCSBucket, "GCS bucket name")
	batchID := fs.String("batch-id", "", "Batch the image belongs to")
	filePath := fs.String("file", "", "Path to local image")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" || *batchID == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -batch-id ID -file PATH")
	}

	objectName := gcsuploader.ObjectName(*batchID, filepath.Base(*filePath))

	ctx := logger.WithContext(context.Background(), log)

	log.Info().
		Str("bucket", *bucketName).
		Str("object", objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	if err := gcsuploader.UploadFile(ctx, *bucketName, objectName, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to gs://%s/%s\n", *filePath, *bucketName, objectName)
}

func openRepo(ctx context.Context, cfg config.Config, log zerolog.Logger) *infraBQ.BigQueryReceiptRepository {
	if !cfg.BigQueryEnabled() {
		log.Fatal().Msg("GCP_PROJECT and BQ_DATASET are required")
	}
	repo, err := infraBQ.NewBigQueryReceiptRepository(ctx, cfg.GCPProject, cfg.BQDataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create repository")
	}
	return repo
}

func runExport(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	batchID := fs.String("batch-id", "", "Batch to export")
	format := fs.String("format", "csv", "csv, xlsx, json or table")
	out := fs.String("out", "", "Output file (stdout when empty)")
	fs.Parse(os.Args[2:])

	if *batchID == "" {
		log.Fatal().Msg("Error: --batch-id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := openRepo(ctx, cfg, log)
	defer repo.Close()

	store := infraBQ.NewReadThroughStore(receipt.NewMemoryStore(), repo, app.NewVerifier(cfg))
	records, err := store.Batch(ctx, *batchID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load batch")
	}

	w, closeOut := output(*out, log)
	defer closeOut()

	if err := writeRecords(w, *format, records); err != nil {
		log.Fatal().Err(err).Msg("Export failed")
	}
}

func runDeleteBatch(cfg config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("delete-batch", flag.ExitOnError)
	batchID := fs.String("batch-id", "", "Batch to delete")
	fs.Parse(os.Args[2:])

	if *batchID == "" {
		log.Fatal().Msg("Error: --batch-id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := openRepo(ctx, cfg, log)
	defer repo.Close()

	if err := repo.DeleteBatch(ctx, *batchID); err != nil {
		log.Fatal().Err(err).Msg("Delete failed")
	}

	fmt.Printf("Deleted batch %s\n", *batchID)
}
