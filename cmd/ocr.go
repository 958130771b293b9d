package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/frahmantamala/expenseflow/internal/ocr"
)

var ocrEngine string

var ocrCmd = &cobra.Command{
	Use:   "ocr",
	Short: "Receipt extraction tools",
}

var ocrScanCmd = &cobra.Command{
	Use:   "scan <file>...",
	Short: "Extract receipt fields from local files",
	Long:  `Run the configured OCR engine over each file and print the extracted fields as JSON.`,
	Args:  cobra.MinimumNArgs(1),
	RunE:  runOCRScan,
}

type scanResult struct {
	File        string      `json:"file"`
	ContentType string      `json:"content_type"`
	Fields      *ocr.Fields `json:"fields,omitempty"`
	Error       string      `json:"error,omitempty"`
}

func init() {
	ocrScanCmd.Flags().StringVar(&ocrEngine, "engine", "", "override ocr.engine (mock, ollama, tesseract, chain)")
	ocrCmd.AddCommand(ocrScanCmd)
}

func runOCRScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if ocrEngine != "" {
		cfg.OCR.Engine = ocrEngine
		if err := cfg.OCR.Validate(); err != nil {
			return err
		}
	}

	extractor, err := ocr.NewFromConfig(cfg.OCR, cfg.Expense.DefaultCurrency)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]scanResult, len(args))
	var g errgroup.Group
	g.SetLimit(cfg.OCR.MaxWorkers)
	for i, path := range args {
		g.Go(func() error {
			results[i] = scanFile(ctx, extractor, path, cfg.Expense.DefaultCurrency, cfg.OCR.Timeout)
			return nil
		})
	}
	_ = g.Wait()

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func scanFile(ctx context.Context, extractor ocr.Extractor, path, currency string, timeout time.Duration) scanResult {
	result := scanResult{File: path}

	data, err := os.ReadFile(path)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.ContentType = mimetype.Detect(data).String()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	fields, err := ocr.Run(ctx, extractor, ocr.Input{
		Filename:    filepath.Base(path),
		ContentType: result.ContentType,
		Data:        data,
	}, currency)
	if err != nil {
		result.Error = fmt.Sprintf("%s: %v", extractor.Name(), err)
	}
	result.Fields = &fields
	return result
}
