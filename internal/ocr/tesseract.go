package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// TesseractExtractor shells out to the tesseract binary and derives the
// fields from the recognized text.
type TesseractExtractor struct {
	binary   string
	language string
}

func NewTesseractExtractor(binary, language string) *TesseractExtractor {
	if language == "" {
		language = "eng"
	}
	return &TesseractExtractor{binary: binary, language: language}
}

func (t *TesseractExtractor) Name() string { return SourceTesseract }

func (t *TesseractExtractor) Extract(ctx context.Context, in Input) (*Fields, error) {
	if !in.IsImage() {
		return nil, fmt.Errorf("tesseract: %w: %s", ErrUnsupportedContent, in.ContentType)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, "stdin", "stdout", "-l", t.language, "tsv")
	cmd.Stdin = bytes.NewReader(in.Data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("tesseract: %w", ctx.Err())
		}
		return nil, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text, confidence := parseTSV(stdout.String())
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("tesseract: %w", ErrNoText)
	}

	fields := ParseReceiptText(text)
	fields.Confidence = confidence
	fields.Source = SourceTesseract
	return &fields, nil
}

type lineKey struct {
	block, par, line int
}

// parseTSV rebuilds text lines from tesseract's TSV output and returns
// the mean word confidence scaled to [0,1].
func parseTSV(tsv string) (string, float64) {
	var (
		order   []lineKey
		words   = make(map[lineKey][]string)
		confSum float64
		confN   int
	)

	scanner := bufio.NewScanner(strings.NewReader(tsv))
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}

		cols := strings.Split(scanner.Text(), "\t")
		if len(cols) < 12 {
			continue
		}
		word := strings.TrimSpace(cols[11])
		if word == "" {
			continue
		}

		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			continue
		}
		block, _ := strconv.Atoi(cols[2])
		par, _ := strconv.Atoi(cols[3])
		line, _ := strconv.Atoi(cols[4])

		key := lineKey{block, par, line}
		if _, seen := words[key]; !seen {
			order = append(order, key)
		}
		words[key] = append(words[key], word)
		confSum += conf
		confN++
	}

	lines := make([]string, 0, len(order))
	for _, key := range order {
		lines = append(lines, strings.Join(words[key], " "))
	}

	var confidence float64
	if confN > 0 {
		confidence = confSum / float64(confN) / 100
	}
	return strings.Join(lines, "\n"), confidence
}
