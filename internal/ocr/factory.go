package ocr

import (
	"fmt"
	"net/http"

	"github.com/frahmantamala/expenseflow/internal"
)

// NewFromConfig builds the extractor selected by ocr.engine.
func NewFromConfig(cfg internal.OCRConfig, defaultCurrency string) (Extractor, error) {
	switch cfg.Engine {
	case "", SourceMock:
		return NewMockExtractor(defaultCurrency), nil
	case SourceOllama:
		return newOllama(cfg), nil
	case SourceTesseract:
		return NewTesseractExtractor(cfg.Tesseract.Binary, cfg.Tesseract.Language), nil
	case "chain":
		return NewChain(
			newOllama(cfg),
			NewTesseractExtractor(cfg.Tesseract.Binary, cfg.Tesseract.Language),
		), nil
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", cfg.Engine)
	}
}

func newOllama(cfg internal.OCRConfig) *OllamaExtractor {
	return NewOllamaExtractor(cfg.Ollama.URL, cfg.Ollama.Model, &http.Client{Timeout: cfg.Timeout})
}
