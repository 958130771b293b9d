package ocr

import (
	"context"
	"errors"
	"fmt"
)

// Chain tries each extractor in order; the first success wins.
type Chain struct {
	extractors []Extractor
}

func NewChain(extractors ...Extractor) *Chain {
	return &Chain{extractors: extractors}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Extract(ctx context.Context, in Input) (*Fields, error) {
	var errs []error
	for _, ex := range c.extractors {
		fields, err := ex.Extract(ctx, in)
		if err == nil {
			return fields, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("chain: no extractors configured")
	}
	return nil, errors.Join(errs...)
}
