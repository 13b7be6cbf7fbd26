package extraction

import (
	"context"
	"time"

	"github.com/dvloznov/tipenter/internal/logger"
)

// FallbackExtractor calls Primary and falls back to the simulator on any
// error, including Primary running past Timeout, so callers always get a
// record. Only cancellation of the caller's own context is returned.
type FallbackExtractor struct {
	Primary  Extractor
	Fallback Extractor
	// Timeout bounds the Primary call. Zero means no limit.
	Timeout time.Duration
}

// NewFallbackExtractor wraps primary with the simulator. A nil primary
// means every call is simulated.
func NewFallbackExtractor(primary Extractor) *FallbackExtractor {
	return &FallbackExtractor{Primary: primary, Fallback: Simulator{}}
}

func (f *FallbackExtractor) Extract(ctx context.Context, img Image) (*Result, error) {
	fallback := f.Fallback
	if fallback == nil {
		fallback = Simulator{}
	}
	if f.Primary == nil {
		return fallback.Extract(ctx, img)
	}

	pctx := ctx
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	res, err := f.Primary.Extract(pctx, img)
	if err == nil && res != nil && res.Record != nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	log := logger.FromContext(ctx)
	log.Warn().
		Err(err).
		Str("file_name", img.Name).
		Msg("extraction failed, using simulated response")

	res, fbErr := fallback.Extract(ctx, img)
	if fbErr != nil {
		return nil, fbErr
	}
	res.Record.Simulated = true
	return res, nil
}
