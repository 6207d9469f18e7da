package suggest

import (
	"context"
	"log/slog"
)

// Fallback tries Primary and, when it fails, answers from Secondary. The
// secondary's output records why the primary was skipped.
type Fallback struct {
	Primary   Provider
	Secondary Provider
	Logger    *slog.Logger
}

func NewFallback(primary, secondary Provider, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{Primary: primary, Secondary: secondary, Logger: logger}
}

func (f *Fallback) Suggest(ctx context.Context, in Input) (*Output, error) {
	if f.Primary != nil {
		out, err := f.Primary.Suggest(ctx, in)
		if err == nil {
			return out, nil
		}
		f.Logger.WarnContext(ctx, "primary suggestion provider failed, falling back", "error", err)
		out, ferr := f.Secondary.Suggest(ctx, in)
		if ferr != nil {
			return nil, ferr
		}
		out.FallbackReason = err.Error()
		return out, nil
	}
	return f.Secondary.Suggest(ctx, in)
}
