package sclog

import (
	"context"
	"fmt"
	"io"

	"github.com/sclog/sclog-go/internal/correlate"
	"github.com/sclog/sclog-go/internal/extract"
	"github.com/sclog/sclog-go/internal/linesource"
	"github.com/sclog/sclog-go/internal/safefile"
	"github.com/sclog/sclog-go/pkg/sclog/event"
	"github.com/sclog/sclog-go/pkg/sclog/pattern"
)

// ParseFile parses an existing log file in one pass and returns its
// finalized events, pending correlations flushed. Useful for analyzing
// past sessions without tailing. Enrichment and sinks are not applied.
func ParseFile(ctx context.Context, path string, opts ...Option) ([]event.Finalized, error) {
	cfg := applyOptions(opts)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	f, _, err := safefile.OpenRegular(path)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading log file: %w", err)
	}

	var extractOpts []extract.Option
	if cfg.patternFile != "" {
		compiled, err := pattern.CompileFile(cfg.patternFile)
		if err != nil {
			return nil, fmt.Errorf("loading pattern file: %w", err)
		}
		matchers := make([]extract.Matcher, len(compiled))
		for i, c := range compiled {
			matchers[i] = c
		}
		extractOpts = append(extractOpts, extract.WithCustomMatchers(matchers...))
	}

	extractor := extract.New(extractOpts...)
	engine := correlate.New(cfg.window)

	var out []event.Finalized
	for _, partial := range extractor.Extract(linesource.Chunk{Data: data}) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, engine.Observe(partial)...)
	}
	out = append(out, engine.Flush()...)
	return out, nil
}
