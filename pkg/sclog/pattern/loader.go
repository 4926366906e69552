package pattern

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/sclog/sclog-go/internal/safefile"
	"github.com/sclog/sclog-go/pkg/sclog/event"
)

const (
	// MaxFileSize caps pattern files at 1MB; larger files are rejected
	// before parsing.
	MaxFileSize = 1 * 1024 * 1024

	// MaxRegexLength caps individual patterns to keep pathological
	// expressions out of the hot extraction path.
	MaxRegexLength = 512

	// MaxPatternCount caps the number of patterns per file.
	MaxPatternCount = 1000

	// SupportedVersion is the only pattern file format version.
	SupportedVersion = 1
)

// Load reads and validates a pattern file. Non-regular files (FIFOs,
// devices, symlinks) are rejected, and reads are size-limited.
func Load(path string) (*File, error) {
	f, info, err := safefile.OpenRegular(path)
	if err != nil {
		return nil, fmt.Errorf("opening pattern file: %w", err)
	}
	defer f.Close()

	if info.Size() == 0 {
		return nil, errors.New("pattern file is empty")
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("pattern file too large: %d bytes (max %d)", info.Size(), MaxFileSize)
	}

	// Read one byte past the limit so a file growing under us is caught.
	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading pattern file: %w", err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("pattern file too large: %d bytes (max %d)", len(data), MaxFileSize)
	}

	return LoadBytes(data)
}

// LoadBytes parses and validates a pattern file from memory.
func LoadBytes(data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, errors.New("pattern file is empty")
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("pattern file too large: %d bytes (max %d)", len(data), MaxFileSize)
	}

	var pf File
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := pf.Validate(); err != nil {
		return nil, err
	}
	return &pf, nil
}

// Validate checks the file's schema: version, required fields, unique
// IDs, known kinds, and regex length limits. Regex compilation happens
// in Compile, not here.
func (pf *File) Validate() error {
	if pf.Version != SupportedVersion {
		return &ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (only version %d is supported)", pf.Version, SupportedVersion),
		}
	}
	if len(pf.Patterns) == 0 {
		return &ValidationError{
			Field:   "patterns",
			Message: "at least one pattern is required",
		}
	}
	if len(pf.Patterns) > MaxPatternCount {
		return &ValidationError{
			Field:   "patterns",
			Message: fmt.Sprintf("too many patterns (%d), maximum allowed is %d", len(pf.Patterns), MaxPatternCount),
		}
	}

	seenIDs := make(map[string]int, len(pf.Patterns))
	for i, p := range pf.Patterns {
		if p.ID == "" {
			return &PatternError{Index: i, Field: "id", Message: "id is required"}
		}
		if p.Kind == "" {
			return &PatternError{Index: i, ID: p.ID, Field: "kind", Message: "kind is required"}
		}
		if !event.Kind(p.Kind).Valid() {
			return &PatternError{
				Index: i, ID: p.ID, Field: "kind",
				Message: fmt.Sprintf("unknown kind %q", p.Kind),
			}
		}
		if p.Regex == "" {
			return &PatternError{Index: i, ID: p.ID, Field: "regex", Message: "regex is required"}
		}
		if len(p.Regex) > MaxRegexLength {
			return &PatternError{
				Index: i, ID: p.ID, Field: "regex",
				Message: fmt.Sprintf("pattern too long: %d bytes (max %d)", len(p.Regex), MaxRegexLength),
			}
		}
		if prev, exists := seenIDs[p.ID]; exists {
			return &PatternError{
				Index: i, ID: p.ID, Field: "id",
				Message: fmt.Sprintf("duplicate id (previously defined at pattern[%d])", prev),
			}
		}
		seenIDs[p.ID] = i
	}
	return nil
}
