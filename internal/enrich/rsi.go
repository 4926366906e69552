package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// DefaultProfileBase is the public citizen profile page prefix.
const DefaultProfileBase = "https://robertsspaceindustries.com/citizens/"

// maxProfileBody caps how much of a profile page is read.
const maxProfileBody = 512 * 1024

// Profile pages are plain HTML; these pull the handful of fields we
// need without a full parse.
var (
	displayNameRe = regexp.MustCompile(`<div class="profile[^"]*">[\s\S]*?<strong class="value">([^<]+)</strong>`)
	orgNameRe     = regexp.MustCompile(`<div class="main-org[^"]*">[\s\S]*?<a href="/orgs/[^"]+" class="value[^"]*">([^<]*)</a>`)
	orgSymbolRe   = regexp.MustCompile(`<div class="main-org[^"]*">[\s\S]*?<a href="/orgs/([^"]+)"`)
)

// RSIOption configures an RSIService.
type RSIOption func(*RSIService)

// WithProfileBase overrides the profile page prefix, for tests.
func WithProfileBase(base string) RSIOption {
	return func(s *RSIService) {
		if base != "" {
			s.base = base
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) RSIOption {
	return func(s *RSIService) {
		if c != nil {
			s.client = c
		}
	}
}

// RSIService resolves player handles by fetching their public citizen
// profile page.
type RSIService struct {
	base   string
	client *http.Client
}

// NewRSIService creates an RSIService with sane defaults.
func NewRSIService(opts ...RSIOption) *RSIService {
	s := &RSIService{
		base:   DefaultProfileBase,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Lookup implements ProfileService.
func (s *RSIService) Lookup(ctx context.Context, handle string) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		s.base+url.PathEscape(handle), nil)
	if err != nil {
		return Profile{}, fmt.Errorf("building profile request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("fetching profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("profile page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBody))
	if err != nil {
		return Profile{}, fmt.Errorf("reading profile page: %w", err)
	}

	p := Profile{Handle: handle}
	if m := displayNameRe.FindSubmatch(body); m != nil {
		p.DisplayName = strings.TrimSpace(string(m[1]))
	}
	if m := orgNameRe.FindSubmatch(body); m != nil {
		p.Org = strings.TrimSpace(string(m[1]))
	}
	if m := orgSymbolRe.FindSubmatch(body); m != nil {
		p.OrgSymbol = strings.TrimSpace(string(m[1]))
	}
	if p.DisplayName == "" {
		return Profile{}, fmt.Errorf("no profile data for %q", handle)
	}
	return p, nil
}
