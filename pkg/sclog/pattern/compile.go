package pattern

import (
	"fmt"
	"regexp"
	"time"

	"github.com/sclog/sclog-go/pkg/sclog/event"
)

// Reserved capture group names mapped to actor lists instead of
// attributes.
const (
	groupVictim = "victim"
	groupKiller = "killer"
)

// Compiled is one ready-to-use pattern. It is safe for concurrent use.
type Compiled struct {
	id   string
	kind event.Kind
	re   *regexp.Regexp
}

// ID returns the pattern's identifier.
func (c *Compiled) ID() string { return c.id }

// Compile compiles every pattern in pf, in file order.
func Compile(pf *File) ([]*Compiled, error) {
	if pf == nil {
		return nil, fmt.Errorf("pattern file is nil")
	}
	out := make([]*Compiled, 0, len(pf.Patterns))
	for i, p := range pf.Patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, &PatternError{
				Index:   i,
				ID:      p.ID,
				Field:   "regex",
				Message: fmt.Sprintf("invalid regular expression: %v", err),
				Cause:   err,
			}
		}
		out = append(out, &Compiled{id: p.ID, kind: event.Kind(p.Kind), re: re})
	}
	return out, nil
}

// CompileFile loads and compiles a pattern file in one step.
func CompileFile(path string) ([]*Compiled, error) {
	pf, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Compile(pf)
}

// Match matches one log line (timestamp prefix already stripped) and
// builds a partial event from the named capture groups. The "victim"
// and "killer" groups populate the actor lists; every other named group
// becomes an attribute.
func (c *Compiled) Match(line string, ts time.Time) (*event.Partial, bool) {
	m := c.re.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	p := &event.Partial{Kind: c.kind, Timestamp: ts}

	names := c.re.SubexpNames()
	for i := 1; i < len(names) && i < len(m); i++ {
		name, value := names[i], m[i]
		if name == "" || value == "" {
			continue
		}
		switch name {
		case groupVictim:
			p.Objects = append(p.Objects, value)
		case groupKiller:
			p.Subjects = append(p.Subjects, value)
		default:
			if p.Attrs == nil {
				p.Attrs = make(map[string]string)
			}
			p.Attrs[name] = value
		}
	}
	return p, true
}
