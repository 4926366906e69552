// Package pattern provides user-defined log pattern matching. Patterns
// are declared in YAML files with regular expressions and are appended
// after the built-in table, so they can pick up lines the built-in
// patterns do not recognize without overriding them.
package pattern

// File represents the structure of a YAML pattern file.
//
// Example:
//
//	version: 1
//	patterns:
//	  - id: turret_kill
//	    kind: combat_kill
//	    regex: '<Turret Kill> turret of ''(?P<killer>[^'']+)'' destroyed ''(?P<victim>[^'']+)'''
type File struct {
	// Version is the pattern file format version. Only version 1 exists.
	Version int `yaml:"version"`

	// Patterns is the list of pattern definitions, tried in file order.
	Patterns []Pattern `yaml:"patterns"`
}

// Pattern is a single log pattern definition. The regex is matched
// against the line after its timestamp prefix; named capture groups
// become event attributes, except for the reserved groups "victim" and
// "killer" which populate the event's actor lists.
type Pattern struct {
	// ID uniquely identifies the pattern within its file.
	ID string `yaml:"id"`

	// Kind must be one of the known event kinds; custom patterns cannot
	// invent kinds.
	Kind string `yaml:"kind"`

	// Regex is the regular expression to match against log lines.
	Regex string `yaml:"regex"`
}
