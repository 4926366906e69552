// Package event defines the combat log event model shared by all pipeline
// stages: partial events extracted from single log lines, and finalized
// events produced by correlation.
package event

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of a log event. The set is closed; custom
// patterns must map onto one of these kinds.
type Kind string

const (
	Login              Kind = "login"
	SessionStart       Kind = "session_start"
	ModeChange         Kind = "mode_change"
	VehicleDestruction Kind = "vehicle_destruction"
	PlayerCorpse       Kind = "player_corpse"
	CombatKill         Kind = "combat_kill"
	EnvironmentalDeath Kind = "environmental_death"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case Login, SessionStart, ModeChange, VehicleDestruction,
		PlayerCorpse, CombatKill, EnvironmentalDeath:
		return true
	}
	return false
}

// Well-known attribute keys.
const (
	AttrWeapon     = "weapon"
	AttrWeaponID   = "weapon_class"
	AttrDamageType = "damage_type"
	AttrZone       = "zone"
	AttrVehicle    = "vehicle"
	AttrVehicleID  = "vehicle_id"
	AttrModel      = "vehicle_model"
	AttrGameMode   = "game_mode"
	AttrSessionID  = "session_id"
	AttrDeathType  = "death_type"
	AttrPosX       = "pos_x"
	AttrPosY       = "pos_y"
	AttrPosZ       = "pos_z"
)

// Partial is a single occurrence extracted from exactly one log line,
// before correlation. Immutable after creation.
type Partial struct {
	Kind      Kind
	Timestamp time.Time

	// Subjects are the acting actors (e.g. the killer). Objects are the
	// actors acted upon (e.g. the victim). Names are raw handles from the
	// log, unresolved.
	Subjects []string
	Objects  []string

	Attrs map[string]string

	// Replayed marks events extracted during the initial silent replay
	// of pre-existing file content.
	Replayed bool
}

// Victim returns the first object actor, or "".
func (p Partial) Victim() string {
	if len(p.Objects) == 0 {
		return ""
	}
	return p.Objects[0]
}

// Attr returns the named attribute, or "".
func (p Partial) Attr(key string) string {
	return p.Attrs[key]
}

// Finalized is the correlated, externally visible unit of output. It is
// mutated exactly once after creation, by enrichment, and immutable
// thereafter.
type Finalized struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	Subjects []string          `json:"subjects,omitempty"`
	Objects  []string          `json:"objects,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`

	Description string `json:"description"`

	// Enrichment holds profile data filled in asynchronously, keyed
	// "<handle>.<field>". Never affects identity.
	Enrichment map[string]string `json:"enrichment,omitempty"`

	// Category is supplied by the remote service for already-seen events,
	// never invented locally.
	Category string `json:"category,omitempty"`

	Replayed bool `json:"-"`
}

// Victim returns the first object actor, or "".
func (f Finalized) Victim() string {
	if len(f.Objects) == 0 {
		return ""
	}
	return f.Objects[0]
}

// Attr returns the named attribute, or "".
func (f Finalized) Attr(key string) string {
	return f.Attrs[key]
}

// idNamespace is the fixed UUIDv5 namespace for event identifiers.
var idNamespace = uuid.MustParse("5c1a9f6e-0d24-4b8a-9c31-7e2f8d4a6b0c")

// NewID derives the stable identifier for an event from its core fields.
// The same log content always yields the same ID, so re-extraction after a
// cursor reset or process restart is de-duplicable downstream.
func NewID(kind Kind, ts time.Time, subjects, objects []string, attrs map[string]string) string {
	var b strings.Builder
	b.WriteString(string(kind))
	b.WriteByte('|')
	b.WriteString(ts.UTC().Format(time.RFC3339Nano))
	for _, s := range subjects {
		b.WriteByte('|')
		b.WriteString(s)
	}
	b.WriteByte('#')
	for _, o := range objects {
		b.WriteByte('|')
		b.WriteString(o)
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(attrs[k])
	}
	return uuid.NewSHA1(idNamespace, []byte(b.String())).String()
}
