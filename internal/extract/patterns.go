package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sclog/sclog-go/pkg/sclog/event"
)

// Log lines open with an ISO-8601 timestamp in angle brackets:
// "<2024-01-15T10:00:01.123Z> [Notice] ...".
var timestampPattern = regexp.MustCompile(`^<(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z)> ?`)

// parseTimestamp extracts the leading timestamp and returns the remainder
// of the line.
func parseTimestamp(line string) (time.Time, string, bool) {
	m := timestampPattern.FindStringSubmatch(line)
	if m == nil {
		return time.Time{}, "", false
	}
	ts, err := time.Parse(time.RFC3339Nano, m[1])
	if err != nil {
		return time.Time{}, "", false
	}
	return ts, line[len(m[0]):], true
}

// tableEntry pairs a compiled pattern with its extraction function.
type tableEntry struct {
	name  string
	re    *regexp.Regexp
	build func(m []string, ts time.Time) *event.Partial
}

func (e tableEntry) match(line string, ts time.Time) (*event.Partial, bool) {
	m := e.re.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return e.build(m, ts), true
}

// builtinTable is tried in order; the first match wins, so the most
// specific patterns come first.
var builtinTable = []tableEntry{
	{name: "actor_death", re: actorDeathPattern, build: buildActorDeath},
	{name: "vehicle_destruction", re: vehicleDestructionPattern, build: buildVehicleDestruction},
	{name: "player_corpse", re: corpsePattern, build: buildCorpse},
	{name: "login", re: loginPattern, build: buildLogin},
	{name: "session_start", re: sessionStartPattern, build: buildSessionStart},
	{name: "mode_change", re: modeChangePattern, build: buildModeChange},
}

var (
	// <Actor Death> CActor::Kill: 'Victim' [201234] in zone 'Zone'
	// killed by 'Killer' [205678] using 'behr_rifle_ballistic_01' [Class unknown]
	// with damage type 'Ballistic' from direction x: 0.1, y: -0.9, z: 0.0
	actorDeathPattern = regexp.MustCompile(
		`\[Notice\] <Actor Death> CActor::Kill: '([^']+)' \[\d+\] in zone '([^']*)' ` +
			`killed by '([^']*)' \[\d*\] using '([^']*)' \[Class ([^\]]*)\] ` +
			`with damage type '([^']*)'` +
			`(?: from direction x: ([-\d.]+), y: ([-\d.]+), z: ([-\d.]+))?`,
	)

	// <Vehicle Destruction> CVehicle::OnAdvanceDestroyLevel: Vehicle
	// 'AEGS_Gladius_201111' [201111] in zone 'Zone' [pos x: 1.0, y: 2.0, z: 3.0]
	// driven by 'Pilot' [201234] advanced from destroy level 1 to 2
	// caused by 'Causer' [205678] with 'Combat'
	vehicleDestructionPattern = regexp.MustCompile(
		`\[Notice\] <Vehicle Destruction> CVehicle::OnAdvanceDestroyLevel: ` +
			`Vehicle '([^']+)' \[(\d+)\] in zone '([^']*)' ` +
			`\[pos x: ([-\d.]+), y: ([-\d.]+), z: ([-\d.]+)[^\]]*\] ` +
			`driven by '([^']*)' \[\d*\] advanced from destroy level (\d+) to (\d+) ` +
			`caused by '([^']*)' \[\d*\] with '([^']*)'`,
	)

	// [ActorState] Corpse> [ACTOR STATE][SSCActorStateCVars::LogCorpse]
	// Player 'Name' <remote client>: IsCorpseEnabled: Yes
	corpsePattern = regexp.MustCompile(
		`\[ActorState\] Corpse> \[ACTOR STATE\]\[SSCActorStateCVars::LogCorpse\] ` +
			`Player '([^']+)'`,
	)

	// <AccountLoginCharacterStatus_Character> Character: createdAt ... -
	// geid 201234 - accountId 42 - name Handle - state STATE_CURRENT
	loginPattern = regexp.MustCompile(
		`\[Notice\] <AccountLoginCharacterStatus_Character> Character: ` +
			`createdAt \d+ - updatedAt \d+ - geid (\d+) - accountId (\d+) - ` +
			`name ([\w.-]+) - state (\w+)`,
	)

	// <Context Establisher Done> establisher="GameContext" runningTime=42.1
	// map="megamap" gamerules="SC_Default" sessionId="abc-123"
	sessionStartPattern = regexp.MustCompile(
		`\[Notice\] <Context Establisher Done> establisher="\w+" ` +
			`runningTime=[\d.]+ map="([^"]*)" gamerules="([^"]*)" sessionId="([^"]*)"`,
	)

	// Loading GameModeRecord='SC_Default' with EGameModeId::SC_Default
	modeChangePattern = regexp.MustCompile(
		`Loading GameModeRecord='([^']+)' with EGameModeId::\w+`,
	)
)

// environmentalDamage lists damage types that describe deaths without a
// hostile actor.
var environmentalDamage = map[string]bool{
	"Suicide":      true,
	"Crash":        true,
	"Collision":    true,
	"SelfDestruct": true,
	"Environment":  true,
}

func buildActorDeath(m []string, ts time.Time) *event.Partial {
	victim, zone, killer := m[1], m[2], m[3]
	weapon, weaponClass, damage := m[4], m[5], m[6]

	attrs := make(map[string]string, 8)
	putString(attrs, event.AttrZone, zone)
	putString(attrs, event.AttrWeapon, weapon)
	putString(attrs, event.AttrWeaponID, weaponClass)
	putString(attrs, event.AttrDamageType, damage)
	putFloat(attrs, event.AttrPosX, m[7])
	putFloat(attrs, event.AttrPosY, m[8])
	putFloat(attrs, event.AttrPosZ, m[9])

	kind := event.CombatKill
	if killer == "" || killer == "unknown" || killer == victim || environmentalDamage[damage] {
		kind = event.EnvironmentalDeath
		putString(attrs, event.AttrDeathType, damage)
	}

	p := &event.Partial{
		Kind:      kind,
		Timestamp: ts,
		Objects:   []string{victim},
		Attrs:     attrs,
	}
	if kind == event.CombatKill {
		p.Subjects = []string{killer}
	}
	return p
}

func buildVehicleDestruction(m []string, ts time.Time) *event.Partial {
	vehicle, vehicleID, zone := m[1], m[2], m[3]
	pilot, causer, cause := m[7], m[10], m[11]

	attrs := make(map[string]string, 10)
	putString(attrs, event.AttrVehicle, vehicle)
	putString(attrs, event.AttrVehicleID, vehicleID)
	putString(attrs, event.AttrModel, vehicleModel(vehicle))
	putString(attrs, event.AttrZone, zone)
	putFloat(attrs, event.AttrPosX, m[4])
	putFloat(attrs, event.AttrPosY, m[5])
	putFloat(attrs, event.AttrPosZ, m[6])
	putInt(attrs, "destroy_level", m[9])
	putString(attrs, "cause", cause)

	p := &event.Partial{
		Kind:      event.VehicleDestruction,
		Timestamp: ts,
		Attrs:     attrs,
	}
	if pilot != "" && pilot != "unknown" {
		p.Objects = []string{pilot}
	}
	if causer != "" && causer != "unknown" {
		p.Subjects = []string{causer}
	}
	return p
}

func buildCorpse(m []string, ts time.Time) *event.Partial {
	return &event.Partial{
		Kind:      event.PlayerCorpse,
		Timestamp: ts,
		Objects:   []string{m[1]},
	}
}

func buildLogin(m []string, ts time.Time) *event.Partial {
	attrs := map[string]string{
		"geid":       m[1],
		"account_id": m[2],
		"state":      m[4],
	}
	return &event.Partial{
		Kind:      event.Login,
		Timestamp: ts,
		Objects:   []string{m[3]},
		Attrs:     attrs,
	}
}

func buildSessionStart(m []string, ts time.Time) *event.Partial {
	attrs := make(map[string]string, 3)
	putString(attrs, "map", m[1])
	putString(attrs, event.AttrGameMode, m[2])
	putString(attrs, event.AttrSessionID, m[3])
	return &event.Partial{Kind: event.SessionStart, Timestamp: ts, Attrs: attrs}
}

func buildModeChange(m []string, ts time.Time) *event.Partial {
	return &event.Partial{
		Kind:      event.ModeChange,
		Timestamp: ts,
		Attrs:     map[string]string{event.AttrGameMode: m[1]},
	}
}

// vehicleModel strips the trailing entity id from a vehicle entity name:
// "AEGS_Gladius_201111" -> "AEGS_Gladius".
func vehicleModel(name string) string {
	idx := strings.LastIndexByte(name, '_')
	if idx <= 0 {
		return name
	}
	if _, err := strconv.ParseUint(name[idx+1:], 10, 64); err != nil {
		return name
	}
	return name[:idx]
}

func putString(attrs map[string]string, key, value string) {
	if value != "" {
		attrs[key] = value
	}
}

// putFloat stores a coordinate only when it parses; zero is a valid
// coordinate, so absence must stay absent rather than default to zero.
func putFloat(attrs map[string]string, key, value string) {
	if value == "" {
		return
	}
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return
	}
	attrs[key] = value
}

func putInt(attrs map[string]string, key, value string) {
	if value == "" {
		return
	}
	if _, err := strconv.ParseInt(value, 10, 64); err != nil {
		return
	}
	attrs[key] = value
}
