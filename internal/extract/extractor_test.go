package extract_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sclog/sclog-go/internal/extract"
	"github.com/sclog/sclog-go/internal/linesource"
	"github.com/sclog/sclog-go/pkg/sclog/event"
)

const (
	deathLine = `<2024-01-15T10:00:01.123Z> [Notice] <Actor Death> CActor::Kill: 'VictimGuy' [201234] in zone 'OOC_Stanton_1a' killed by 'KillerGuy' [205678] using 'behr_rifle_ballistic_01' [Class unknown] with damage type 'Ballistic' from direction x: 0.1, y: -0.9, z: 0.0` + "\n"

	suicideLine = `<2024-01-15T10:00:05.000Z> [Notice] <Actor Death> CActor::Kill: 'VictimGuy' [201234] in zone 'OOC_Stanton_1a' killed by 'VictimGuy' [201234] using 'unknown' [Class unknown] with damage type 'Suicide'` + "\n"

	destructionLine = `<2024-01-15T10:00:02.000Z> [Notice] <Vehicle Destruction> CVehicle::OnAdvanceDestroyLevel: Vehicle 'AEGS_Gladius_201111' [201111] in zone 'OOC_Stanton_1a' [pos x: 100.5, y: -200.25, z: 3000.0] driven by 'PilotGuy' [201234] advanced from destroy level 1 to 2 caused by 'KillerGuy' [205678] with 'Combat'` + "\n"

	corpseLine = `<2024-01-15T10:00:03.000Z> [ActorState] Corpse> [ACTOR STATE][SSCActorStateCVars::LogCorpse] Player 'DeadGuy' <remote client>: IsCorpseEnabled: Yes` + "\n"

	loginLine = `<2024-01-15T10:00:00.000Z> [Notice] <AccountLoginCharacterStatus_Character> Character: createdAt 1700000000 - updatedAt 1700000001 - geid 201234 - accountId 42 - name PlayerOne - state STATE_CURRENT` + "\n"

	sessionLine = `<2024-01-15T09:59:00.000Z> [Notice] <Context Establisher Done> establisher="GameContext" runningTime=42.1 map="megamap" gamerules="SC_Default" sessionId="abc-123"` + "\n"

	modeLine = `<2024-01-15T09:58:00.000Z> Loading GameModeRecord='EA_FreeFlight' with EGameModeId::EA_FreeFlight` + "\n"
)

func extractOne(t *testing.T, line string) event.Partial {
	t.Helper()
	x := extract.New()
	out := x.Extract(linesource.Chunk{Data: []byte(line)})
	require.Len(t, out, 1)
	return out[0]
}

func TestExtract_CombatKill(t *testing.T) {
	p := extractOne(t, deathLine)

	assert.Equal(t, event.CombatKill, p.Kind)
	assert.Equal(t, []string{"KillerGuy"}, p.Subjects)
	assert.Equal(t, []string{"VictimGuy"}, p.Objects)
	assert.Equal(t, "behr_rifle_ballistic_01", p.Attr(event.AttrWeapon))
	assert.Equal(t, "Ballistic", p.Attr(event.AttrDamageType))
	assert.Equal(t, "OOC_Stanton_1a", p.Attr(event.AttrZone))
	assert.Equal(t, "0.1", p.Attr(event.AttrPosX))
	assert.Equal(t, "-0.9", p.Attr(event.AttrPosY))

	want := time.Date(2024, 1, 15, 10, 0, 1, 123_000_000, time.UTC)
	assert.True(t, p.Timestamp.Equal(want), "timestamp = %v, want %v", p.Timestamp, want)
}

func TestExtract_EnvironmentalDeath(t *testing.T) {
	p := extractOne(t, suicideLine)

	assert.Equal(t, event.EnvironmentalDeath, p.Kind)
	assert.Empty(t, p.Subjects)
	assert.Equal(t, []string{"VictimGuy"}, p.Objects)
	assert.Equal(t, "Suicide", p.Attr(event.AttrDeathType))
}

func TestExtract_VehicleDestruction(t *testing.T) {
	p := extractOne(t, destructionLine)

	assert.Equal(t, event.VehicleDestruction, p.Kind)
	assert.Equal(t, []string{"KillerGuy"}, p.Subjects)
	assert.Equal(t, []string{"PilotGuy"}, p.Objects)
	assert.Equal(t, "AEGS_Gladius_201111", p.Attr(event.AttrVehicle))
	assert.Equal(t, "AEGS_Gladius", p.Attr(event.AttrModel))
	assert.Equal(t, "100.5", p.Attr(event.AttrPosX))
	assert.Equal(t, "2", p.Attr("destroy_level"))
	assert.Equal(t, "Combat", p.Attr("cause"))
}

func TestExtract_PlayerCorpse(t *testing.T) {
	p := extractOne(t, corpseLine)

	assert.Equal(t, event.PlayerCorpse, p.Kind)
	assert.Equal(t, []string{"DeadGuy"}, p.Objects)
}

func TestExtract_Login(t *testing.T) {
	p := extractOne(t, loginLine)

	assert.Equal(t, event.Login, p.Kind)
	assert.Equal(t, []string{"PlayerOne"}, p.Objects)
	assert.Equal(t, "201234", p.Attr("geid"))
	assert.Equal(t, "STATE_CURRENT", p.Attr("state"))
}

func TestExtract_UnmatchedLinesDropped(t *testing.T) {
	x := extract.New()
	data := "<2024-01-15T10:00:00.000Z> [Notice] something uninteresting\n" +
		"garbage without a timestamp\n" +
		"\n"
	out := x.Extract(linesource.Chunk{Data: []byte(data)})
	assert.Empty(t, out)
}

func TestExtract_ModeContextAttached(t *testing.T) {
	x := extract.New()

	// Context lines update state and produce no events.
	out := x.Extract(linesource.Chunk{Data: []byte(modeLine + sessionLine)})
	assert.Empty(t, out)
	assert.Equal(t, "SC_Default", x.Mode(), "session gamerules override the loaded record")
	assert.Equal(t, "abc-123", x.SessionID())

	out = x.Extract(linesource.Chunk{Data: []byte(deathLine)})
	require.Len(t, out, 1)
	assert.Equal(t, "SC_Default", out[0].Attr(event.AttrGameMode))
	assert.Equal(t, "abc-123", out[0].Attr(event.AttrSessionID))
}

func TestExtract_CarryAcrossChunks(t *testing.T) {
	x := extract.New()

	split := len(deathLine) / 2
	out := x.Extract(linesource.Chunk{Data: []byte(deathLine[:split])})
	assert.Empty(t, out, "incomplete line must wait for its terminator")

	out = x.Extract(linesource.Chunk{Data: []byte(deathLine[split:])})
	require.Len(t, out, 1)
	assert.Equal(t, event.CombatKill, out[0].Kind)
	assert.Equal(t, []string{"VictimGuy"}, out[0].Objects)
}

func TestExtract_PostTruncationDropsCarry(t *testing.T) {
	x := extract.New()

	x.Extract(linesource.Chunk{Data: []byte(deathLine[:20])})
	out := x.Extract(linesource.Chunk{
		Data:           []byte(corpseLine),
		PostTruncation: true,
	})
	require.Len(t, out, 1)
	assert.Equal(t, event.PlayerCorpse, out[0].Kind)
}

func TestExtract_ReplayFlag(t *testing.T) {
	x := extract.New()

	out := x.Extract(linesource.Chunk{Data: []byte(deathLine), Replay: true})
	require.Len(t, out, 1)
	assert.True(t, out[0].Replayed)

	out = x.Extract(linesource.Chunk{Data: []byte(corpseLine)})
	require.Len(t, out, 1)
	assert.False(t, out[0].Replayed)
}

func TestExtract_CRLF(t *testing.T) {
	line := corpseLine[:len(corpseLine)-1] + "\r\n"
	p := extractOne(t, line)
	assert.Equal(t, []string{"DeadGuy"}, p.Objects)
}

type staticMatcher struct {
	needle string
	kind   event.Kind
}

func (m staticMatcher) Match(line string, ts time.Time) (*event.Partial, bool) {
	if line != m.needle {
		return nil, false
	}
	return &event.Partial{Kind: m.kind, Timestamp: ts, Objects: []string{"Custom"}}, true
}

func TestExtract_CustomMatcherAfterBuiltins(t *testing.T) {
	x := extract.New(extract.WithCustomMatchers(staticMatcher{
		needle: "[Notice] custom marker",
		kind:   event.Login,
	}))

	out := x.Extract(linesource.Chunk{Data: []byte(
		"<2024-01-15T10:00:00.000Z> [Notice] custom marker\n" + deathLine,
	)})
	require.Len(t, out, 2)
	assert.Equal(t, event.Login, out[0].Kind)
	assert.Equal(t, []string{"Custom"}, out[0].Objects)
	assert.Equal(t, event.CombatKill, out[1].Kind)
}

func TestExtract_Determinism(t *testing.T) {
	run := func() []event.Partial {
		x := extract.New()
		return x.Extract(linesource.Chunk{Data: []byte(deathLine + destructionLine + corpseLine)})
	}
	first, second := run(), run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Kind, second[i].Kind)
		assert.Equal(t, first[i].Attrs, second[i].Attrs)
	}
}
