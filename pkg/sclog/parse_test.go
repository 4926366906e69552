package sclog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sclog/sclog-go/pkg/sclog"
	"github.com/sclog/sclog-go/pkg/sclog/event"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Game.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFile_CorrelatesAndFlushes(t *testing.T) {
	path := writeLog(t, accountLine+wreckLine+corpseLine+suicideLine)

	events, err := sclog.ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, event.Login, events[0].Kind)
	assert.Equal(t, []string{"PlayerOne"}, events[0].Objects)

	assert.Equal(t, event.CombatKill, events[1].Kind, "destruction and corpse merge")
	assert.Equal(t, []string{"PilotGuy"}, events[1].Objects)

	assert.Equal(t, event.EnvironmentalDeath, events[2].Kind)
}

func TestParseFile_FlushesLonePending(t *testing.T) {
	path := writeLog(t, corpseLine)

	events, err := sclog.ParseFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.PlayerCorpse, events[0].Kind)
}

func TestParseFile_EmptyFile(t *testing.T) {
	path := writeLog(t, "")

	events, err := sclog.ParseFile(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseFile_MissingFile(t *testing.T) {
	_, err := sclog.ParseFile(context.Background(), filepath.Join(t.TempDir(), "nope.log"))
	require.Error(t, err)
}

func TestParseFile_CustomPatterns(t *testing.T) {
	patterns := filepath.Join(t.TempDir(), "patterns.yaml")
	require.NoError(t, os.WriteFile(patterns, []byte(`version: 1
patterns:
  - id: bounty
    kind: combat_kill
    regex: 'Bounty claimed by (?P<killer>\w+) on (?P<victim>\w+)'
`), 0o644))

	path := writeLog(t, "<2024-01-15T10:00:09.000Z> Bounty claimed by KillerGuy on VictimGuy\n")

	events, err := sclog.ParseFile(context.Background(), path,
		sclog.WithPatternFile(patterns))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.CombatKill, events[0].Kind)
	assert.Equal(t, []string{"KillerGuy"}, events[0].Subjects)
	assert.Equal(t, []string{"VictimGuy"}, events[0].Objects)
}

func TestParseFile_StableAcrossRuns(t *testing.T) {
	path := writeLog(t, killLine+wreckLine+corpseLine)

	first, err := sclog.ParseFile(context.Background(), path)
	require.NoError(t, err)
	second, err := sclog.ParseFile(context.Background(), path)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID, "re-parsing identical content must reproduce IDs")
	}
}
