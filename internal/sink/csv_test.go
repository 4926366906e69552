package sink_test

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sclog/sclog-go/internal/sink"
	"github.com/sclog/sclog-go/pkg/sclog/event"
)

func testEvent(id, victim, killer string) event.Finalized {
	return event.Finalized{
		ID:        id,
		Kind:      event.CombatKill,
		Timestamp: time.Date(2024, 1, 15, 10, 0, 1, 0, time.UTC),
		Subjects:  []string{killer},
		Objects:   []string{victim},
		Attrs: map[string]string{
			event.AttrWeapon:     "behr_rifle_ballistic_01",
			event.AttrDamageType: "Ballistic",
			event.AttrZone:       "OOC_Stanton_1a",
		},
		Description: killer + " killed " + victim,
	}
}

func readRecords(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestCSV_HeaderWrittenOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kills.csv")

	s, err := sink.NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, s.Deliver(context.Background(), testEvent("id-1", "VictimGuy", "KillerGuy")))
	require.NoError(t, s.Close())

	// Reopening an existing file must not duplicate the header.
	s, err = sink.NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, s.Deliver(context.Background(), testEvent("id-2", "OtherGuy", "KillerGuy")))
	require.NoError(t, s.Close())

	records := readRecords(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, "id-1", records[1][0])
	assert.Equal(t, "id-2", records[2][0])
}

func TestCSV_RecordFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kills.csv")

	s, err := sink.NewCSV(path)
	require.NoError(t, err)
	require.NoError(t, s.Deliver(context.Background(), testEvent("id-1", "VictimGuy", "KillerGuy")))
	require.NoError(t, s.Close())

	records := readRecords(t, path)
	require.Len(t, records, 2)
	rec := records[1]
	assert.Equal(t, "id-1", rec[0])
	assert.Equal(t, "2024-01-15T10:00:01Z", rec[1])
	assert.Equal(t, "combat_kill", rec[2])
	assert.Equal(t, "VictimGuy", rec[3])
	assert.Equal(t, "KillerGuy", rec[4])
	assert.Equal(t, "behr_rifle_ballistic_01", rec[6])
	assert.Equal(t, "Ballistic", rec[7])
	assert.Equal(t, "OOC_Stanton_1a", rec[8])
}

func TestCSV_EscapesSpecialCharacters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kills.csv")

	s, err := sink.NewCSV(path)
	require.NoError(t, err)

	ev := testEvent("id-1", `Victim, "quoted"`, "Killer\nNewline")
	ev.Description = "line one\nline two, with comma"
	require.NoError(t, s.Deliver(context.Background(), ev))
	require.NoError(t, s.Close())

	// The csv reader round-trips the values exactly when quoting worked.
	records := readRecords(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, `Victim, "quoted"`, records[1][3])
	assert.Equal(t, "Killer\nNewline", records[1][4])
	assert.Equal(t, "line one\nline two, with comma", records[1][10])
}

func TestCSV_SkipsReplayedEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kills.csv")

	s, err := sink.NewCSV(path)
	require.NoError(t, err)

	ev := testEvent("id-1", "VictimGuy", "KillerGuy")
	ev.Replayed = true
	require.NoError(t, s.Deliver(context.Background(), ev))
	require.NoError(t, s.Close())

	records := readRecords(t, path)
	assert.Len(t, records, 1, "only the header should exist")
}
