package sclog_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sclog/sclog-go/pkg/sclog"
	"github.com/sclog/sclog-go/pkg/sclog/event"
)

const (
	killLine = `<2024-01-15T10:00:01.123Z> [Notice] <Actor Death> CActor::Kill: 'VictimGuy' [201234] in zone 'OOC_Stanton_1a' killed by 'KillerGuy' [205678] using 'behr_rifle_ballistic_01' [Class unknown] with damage type 'Ballistic'` + "\n"

	suicideLine = `<2024-01-15T10:00:05.000Z> [Notice] <Actor Death> CActor::Kill: 'VictimGuy' [201234] in zone 'OOC_Stanton_1a' killed by 'VictimGuy' [201234] using 'unknown' [Class unknown] with damage type 'Suicide'` + "\n"

	wreckLine = `<2024-01-15T10:00:02.000Z> [Notice] <Vehicle Destruction> CVehicle::OnAdvanceDestroyLevel: Vehicle 'AEGS_Gladius_201111' [201111] in zone 'OOC_Stanton_1a' [pos x: 1.0, y: 2.0, z: 3.0] driven by 'PilotGuy' [201234] advanced from destroy level 1 to 2 caused by 'KillerGuy' [205678] with 'Combat'` + "\n"

	corpseLine = `<2024-01-15T10:00:03.000Z> [ActorState] Corpse> [ACTOR STATE][SSCActorStateCVars::LogCorpse] Player 'PilotGuy' <remote client>: IsCorpseEnabled: Yes` + "\n"

	accountLine = `<2024-01-15T10:00:00.000Z> [Notice] <AccountLoginCharacterStatus_Character> Character: createdAt 1700000000 - updatedAt 1700000001 - geid 201234 - accountId 42 - name PlayerOne - state STATE_CURRENT` + "\n"
)

// collector is a Sink retaining everything delivered to it.
type collector struct {
	mu  sync.Mutex
	evs []event.Finalized
}

func (c *collector) Deliver(_ context.Context, ev event.Finalized) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, ev)
	return nil
}

func (c *collector) events() []event.Finalized {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Finalized, len(c.evs))
	copy(out, c.evs)
	return out
}

func nextEvent(t *testing.T, ch <-chan event.Finalized) event.Finalized {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.Finalized{}
	}
}

func TestNewPipeline_InvalidOptions(t *testing.T) {
	_, err := sclog.NewPipeline(
		sclog.WithLogPath("Game.log"),
		sclog.WithCorrelationWindow(-time.Second),
	)
	require.Error(t, err)

	_, err = sclog.NewPipeline(
		sclog.WithLogPath("Game.log"),
		sclog.WithCorrelationWindow(time.Second),
		sclog.WithSweepInterval(2*time.Second),
	)
	require.Error(t, err, "sweep interval beyond the window is useless")
}

func TestNewPipeline_DiscoversLogInDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Game.log"), []byte(""), 0o644))

	p, err := sclog.NewPipeline(sclog.WithLogDir(dir))
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestPipeline_WatchDeliversEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Game.log")
	require.NoError(t, os.WriteFile(path, []byte(killLine), 0o644))

	sink := &collector{}
	p, err := sclog.NewPipeline(
		sclog.WithLogPath(path),
		sclog.WithPollInterval(50*time.Millisecond),
		sclog.WithSinks(sink),
	)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := p.Watch(ctx)
	require.NoError(t, err)

	// Pre-existing content arrives as a silent replay.
	ev := nextEvent(t, events)
	assert.Equal(t, event.CombatKill, ev.Kind)
	assert.True(t, ev.Replayed)
	assert.Equal(t, []string{"KillerGuy"}, ev.Subjects)
	assert.NotEmpty(t, ev.ID)
	assert.NotEmpty(t, ev.Description)

	// Freshly appended lines are live.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(suicideLine)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	ev = nextEvent(t, events)
	assert.Equal(t, event.EnvironmentalDeath, ev.Kind)
	assert.False(t, ev.Replayed)

	// Sinks saw the same events the channel did.
	delivered := sink.events()
	require.Len(t, delivered, 2)
	assert.Equal(t, event.CombatKill, delivered[0].Kind)
	assert.Equal(t, event.EnvironmentalDeath, delivered[1].Kind)
}

func TestPipeline_CorrelatesAcrossLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Game.log")
	require.NoError(t, os.WriteFile(path, []byte(wreckLine+corpseLine), 0o644))

	p, err := sclog.NewPipeline(
		sclog.WithLogPath(path),
		sclog.WithPollInterval(50*time.Millisecond),
	)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := p.Watch(ctx)
	require.NoError(t, err)

	ev := nextEvent(t, events)
	assert.Equal(t, event.CombatKill, ev.Kind)
	assert.Equal(t, []string{"KillerGuy"}, ev.Subjects)
	assert.Equal(t, []string{"PilotGuy"}, ev.Objects)
	assert.Equal(t, "AEGS_Gladius", ev.Attr(event.AttrModel))
}

type fakeEnricher struct{}

func (fakeEnricher) Enrich(_ context.Context, ev *event.Finalized) error {
	if ev.Enrichment == nil {
		ev.Enrichment = make(map[string]string)
	}
	ev.Enrichment["test"] = "enriched"
	return nil
}

func TestPipeline_AppliesEnricher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Game.log")
	require.NoError(t, os.WriteFile(path, []byte(killLine), 0o644))

	p, err := sclog.NewPipeline(
		sclog.WithLogPath(path),
		sclog.WithPollInterval(50*time.Millisecond),
		sclog.WithEnricher(fakeEnricher{}),
	)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := p.Watch(ctx)
	require.NoError(t, err)

	ev := nextEvent(t, events)
	assert.Equal(t, "enriched", ev.Enrichment["test"])
}

func TestPipeline_Lifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Game.log")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	p, err := sclog.NewPipeline(sclog.WithLogPath(path))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, _, err = p.Watch(ctx)
	require.NoError(t, err)

	_, _, err = p.Watch(ctx)
	assert.ErrorIs(t, err, sclog.ErrAlreadyWatching)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	_, _, err = p.Watch(ctx)
	assert.ErrorIs(t, err, sclog.ErrPipelineClosed)
}

func TestPipeline_ChannelsCloseOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Game.log")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	p, err := sclog.NewPipeline(sclog.WithLogPath(path))
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	events, errs, err := p.Watch(ctx)
	require.NoError(t, err)
	cancel()

	deadline := time.After(5 * time.Second)
	for events != nil || errs != nil {
		select {
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		case <-deadline:
			t.Fatal("channels did not close after cancel")
		}
	}
}
