// Package sink provides the delivery targets finalized events fan out
// to: the append-only CSV audit log and the bounded in-memory feed store
// backing live display and pagination.
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sclog/sclog-go/pkg/sclog/event"
)

// csvHeader is written once when the audit file is empty.
var csvHeader = []string{
	"id", "timestamp", "kind", "victim", "killer",
	"vehicle", "weapon", "damage_type", "zone", "game_mode", "description",
}

// CSV appends one flat record per finalized event to a delimited audit
// file. Replayed events are skipped: their records were written when the
// content was first live.
type CSV struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

// NewCSV opens (or creates) the audit file at path. A header record is
// written if the file is empty.
func NewCSV(path string) (*CSV, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat audit log: %w", err)
	}

	s := &CSV{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing audit header: %w", err)
		}
		s.w.Flush()
		if err := s.w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("writing audit header: %w", err)
		}
	}
	return s, nil
}

// Deliver appends one record for ev. Field values containing the
// delimiter or line breaks are quoted by the csv writer.
func (s *CSV) Deliver(_ context.Context, ev event.Finalized) error {
	if ev.Replayed {
		return nil
	}

	killer := ""
	if len(ev.Subjects) > 0 {
		killer = ev.Subjects[0]
	}
	record := []string{
		ev.ID,
		ev.Timestamp.UTC().Format(time.RFC3339),
		string(ev.Kind),
		ev.Victim(),
		killer,
		ev.Attr(event.AttrModel),
		ev.Attr(event.AttrWeapon),
		ev.Attr(event.AttrDamageType),
		ev.Attr(event.AttrZone),
		ev.Attr(event.AttrGameMode),
		ev.Description,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Write(record); err != nil {
		return fmt.Errorf("writing audit record: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flushing audit record: %w", err)
	}
	return nil
}

// Close flushes and closes the audit file.
func (s *CSV) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
