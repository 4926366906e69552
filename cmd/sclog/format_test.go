package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sclog/sclog-go/pkg/sclog/event"
)

func sampleEvent() event.Finalized {
	return event.Finalized{
		ID:          "id-1",
		Kind:        event.CombatKill,
		Timestamp:   time.Date(2024, 1, 15, 12, 30, 45, 0, time.UTC),
		Subjects:    []string{"KillerGuy"},
		Objects:     []string{"VictimGuy"},
		Description: "KillerGuy killed VictimGuy with behr_rifle_ballistic_01 (Ballistic)",
	}
}

func TestOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := OutputJSON(sampleEvent(), &buf); err != nil {
		t.Fatalf("OutputJSON() error = %v", err)
	}

	var decoded event.Finalized
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("OutputJSON() produced invalid JSON: %v", err)
	}
	if decoded.ID != "id-1" {
		t.Errorf("decoded.ID = %q, want %q", decoded.ID, "id-1")
	}
	if decoded.Kind != event.CombatKill {
		t.Errorf("decoded.Kind = %q, want %q", decoded.Kind, event.CombatKill)
	}
}

func TestOutputPretty(t *testing.T) {
	tests := []struct {
		name     string
		kind     event.Kind
		contains string
	}{
		{"combat_kill", event.CombatKill, "x KillerGuy killed VictimGuy"},
		{"environmental_death", event.EnvironmentalDeath, "- KillerGuy killed VictimGuy"},
		{"vehicle_destruction", event.VehicleDestruction, "* KillerGuy killed VictimGuy"},
		{"login", event.Login, "+ KillerGuy killed VictimGuy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := sampleEvent()
			ev.Kind = tt.kind

			var buf bytes.Buffer
			if err := OutputPretty(ev, &buf); err != nil {
				t.Fatalf("OutputPretty() error = %v", err)
			}
			if !strings.Contains(buf.String(), tt.contains) {
				t.Errorf("OutputPretty() = %q, want to contain %q", buf.String(), tt.contains)
			}
			if !strings.Contains(buf.String(), "[12:30:45]") {
				t.Errorf("OutputPretty() = %q, missing timestamp", buf.String())
			}
		})
	}
}

func TestOutputEvent_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := OutputEvent("xml", sampleEvent(), &buf); err == nil {
		t.Fatal("OutputEvent() expected error for unknown format")
	}
}

func TestValidFormats(t *testing.T) {
	tests := []struct {
		format string
		valid  bool
	}{
		{"jsonl", true},
		{"pretty", true},
		{"json", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidFormats[tt.format]; got != tt.valid {
			t.Errorf("ValidFormats[%q] = %v, want %v", tt.format, got, tt.valid)
		}
	}
}
