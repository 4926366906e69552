package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/sclog/sclog-go/pkg/sclog/event"
)

// ValidFormats lists all valid output formats.
var ValidFormats = map[string]bool{
	"jsonl":  true,
	"pretty": true,
}

// OutputEvent writes an event in the specified format to the writer.
func OutputEvent(format string, ev event.Finalized, out io.Writer) error {
	switch format {
	case "jsonl":
		return OutputJSON(ev, out)
	case "pretty":
		return OutputPretty(ev, out)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// OutputJSON writes an event as JSON Lines format.
func OutputJSON(ev event.Finalized, out io.Writer) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// OutputPretty writes an event in human-readable format.
func OutputPretty(ev event.Finalized, out io.Writer) error {
	ts := ev.Timestamp.Format("15:04:05")

	var marker string
	switch ev.Kind {
	case event.CombatKill:
		marker = "x"
	case event.EnvironmentalDeath, event.PlayerCorpse:
		marker = "-"
	case event.VehicleDestruction:
		marker = "*"
	case event.Login:
		marker = "+"
	default:
		marker = "?"
	}

	_, err := fmt.Fprintf(out, "[%s] %s %s\n", ts, marker, ev.Description)
	return err
}
