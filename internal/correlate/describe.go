package correlate

import (
	"fmt"

	"github.com/sclog/sclog-go/pkg/sclog/event"
)

// describe derives a single human-readable sentence from the finalized
// attribute set. Missing fields become "Unknown" placeholders; it never
// fails.
func describe(p event.Partial) string {
	victim := orUnknown(p.Victim())

	switch p.Kind {
	case event.CombatKill:
		killer := "Unknown"
		if len(p.Subjects) > 0 {
			killer = p.Subjects[0]
		}
		weapon := orUnknown(p.Attr(event.AttrWeapon))
		damage := orUnknown(p.Attr(event.AttrDamageType))
		if vehicle := p.Attr(event.AttrModel); vehicle != "" {
			return fmt.Sprintf("%s killed %s aboard %s with %s (%s)", killer, victim, vehicle, weapon, damage)
		}
		return fmt.Sprintf("%s killed %s with %s (%s)", killer, victim, weapon, damage)

	case event.EnvironmentalDeath:
		cause := p.Attr(event.AttrDeathType)
		if cause == "" {
			cause = p.Attr(event.AttrDamageType)
		}
		if cause == "Collision" || p.Attr("cause") == "Collision" {
			if vehicle := p.Attr(event.AttrModel); vehicle != "" {
				return fmt.Sprintf("%s died in a collision aboard %s", victim, vehicle)
			}
			return fmt.Sprintf("%s died in a collision", victim)
		}
		return fmt.Sprintf("%s died (%s)", victim, orUnknown(cause))

	case event.VehicleDestruction:
		vehicle := p.Attr(event.AttrModel)
		if vehicle == "" {
			vehicle = orUnknown(p.Attr(event.AttrVehicle))
		}
		causer := "Unknown"
		if len(p.Subjects) > 0 {
			causer = p.Subjects[0]
		}
		return fmt.Sprintf("%s destroyed by %s", vehicle, causer)

	case event.PlayerCorpse:
		if vehicle := p.Attr(event.AttrModel); vehicle != "" {
			return fmt.Sprintf("%s died aboard %s (Unknown cause)", victim, vehicle)
		}
		return fmt.Sprintf("%s died (Unknown cause)", victim)

	case event.Login:
		return fmt.Sprintf("%s logged in", victim)

	default:
		return fmt.Sprintf("%s: %s", p.Kind, victim)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}
