package param

import "strings"

// DeathTarget selects one guild's latest deaths on a world.
type DeathTarget struct {
	// World is the display name stored on events.
	World string `json:"world"`
	// WorldIdentifier is the value the site's world selector takes. Falls
	// back to World when empty.
	WorldIdentifier string `json:"world_identifier"`
	Guild           string `json:"guild"`
}

func (t DeathTarget) IsValid() bool {
	return strings.TrimSpace(t.World) != "" && strings.TrimSpace(t.Guild) != ""
}

// SelectValue is what gets picked in the world selector.
func (t DeathTarget) SelectValue() string {
	if t.WorldIdentifier != "" {
		return t.WorldIdentifier
	}
	return t.World
}

// RosterTarget selects one guild's member page.
type RosterTarget struct {
	Guild string `json:"guild"`
}

func (t RosterTarget) IsValid() bool {
	return strings.TrimSpace(t.Guild) != ""
}
