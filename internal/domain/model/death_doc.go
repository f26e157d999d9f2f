package model

import (
	"time"

	"github.com/elastic/go-elasticsearch/v9/typedapi/types"
)

const DeathIndex = "guild_deaths"

// DeathDoc is the archived form of a death event, keyed by its hash.
type DeathDoc struct {
	ID         string    `json:"id"`
	World      string    `json:"world"`
	Guild      string    `json:"guild"`
	PlayerName string    `json:"player_name"`
	Level      int       `json:"level"`
	OccurredAt time.Time `json:"occurred_at"`
	Cause      string    `json:"cause"`
	RawText    string    `json:"raw_text"`
}

func (d *DeathDoc) GetID() string {
	return d.ID
}

func (d *DeathDoc) GetIndex() string {
	return DeathIndex
}

func (d *DeathDoc) GetTypeMapping() *types.TypeMapping {
	return &types.TypeMapping{
		Properties: map[string]types.Property{
			"id":          types.NewKeywordProperty(),
			"world":       types.NewKeywordProperty(),
			"guild":       types.NewKeywordProperty(),
			"player_name": types.NewTextProperty(),
			"level":       types.NewIntegerNumberProperty(),
			"occurred_at": types.NewDateProperty(),
			"cause":       types.NewTextProperty(),
			"raw_text":    types.NewTextProperty(),
		},
	}
}
