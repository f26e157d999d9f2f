package job

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/repository"
	"go.uber.org/zap"
)

const DefaultDuplicateThreshold = 2

type IngestResult struct {
	Fetched    int
	Duplicates int
	Saved      []entity.DeathEvent
	// StoppedEarly is set when the duplicate threshold cut the walk short.
	StoppedEarly bool
}

// IngestDeaths stores the events not seen before. events must be newest
// first: once threshold known events in a row are met the rest is assumed
// known, so a new event listed below such a run is missed.
func IngestDeaths(ctx context.Context, repo repository.DeathRepository, events []entity.DeathEvent, threshold int) (IngestResult, error) {
	if threshold <= 0 {
		threshold = DefaultDuplicateThreshold
	}
	res := IngestResult{Fetched: len(events)}
	consecutive := 0

	for i := range events {
		e := events[i]
		exists, err := repo.ExistsByHash(ctx, e.Hash)
		if err != nil {
			return res, eris.Wrapf(err, "job: check death %s", e.Hash)
		}
		if exists {
			res.Duplicates++
			consecutive++
			if consecutive >= threshold {
				res.StoppedEarly = i < len(events)-1
				zap.L().Debug("job: deaths already synced", zap.String("guild", e.Guild), zap.Int("position", i))
				break
			}
			continue
		}

		consecutive = 0
		if err := repo.Save(ctx, &e); err != nil {
			return res, eris.Wrapf(err, "job: save death of %s", e.PlayerName)
		}
		zap.L().Info("job: new death",
			zap.String("player", e.PlayerName),
			zap.Int("level", e.Level),
			zap.String("guild", e.Guild))
		res.Saved = append(res.Saved, e)
	}
	return res, nil
}
