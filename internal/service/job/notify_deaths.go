package job

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/entity"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/message"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultNotifyLimit      = 6
	DefaultNotifyBatchSize  = 10
	DefaultNotifyBatchDelay = time.Second
)

type NotifyConfig struct {
	Limit      int
	BatchSize  int
	BatchDelay time.Duration
	// Location is the zone death times are shown in.
	Location *time.Location
}

type NotifyJob interface {
	Execute(ctx context.Context) error
}

type notifyJob struct {
	repos   Repos
	sender  message.Sender
	cfg     NotifyConfig
	limiter *rate.Limiter
}

func InitNotifyJob(repos Repos, sender message.Sender, cfg NotifyConfig) NotifyJob {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultNotifyLimit
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultNotifyBatchSize
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = DefaultNotifyBatchDelay
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &notifyJob{
		repos:   repos,
		sender:  sender,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.BatchDelay), 1),
	}
}

// Execute sends pending deaths to every chat, each chat getting only the
// deaths of its own guilds.
func (j *notifyJob) Execute(ctx context.Context) error {
	guilds, err := activeGuilds(ctx, j.repos.Guilds, func(g entity.HuntedGuild) bool { return g.NotifyDeaths })
	if err != nil {
		return err
	}
	chats, byChat := groupByChat(guilds)
	for _, chatID := range chats {
		if err := j.notifyChat(ctx, chatID, byChat[chatID]); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			zap.L().Error("job: notify chat failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
	return nil
}

func (j *notifyJob) notifyChat(ctx context.Context, chatID string, guilds []entity.HuntedGuild) error {
	names := make([]string, 0, len(guilds))
	for _, g := range guilds {
		names = append(names, g.GuildName)
	}
	deaths, err := j.repos.Deaths.FindUnnotified(ctx, j.cfg.Limit, names...)
	if err != nil {
		return eris.Wrap(err, "job: find unnotified deaths")
	}
	if len(deaths) == 0 {
		zap.L().Debug("job: no pending deaths", zap.String("chat_id", chatID))
		return nil
	}

	var sent []string
	var sendErr error
	for start := 0; start < len(deaths); start += j.cfg.BatchSize {
		batch := deaths[start:min(start+j.cfg.BatchSize, len(deaths))]
		if sendErr = j.limiter.Wait(ctx); sendErr != nil {
			break
		}
		text := message.FormatDeathBatch(batch, j.cfg.Location)
		if sendErr = j.sender.SendMessage(ctx, chatID, message.Content{Text: text}); sendErr != nil {
			sendErr = eris.Wrap(sendErr, "job: send deaths")
			break
		}
		for _, d := range batch {
			if d.ID != "" {
				sent = append(sent, d.ID)
			}
		}
	}

	// Whatever went out is marked, even when a later batch failed.
	if len(sent) > 0 {
		if err := j.repos.Deaths.MarkAsNotified(context.WithoutCancel(ctx), sent); err != nil {
			return eris.Wrap(err, "job: mark deaths notified")
		}
	}
	zap.L().Info("job: deaths notified", zap.String("chat_id", chatID), zap.Int("count", len(sent)))
	return sendErr
}
