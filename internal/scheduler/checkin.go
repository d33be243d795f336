package scheduler

import (
	"context"
	"time"

	"github.com/kris-hamade/project-b-r0/internal/models"
	"github.com/kris-hamade/project-b-r0/internal/storage"
	"go.uber.org/zap"
)

const defaultCheckInTimezone = "America/New_York"

// Generator is the small-talk generation surface the scheduled jobs use.
type Generator interface {
	GenerateCheckIn(ctx context.Context, persona *models.Persona, recentMessages []string) (string, error)
	GenerateWellbeingNudge(ctx context.Context, persona *models.Persona) (string, error)
}

// ChannelCheckIns posts a conversation-starter in channels that were active
// recently but have gone quiet today. An hourly tick evaluates each enabled
// channel against its configured local check-in hour.
type ChannelCheckIns struct {
	store     storage.Storage
	sched     *Scheduler
	messenger Messenger
	generator Generator
	logger    *zap.Logger
	now       func() time.Time
}

func NewChannelCheckIns(store storage.Storage, sched *Scheduler, messenger Messenger, generator Generator, logger *zap.Logger) *ChannelCheckIns {
	return &ChannelCheckIns{
		store:     store,
		sched:     sched,
		messenger: messenger,
		generator: generator,
		logger:    logger,
		now:       time.Now,
	}
}

func (c *ChannelCheckIns) Register() error {
	return c.sched.AddCron("channel-check-ins", "0 * * * *", func() {
		c.Tick(context.Background())
	})
}

// Tick evaluates every enabled channel. Each channel is independent; one
// failure never blocks the rest.
func (c *ChannelCheckIns) Tick(ctx context.Context) {
	cfgs, err := c.store.EnabledCheckIns(ctx)
	if err != nil {
		c.logger.Error("Failed to list check-in channels", zap.Error(err))
		return
	}
	for _, cfg := range cfgs {
		c.evaluate(ctx, cfg)
	}
}

func (c *ChannelCheckIns) evaluate(ctx context.Context, cfg *models.ChannelCheckIn) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		c.logger.Warn("Unknown check-in timezone, using default",
			zap.String("timezone", cfg.Timezone),
			zap.String("channel_id", cfg.ChannelID))
		loc, _ = time.LoadLocation(defaultCheckInTimezone)
	}
	local := c.now().In(loc)

	target, err := time.Parse("15:04", cfg.CheckInTime)
	if err != nil {
		c.logger.Warn("Invalid check-in time",
			zap.String("check_in_time", cfg.CheckInTime),
			zap.String("channel_id", cfg.ChannelID))
		return
	}
	if local.Hour() != target.Hour() {
		return
	}

	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if !cfg.LastCheckIn.IsZero() && !cfg.LastCheckIn.In(loc).Before(dayStart) {
		return
	}

	msgs, err := c.messenger.ChannelMessages(cfg.ChannelID, 100)
	if err != nil {
		c.logger.Error("Failed to fetch channel activity",
			zap.Error(err),
			zap.String("channel_id", cfg.ChannelID))
		return
	}

	cutoff := dayStart.AddDate(0, 0, -cfg.InactivityDays)
	pastCount, todayCount := 0, 0
	var recent []string
	for _, m := range msgs {
		if m.AuthorBot {
			continue
		}
		at := m.CreatedAt.In(loc)
		switch {
		case !at.Before(dayStart):
			todayCount++
		case !at.Before(cutoff):
			pastCount++
			if len(recent) < 10 {
				recent = append(recent, m.Author+": "+m.Content)
			}
		}
	}
	// Only channels that were active over the window but are quiet today
	// get a nudge.
	if todayCount > 0 || pastCount < cfg.MinMessagesPerDay {
		return
	}

	persona, err := c.store.GetPersona(ctx, storage.DefaultPersonality)
	if err != nil {
		c.logger.Error("Failed to load persona for check-in", zap.Error(err))
	}
	text, err := c.generator.GenerateCheckIn(ctx, persona, recent)
	if err != nil {
		c.logger.Warn("Falling back to static check-in message", zap.Error(err))
		text = "It's been quiet in here today! What's everyone up to?"
	}

	if err := c.messenger.SendMessage(cfg.ChannelID, text); err != nil {
		c.logger.Error("Failed to send channel check-in",
			zap.Error(err),
			zap.String("channel_id", cfg.ChannelID))
		return
	}
	if err := c.store.StampLastCheckIn(ctx, cfg.ChannelID, c.now()); err != nil {
		c.logger.Error("Failed to stamp channel check-in",
			zap.Error(err),
			zap.String("channel_id", cfg.ChannelID))
	}
}
