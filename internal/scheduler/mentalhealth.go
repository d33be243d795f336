package scheduler

import (
	"context"
	"time"

	"github.com/kris-hamade/project-b-r0/internal/models"
	"github.com/kris-hamade/project-b-r0/internal/storage"
	"go.uber.org/zap"
)

// proactiveCooldown is the minimum gap between proactive wellbeing DMs to
// the same user.
const proactiveCooldown = 12 * time.Hour

// WellbeingCheckIns periodically DMs users whose follow-up flag is still
// set. Unlike the reactive DM sent right after a flagged message, the
// proactive sweep requires the user's explicit opt-in.
type WellbeingCheckIns struct {
	store     storage.Storage
	sched     *Scheduler
	messenger Messenger
	generator Generator
	logger    *zap.Logger
	now       func() time.Time
}

func NewWellbeingCheckIns(store storage.Storage, sched *Scheduler, messenger Messenger, generator Generator, logger *zap.Logger) *WellbeingCheckIns {
	return &WellbeingCheckIns{
		store:     store,
		sched:     sched,
		messenger: messenger,
		generator: generator,
		logger:    logger,
		now:       time.Now,
	}
}

func (w *WellbeingCheckIns) Register() error {
	return w.sched.AddCron("wellbeing-check-ins", "0 */6 * * *", func() {
		w.Tick(context.Background())
	})
}

// Tick sweeps the flagged users. A user flagged in several channels is
// contacted at most once per sweep.
func (w *WellbeingCheckIns) Tick(ctx context.Context) {
	flagged, err := w.store.FlaggedConfigs(ctx)
	if err != nil {
		w.logger.Error("Failed to list flagged users", zap.Error(err))
		return
	}

	byUser := make(map[string]*models.ChatConfig)
	for _, cfg := range flagged {
		if existing, ok := byUser[cfg.Username]; !ok || (existing.UserID == "" && cfg.UserID != "") {
			byUser[cfg.Username] = cfg
		}
	}

	for username, cfg := range byUser {
		w.checkUser(ctx, username, cfg)
	}
}

func (w *WellbeingCheckIns) checkUser(ctx context.Context, username string, cfg *models.ChatConfig) {
	if cfg.UserID == "" {
		w.logger.Debug("No user id for flagged user, skipping", zap.String("username", username))
		return
	}

	settings, err := w.store.GetMentalHealthSettings(ctx, cfg.UserID)
	if err != nil {
		w.logger.Error("Failed to load wellbeing settings",
			zap.Error(err),
			zap.String("username", username))
		return
	}
	if settings == nil || !settings.Enabled {
		return
	}

	last, err := w.store.LastCheckInAttempt(ctx, username)
	if err != nil {
		w.logger.Error("Failed to read last check-in attempt",
			zap.Error(err),
			zap.String("username", username))
		return
	}
	if !last.IsZero() && w.now().Sub(last) < proactiveCooldown {
		return
	}

	persona, err := w.store.GetPersona(ctx, storage.DefaultPersonality)
	if err != nil {
		w.logger.Error("Failed to load persona for wellbeing sweep", zap.Error(err))
	}
	text, err := w.generator.GenerateWellbeingNudge(ctx, persona)
	if err != nil {
		w.logger.Warn("Falling back to static wellbeing message", zap.Error(err))
		text = "Hey, just checking in. How have you been feeling? I'm here if you want to talk."
	}

	if err := w.messenger.SendDM(cfg.UserID, text); err != nil {
		w.logger.Error("Failed to send wellbeing DM",
			zap.Error(err),
			zap.String("username", username))
		return
	}
	if err := w.store.StampCheckInAttempt(ctx, username, w.now()); err != nil {
		w.logger.Error("Failed to stamp wellbeing attempt",
			zap.Error(err),
			zap.String("username", username))
	}
}
