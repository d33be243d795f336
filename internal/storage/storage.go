package storage

import (
	"context"
	"time"

	"github.com/kris-hamade/project-b-r0/internal/models"
)

// ConfigStore manages per-(username, channel) chat configuration,
// including the embedded mental-health follow-up flag.
type ConfigStore interface {
	// GetChatConfig returns the config for the pair, creating a default
	// record on first access.
	GetChatConfig(ctx context.Context, username, channelID string) (*models.ChatConfig, error)
	SaveChatConfig(ctx context.Context, cfg *models.ChatConfig) error

	// SetMentalHealthFlag marks the user as needing a wellbeing follow-up
	// in the given channel. Idempotent: an already-set flag keeps its
	// original set-at timestamp.
	SetMentalHealthFlag(ctx context.Context, username, userID, channelID string) error
	// ClearMentalHealthFlag clears the flag. An empty channelID clears it
	// across all of the user's channels. Reports whether anything changed.
	ClearMentalHealthFlag(ctx context.Context, username, channelID string) (bool, error)
	// FlaggedConfigs returns every config with an active flag.
	FlaggedConfigs(ctx context.Context) ([]*models.ChatConfig, error)
	// StampCheckInAttempt records a DM attempt time on all of the user's
	// flagged configs.
	StampCheckInAttempt(ctx context.Context, username string, at time.Time) error
	// LastCheckInAttempt returns the most recent DM attempt across the
	// user's flagged configs, or the zero time.
	LastCheckInAttempt(ctx context.Context, username string) (time.Time, error)
}

// ResponseModeStore manages the per-channel respond-without-mention toggle.
type ResponseModeStore interface {
	// GetResponseMode returns the channel setting, creating the default
	// (mention required) on first access.
	GetResponseMode(ctx context.Context, channelID string) (*models.ChannelResponseMode, error)
	SetResponseMode(ctx context.Context, channelID string, respondWithoutMention bool) error
}

// HistoryStore is the append-only chat log.
type HistoryStore interface {
	AppendHistory(ctx context.Context, entry *models.HistoryEntry) error
	// History returns up to n turns for the (requestor, persona, channel)
	// conversation in chronological order, with wellbeing support language
	// filtered out before truncation.
	History(ctx context.Context, requestor, persona, channelID string, n int) ([]*models.HistoryEntry, error)
	ClearUserHistory(ctx context.Context, username, channelID string) error
	ClearAllHistory(ctx context.Context) error
}

// CheckInStore manages channel inactivity check-in configuration.
type CheckInStore interface {
	UpsertCheckIn(ctx context.Context, cfg *models.ChannelCheckIn) error
	GetCheckIn(ctx context.Context, channelID string) (*models.ChannelCheckIn, error)
	EnabledCheckIns(ctx context.Context) ([]*models.ChannelCheckIn, error)
	StampLastCheckIn(ctx context.Context, channelID string, at time.Time) error
}

// MentalHealthSettingsStore manages the global per-user proactive opt-in.
type MentalHealthSettingsStore interface {
	GetMentalHealthSettings(ctx context.Context, userID string) (*models.UserMentalHealthSettings, error)
	SetMentalHealthOptIn(ctx context.Context, userID, username string, enabled bool) error
}

// EventStore persists scheduled events.
type EventStore interface {
	CreateEvent(ctx context.Context, event *models.ScheduledEvent) error
	ListEvents(ctx context.Context) ([]*models.ScheduledEvent, error)
	// DeleteEventByName deletes by case-insensitive name match and reports
	// whether a record was removed.
	DeleteEventByName(ctx context.Context, eventName string) (bool, error)
	DeleteEventByID(ctx context.Context, id int64) error
}

// PersonaStore provides the selectable bot personalities.
type PersonaStore interface {
	GetPersona(ctx context.Context, name string) (*models.Persona, error)
	ListPersonas(ctx context.Context) ([]*models.Persona, error)
}

// WebhookStore manages webhook fan-out subscriptions.
type WebhookStore interface {
	ListWebhookSubs(ctx context.Context) ([]*models.WebhookSub, error)
	WebhookSubsByOrigin(ctx context.Context, origin string) ([]*models.WebhookSub, error)
	Subscribe(ctx context.Context, origin, channelID string) error
	Unsubscribe(ctx context.Context, origin, channelID string) (bool, error)
}

// JournalStore provides campaign-journal documents for preprocessing.
type JournalStore interface {
	JournalDocs(ctx context.Context) ([]*models.JournalDoc, error)
}

// Storage aggregates every persistent collection the bot uses.
type Storage interface {
	ConfigStore
	ResponseModeStore
	HistoryStore
	CheckInStore
	MentalHealthSettingsStore
	EventStore
	PersonaStore
	WebhookStore
	JournalStore
	Close() error
}
