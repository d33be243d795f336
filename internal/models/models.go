package models

import "time"

// Sensitivity is the classifier-assigned risk tier for a message.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

// Topic is the classifier-assigned subject bucket.
type Topic string

const (
	TopicDnD    Topic = "dnd"
	TopicTech   Topic = "tech"
	TopicGaming Topic = "gaming"
	TopicOther  Topic = "other"
)

// Classification is the validated verdict from the classifier service.
// It is produced fresh per message and never persisted.
type Classification struct {
	ShouldRespond bool        `json:"shouldRespond"`
	Confidence    float64     `json:"confidence"`
	IsQuestion    bool        `json:"isQuestion"`
	Topic         Topic       `json:"topic"`
	Sensitivity   Sensitivity `json:"sensitivity"`
	Reason        string      `json:"reason"`
}

// ChatConfig holds per-(username, channel) settings, created lazily with
// defaults on first access. The mental-health follow-up flag is embedded
// here so it is scoped to the channel where the flagged message was seen.
type ChatConfig struct {
	Username           string    `json:"username"`
	ChannelID          string    `json:"channel_id"`
	CurrentPersonality string    `json:"current_personality"`
	Model              string    `json:"model"`
	Temperature        float64   `json:"temperature"`
	UserID             string    `json:"user_id,omitempty"`
	NeedsCheckIn       bool      `json:"needs_check_in"`
	CheckInSetAt       time.Time `json:"check_in_set_at,omitempty"`
	LastCheckInAttempt time.Time `json:"last_check_in_attempt,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ChannelResponseMode controls whether the bot considers replying in a
// channel without an explicit @-mention. Off by default.
type ChannelResponseMode struct {
	ChannelID             string `json:"channel_id"`
	RespondWithoutMention bool   `json:"respond_without_mention"`
}

// ChannelCheckIn configures the inactivity check-in for a channel.
type ChannelCheckIn struct {
	ChannelID         string    `json:"channel_id"`
	Enabled           bool      `json:"enabled"`
	InactivityDays    int       `json:"inactivity_days"`
	CheckInTime       string    `json:"check_in_time"` // HH:mm
	Timezone          string    `json:"timezone"`      // IANA name
	LastCheckIn       time.Time `json:"last_check_in,omitempty"`
	MinMessagesPerDay int       `json:"min_messages_per_day"`
}

// UserMentalHealthSettings is the global per-user opt-in for proactive
// wellbeing check-in DMs. Default off; the reactive DM after a
// high-sensitivity message is not gated by this.
type UserMentalHealthSettings struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Enabled  bool   `json:"enabled"`
}

// ScheduledEvent is a one-shot event with a recurring cron reminder.
// Time is stored as "2006-01-02T15:04:05" local to Timezone.
type ScheduledEvent struct {
	ID        int64  `json:"id"`
	EventName string `json:"event_name"`
	ChannelID string `json:"channel_id"`
	Frequency string `json:"frequency"` // cron expression
	Time      string `json:"time"`
	Timezone  string `json:"timezone"`
}

// HistoryEntry is one turn in the append-only chat log.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "user" or "assistant"
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	Requestor string    `json:"requestor"`
	ChannelID string    `json:"channel_id"`
	ImageURL  string    `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	HistoryTypeUser      = "user"
	HistoryTypeAssistant = "assistant"
)

// Persona describes a selectable bot personality.
type Persona struct {
	Name             string   `json:"name"`
	Type             string   `json:"type"` // "dnd" personas get campaign-journal lookups
	Description      string   `json:"description"`
	Mannerisms       string   `json:"mannerisms,omitempty"`
	Sayings          []string `json:"sayings,omitempty"`
	GeneratedPhrases []string `json:"generated_phrases,omitempty"`
}

// WebhookSub maps an inbound webhook origin to a subscribed channel.
type WebhookSub struct {
	ID        int64  `json:"id"`
	Origin    string `json:"origin"`
	ChannelID string `json:"channel_id"`
}

// JournalDoc is one campaign-journal record searched during preprocessing.
type JournalDoc struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Bio  string `json:"bio"`
}

// ChannelMessage is a platform message snapshot used for recent-context
// fetches and activity evaluation.
type ChannelMessage struct {
	Author    string
	Content   string
	AuthorBot bool
	CreatedAt time.Time
}
