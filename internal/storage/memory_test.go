package storage

import (
	"context"
	"testing"
	"time"

	"github.com/kris-hamade/project-b-r0/internal/models"
)

func TestChatConfigDefaults(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	cfg, err := s.GetChatConfig(ctx, "alice", "chan1")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CurrentPersonality != DefaultPersonality {
		t.Errorf("unexpected default persona %q", cfg.CurrentPersonality)
	}
	if cfg.Model != DefaultModel || cfg.Temperature != DefaultTemperature {
		t.Errorf("unexpected defaults %+v", cfg)
	}

	cfg.Model = "gpt-4o"
	if err := s.SaveChatConfig(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetChatConfig(ctx, "alice", "chan1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "gpt-4o" {
		t.Errorf("config change did not persist: %+v", got)
	}
}

func TestMentalHealthFlagIsIdempotent(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	if err := s.SetMentalHealthFlag(ctx, "alice", "u1", "chan1"); err != nil {
		t.Fatal(err)
	}
	flagged, _ := s.FlaggedConfigs(ctx)
	if len(flagged) != 1 {
		t.Fatalf("expected 1 flagged config, got %d", len(flagged))
	}
	firstSetAt := flagged[0].CheckInSetAt

	time.Sleep(5 * time.Millisecond)
	if err := s.SetMentalHealthFlag(ctx, "alice", "u1", "chan1"); err != nil {
		t.Fatal(err)
	}
	flagged, _ = s.FlaggedConfigs(ctx)
	if !flagged[0].CheckInSetAt.Equal(firstSetAt) {
		t.Errorf("re-flagging moved the set-at timestamp")
	}
}

func TestClearMentalHealthFlagAllChannels(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	_ = s.SetMentalHealthFlag(ctx, "alice", "u1", "chan1")
	_ = s.SetMentalHealthFlag(ctx, "alice", "u1", "chan2")
	_ = s.SetMentalHealthFlag(ctx, "bob", "u2", "chan1")

	cleared, err := s.ClearMentalHealthFlag(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	if !cleared {
		t.Error("expected the clear to report a change")
	}

	flagged, _ := s.FlaggedConfigs(ctx)
	if len(flagged) != 1 || flagged[0].Username != "bob" {
		t.Errorf("expected only bob to remain flagged, got %+v", flagged)
	}

	cleared, _ = s.ClearMentalHealthFlag(ctx, "alice", "")
	if cleared {
		t.Error("second clear should report no change")
	}
}

func TestCheckInAttemptStamping(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	last, err := s.LastCheckInAttempt(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !last.IsZero() {
		t.Errorf("expected zero time for an unflagged user, got %v", last)
	}

	_ = s.SetMentalHealthFlag(ctx, "alice", "u1", "chan1")
	at := time.Now().Truncate(time.Second)
	if err := s.StampCheckInAttempt(ctx, "alice", at); err != nil {
		t.Fatal(err)
	}
	last, _ = s.LastCheckInAttempt(ctx, "alice")
	if !last.Equal(at) {
		t.Errorf("expected %v, got %v", at, last)
	}
}

func TestHistoryFiltersWellbeingLanguage(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	entries := []*models.HistoryEntry{
		{ID: "1", Type: models.HistoryTypeUser, Username: "Alice", Requestor: "Alice", ChannelID: "chan1", Content: "tell me about the lich"},
		{ID: "2", Type: models.HistoryTypeAssistant, Username: "assistant", Requestor: "Alice", ChannelID: "chan1", Content: "The lich rules the northern wastes."},
		{ID: "3", Type: models.HistoryTypeAssistant, Username: "assistant", Requestor: "Alice", ChannelID: "chan1", Content: "I'm here for you, reach out if you need anything."},
	}
	for _, e := range entries {
		if err := s.AppendHistory(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	history, err := s.History(ctx, "Alice", "assistant", "chan1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("expected the support message filtered, got %d entries", len(history))
	}
	for _, e := range history {
		if e.ID == "3" {
			t.Errorf("support language leaked into history")
		}
	}
}

func TestHistoryScopedToConversation(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	_ = s.AppendHistory(ctx, &models.HistoryEntry{ID: "1", Type: models.HistoryTypeUser, Username: "Alice", Requestor: "Alice", ChannelID: "chan1", Content: "hi"})
	_ = s.AppendHistory(ctx, &models.HistoryEntry{ID: "2", Type: models.HistoryTypeUser, Username: "Bob", Requestor: "Bob", ChannelID: "chan1", Content: "hello"})
	_ = s.AppendHistory(ctx, &models.HistoryEntry{ID: "3", Type: models.HistoryTypeUser, Username: "Alice", Requestor: "Alice", ChannelID: "chan2", Content: "elsewhere"})

	history, err := s.History(ctx, "Alice", "assistant", "chan1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].ID != "1" {
		t.Errorf("expected only Alice's chan1 turn, got %+v", history)
	}
}

func TestResponseModeDefaultsOff(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	mode, err := s.GetResponseMode(ctx, "chan1")
	if err != nil {
		t.Fatal(err)
	}
	if mode.RespondWithoutMention {
		t.Error("response mode should default to off")
	}

	if err := s.SetResponseMode(ctx, "chan1", true); err != nil {
		t.Fatal(err)
	}
	mode, _ = s.GetResponseMode(ctx, "chan1")
	if !mode.RespondWithoutMention {
		t.Error("response mode change did not persist")
	}
}

func TestCheckInRoundTrip(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	cfg := &models.ChannelCheckIn{
		ChannelID:         "chan1",
		Enabled:           true,
		InactivityDays:    3,
		CheckInTime:       "18:00",
		Timezone:          "America/New_York",
		MinMessagesPerDay: 5,
	}
	if err := s.UpsertCheckIn(ctx, cfg); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCheckIn(ctx, "chan1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.CheckInTime != "18:00" || got.Timezone != "America/New_York" ||
		got.InactivityDays != 3 || got.MinMessagesPerDay != 5 {
		t.Errorf("round trip mismatch: %+v", got)
	}

	at := time.Now()
	if err := s.StampLastCheckIn(ctx, "chan1", at); err != nil {
		t.Fatal(err)
	}
	// Re-upserting the config keeps the stamp.
	if err := s.UpsertCheckIn(ctx, cfg); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetCheckIn(ctx, "chan1")
	if !got.LastCheckIn.Equal(at) {
		t.Errorf("upsert lost the last check-in stamp")
	}

	enabled, _ := s.EnabledCheckIns(ctx)
	if len(enabled) != 1 {
		t.Errorf("expected 1 enabled check-in, got %d", len(enabled))
	}
}

func TestEventDeleteIsCaseInsensitive(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	if err := s.CreateEvent(ctx, &models.ScheduledEvent{EventName: "Game Night", ChannelID: "chan1"}); err != nil {
		t.Fatal(err)
	}
	deleted, err := s.DeleteEventByName(ctx, "game night")
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Error("expected a case-insensitive delete to match")
	}
	deleted, _ = s.DeleteEventByName(ctx, "game night")
	if deleted {
		t.Error("second delete should report no match")
	}
}

func TestWebhookSubscriptions(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	_ = s.Subscribe(ctx, "overseer", "chan1")
	_ = s.Subscribe(ctx, "overseer", "chan1") // duplicate is a no-op
	_ = s.Subscribe(ctx, "overseer", "chan2")
	_ = s.Subscribe(ctx, "grafana", "chan1")

	subs, err := s.WebhookSubsByOrigin(ctx, "overseer")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 {
		t.Errorf("expected 2 overseer subscriptions, got %d", len(subs))
	}

	removed, _ := s.Unsubscribe(ctx, "overseer", "chan1")
	if !removed {
		t.Error("expected the unsubscribe to match")
	}
	removed, _ = s.Unsubscribe(ctx, "overseer", "chan1")
	if removed {
		t.Error("second unsubscribe should report no match")
	}
}

func TestMentalHealthSettingsDefaultOff(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	settings, err := s.GetMentalHealthSettings(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if settings.Enabled {
		t.Error("proactive check-ins should default to off")
	}

	if err := s.SetMentalHealthOptIn(ctx, "u1", "alice", true); err != nil {
		t.Fatal(err)
	}
	settings, _ = s.GetMentalHealthSettings(ctx, "u1")
	if !settings.Enabled || settings.Username != "alice" {
		t.Errorf("opt-in did not persist: %+v", settings)
	}
}

func TestPersonaLookupIsCaseInsensitive(t *testing.T) {
	s := NewMemoryStorage()
	ctx := context.Background()

	s.SeedPersona(&models.Persona{Name: "B-r0", Type: "dnd", Description: ", a rickety warforged bard"})

	p, err := s.GetPersona(ctx, "b-r0")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.Name != "B-r0" {
		t.Errorf("expected the persona, got %+v", p)
	}

	missing, err := s.GetPersona(ctx, "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for a missing persona, got %+v", missing)
	}
}
