package storage

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kris-hamade/project-b-r0/internal/models"
)

// Defaults applied when a chat config is created lazily.
const (
	DefaultPersonality = "assistant"
	DefaultModel       = "gpt-5-chat-latest"
	DefaultTemperature = 1.0
)

// wellbeingPattern matches support-flow language that must not resurface
// in later prompt context. Applied before history truncation.
var wellbeingPattern = regexp.MustCompile(`(?i)(i['’]?m here for you|checking in on you|how are you doing|are you okay|reach out if you need|support.*mental|mental health.*support)`)

type configKey struct {
	username  string
	channelID string
}

// MemoryStorage is the in-memory Storage implementation used for tests and
// local development.
type MemoryStorage struct {
	mu            sync.RWMutex
	configs       map[configKey]*models.ChatConfig
	responseModes map[string]*models.ChannelResponseMode
	history       []*models.HistoryEntry
	checkIns      map[string]*models.ChannelCheckIn
	mhSettings    map[string]*models.UserMentalHealthSettings
	events        map[int64]*models.ScheduledEvent
	nextEventID   int64
	personas      map[string]*models.Persona
	webhookSubs   []*models.WebhookSub
	nextSubID     int64
	journalDocs   []*models.JournalDoc
}

func NewMemoryStorage() *MemoryStorage {
	s := &MemoryStorage{
		configs:       make(map[configKey]*models.ChatConfig),
		responseModes: make(map[string]*models.ChannelResponseMode),
		checkIns:      make(map[string]*models.ChannelCheckIn),
		mhSettings:    make(map[string]*models.UserMentalHealthSettings),
		events:        make(map[int64]*models.ScheduledEvent),
		personas:      make(map[string]*models.Persona),
		nextEventID:   1,
		nextSubID:     1,
	}
	s.personas[DefaultPersonality] = &models.Persona{
		Name:        DefaultPersonality,
		Type:        "general",
		Description: ", a helpful and concise assistant",
	}
	return s
}

// SeedPersona registers a persona. Meant for startup wiring and tests.
func (s *MemoryStorage) SeedPersona(p *models.Persona) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personas[strings.ToLower(p.Name)] = p
}

// SeedJournalDoc registers a campaign-journal document.
func (s *MemoryStorage) SeedJournalDoc(doc *models.JournalDoc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.ID = int64(len(s.journalDocs) + 1)
	s.journalDocs = append(s.journalDocs, doc)
}

func (s *MemoryStorage) GetChatConfig(ctx context.Context, username, channelID string) (*models.ChatConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := configKey{username, channelID}
	if cfg, ok := s.configs[key]; ok {
		clone := *cfg
		return &clone, nil
	}
	cfg := &models.ChatConfig{
		Username:           username,
		ChannelID:          channelID,
		CurrentPersonality: DefaultPersonality,
		Model:              DefaultModel,
		Temperature:        DefaultTemperature,
		UpdatedAt:          time.Now(),
	}
	s.configs[key] = cfg
	clone := *cfg
	return &clone, nil
}

func (s *MemoryStorage) SaveChatConfig(ctx context.Context, cfg *models.ChatConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *cfg
	clone.UpdatedAt = time.Now()
	s.configs[configKey{cfg.Username, cfg.ChannelID}] = &clone
	return nil
}

func (s *MemoryStorage) SetMentalHealthFlag(ctx context.Context, username, userID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := configKey{username, channelID}
	cfg, ok := s.configs[key]
	if !ok {
		cfg = &models.ChatConfig{
			Username:           username,
			ChannelID:          channelID,
			CurrentPersonality: DefaultPersonality,
			Model:              DefaultModel,
			Temperature:        DefaultTemperature,
		}
		s.configs[key] = cfg
	}
	if cfg.UserID == "" {
		cfg.UserID = userID
	}
	if !cfg.NeedsCheckIn {
		cfg.NeedsCheckIn = true
		cfg.CheckInSetAt = time.Now()
	}
	cfg.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStorage) ClearMentalHealthFlag(ctx context.Context, username, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleared := false
	for key, cfg := range s.configs {
		if key.username != username || !cfg.NeedsCheckIn {
			continue
		}
		if channelID != "" && key.channelID != channelID {
			continue
		}
		cfg.NeedsCheckIn = false
		cfg.CheckInSetAt = time.Time{}
		cfg.LastCheckInAttempt = time.Time{}
		cfg.UpdatedAt = time.Now()
		cleared = true
	}
	return cleared, nil
}

func (s *MemoryStorage) FlaggedConfigs(ctx context.Context) ([]*models.ChatConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var flagged []*models.ChatConfig
	for _, cfg := range s.configs {
		if cfg.NeedsCheckIn {
			clone := *cfg
			flagged = append(flagged, &clone)
		}
	}
	sort.Slice(flagged, func(i, j int) bool {
		if flagged[i].Username != flagged[j].Username {
			return flagged[i].Username < flagged[j].Username
		}
		return flagged[i].ChannelID < flagged[j].ChannelID
	})
	return flagged, nil
}

func (s *MemoryStorage) StampCheckInAttempt(ctx context.Context, username string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, cfg := range s.configs {
		if key.username == username && cfg.NeedsCheckIn {
			cfg.LastCheckInAttempt = at
			cfg.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *MemoryStorage) LastCheckInAttempt(ctx context.Context, username string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last time.Time
	for key, cfg := range s.configs {
		if key.username == username && cfg.NeedsCheckIn && cfg.LastCheckInAttempt.After(last) {
			last = cfg.LastCheckInAttempt
		}
	}
	return last, nil
}

func (s *MemoryStorage) GetResponseMode(ctx context.Context, channelID string) (*models.ChannelResponseMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mode, ok := s.responseModes[channelID]; ok {
		clone := *mode
		return &clone, nil
	}
	mode := &models.ChannelResponseMode{ChannelID: channelID}
	s.responseModes[channelID] = mode
	clone := *mode
	return &clone, nil
}

func (s *MemoryStorage) SetResponseMode(ctx context.Context, channelID string, respondWithoutMention bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.responseModes[channelID] = &models.ChannelResponseMode{
		ChannelID:             channelID,
		RespondWithoutMention: respondWithoutMention,
	}
	return nil
}

func (s *MemoryStorage) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *entry
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	s.history = append(s.history, &clone)
	return nil
}

func (s *MemoryStorage) History(ctx context.Context, requestor, persona, channelID string, n int) ([]*models.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.HistoryEntry
	for _, e := range s.history {
		if e.ChannelID != channelID {
			continue
		}
		userTurn := e.Type == models.HistoryTypeUser && e.Requestor == requestor && e.Username == requestor
		assistantTurn := e.Type == models.HistoryTypeAssistant && e.Username == persona
		if userTurn || assistantTurn {
			matched = append(matched, e)
		}
	}
	// Fetch extra turns so filtering does not starve the window.
	if len(matched) > n*2 {
		matched = matched[len(matched)-n*2:]
	}

	var filtered []*models.HistoryEntry
	for _, e := range matched {
		if wellbeingPattern.MatchString(e.Content) {
			continue
		}
		clone := *e
		filtered = append(filtered, &clone)
	}
	if len(filtered) > n {
		filtered = filtered[:n]
	}
	return filtered, nil
}

func (s *MemoryStorage) ClearUserHistory(ctx context.Context, username, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*models.HistoryEntry
	for _, e := range s.history {
		if e.Username == username || e.Requestor == username || e.ChannelID == channelID {
			continue
		}
		kept = append(kept, e)
	}
	s.history = kept
	return nil
}

func (s *MemoryStorage) ClearAllHistory(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	return nil
}

func (s *MemoryStorage) UpsertCheckIn(ctx context.Context, cfg *models.ChannelCheckIn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *cfg
	if existing, ok := s.checkIns[cfg.ChannelID]; ok && clone.LastCheckIn.IsZero() {
		clone.LastCheckIn = existing.LastCheckIn
	}
	s.checkIns[cfg.ChannelID] = &clone
	return nil
}

func (s *MemoryStorage) GetCheckIn(ctx context.Context, channelID string) (*models.ChannelCheckIn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.checkIns[channelID]
	if !ok {
		return nil, nil
	}
	clone := *cfg
	return &clone, nil
}

func (s *MemoryStorage) EnabledCheckIns(ctx context.Context) ([]*models.ChannelCheckIn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var enabled []*models.ChannelCheckIn
	for _, cfg := range s.checkIns {
		if cfg.Enabled {
			clone := *cfg
			enabled = append(enabled, &clone)
		}
	}
	sort.Slice(enabled, func(i, j int) bool { return enabled[i].ChannelID < enabled[j].ChannelID })
	return enabled, nil
}

func (s *MemoryStorage) StampLastCheckIn(ctx context.Context, channelID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg, ok := s.checkIns[channelID]; ok {
		cfg.LastCheckIn = at
	}
	return nil
}

func (s *MemoryStorage) GetMentalHealthSettings(ctx context.Context, userID string) (*models.UserMentalHealthSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if settings, ok := s.mhSettings[userID]; ok {
		clone := *settings
		return &clone, nil
	}
	return &models.UserMentalHealthSettings{UserID: userID}, nil
}

func (s *MemoryStorage) SetMentalHealthOptIn(ctx context.Context, userID, username string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mhSettings[userID] = &models.UserMentalHealthSettings{
		UserID:   userID,
		Username: username,
		Enabled:  enabled,
	}
	return nil
}

func (s *MemoryStorage) CreateEvent(ctx context.Context, event *models.ScheduledEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.ID = s.nextEventID
	s.nextEventID++
	clone := *event
	s.events[event.ID] = &clone
	return nil
}

func (s *MemoryStorage) ListEvents(ctx context.Context) ([]*models.ScheduledEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []*models.ScheduledEvent
	for _, e := range s.events {
		clone := *e
		events = append(events, &clone)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

func (s *MemoryStorage) DeleteEventByName(ctx context.Context, eventName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.events {
		if strings.EqualFold(e.EventName, eventName) {
			delete(s.events, id)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStorage) DeleteEventByID(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, id)
	return nil
}

func (s *MemoryStorage) GetPersona(ctx context.Context, name string) (*models.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.personas[strings.ToLower(name)]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, nil
}

func (s *MemoryStorage) ListPersonas(ctx context.Context) ([]*models.Persona, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var personas []*models.Persona
	for _, p := range s.personas {
		clone := *p
		personas = append(personas, &clone)
	}
	sort.Slice(personas, func(i, j int) bool { return personas[i].Name < personas[j].Name })
	return personas, nil
}

func (s *MemoryStorage) ListWebhookSubs(ctx context.Context) ([]*models.WebhookSub, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := make([]*models.WebhookSub, 0, len(s.webhookSubs))
	for _, sub := range s.webhookSubs {
		clone := *sub
		subs = append(subs, &clone)
	}
	return subs, nil
}

func (s *MemoryStorage) WebhookSubsByOrigin(ctx context.Context, origin string) ([]*models.WebhookSub, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var subs []*models.WebhookSub
	for _, sub := range s.webhookSubs {
		if sub.Origin == origin {
			clone := *sub
			subs = append(subs, &clone)
		}
	}
	return subs, nil
}

func (s *MemoryStorage) Subscribe(ctx context.Context, origin, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.webhookSubs {
		if sub.Origin == origin && sub.ChannelID == channelID {
			return nil
		}
	}
	s.webhookSubs = append(s.webhookSubs, &models.WebhookSub{
		ID:        s.nextSubID,
		Origin:    origin,
		ChannelID: channelID,
	})
	s.nextSubID++
	return nil
}

func (s *MemoryStorage) Unsubscribe(ctx context.Context, origin, channelID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.webhookSubs {
		if sub.Origin == origin && sub.ChannelID == channelID {
			s.webhookSubs = append(s.webhookSubs[:i], s.webhookSubs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStorage) JournalDocs(ctx context.Context) ([]*models.JournalDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*models.JournalDoc, 0, len(s.journalDocs))
	for _, doc := range s.journalDocs {
		clone := *doc
		docs = append(docs, &clone)
	}
	return docs, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
