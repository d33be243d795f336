package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/kris-hamade/project-b-r0/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

// PostgresStorage is the production Storage implementation. Upserts are
// keyed on compound identity so concurrent handlers never race on
// read-modify-write of the same row.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %v", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %v", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %v", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %v", err)
	}

	return nil
}

func (s *PostgresStorage) GetChatConfig(ctx context.Context, username, channelID string) (*models.ChatConfig, error) {
	query := `
		INSERT INTO chat_configs (username, channel_id)
		VALUES ($1, $2)
		ON CONFLICT (username, channel_id) DO UPDATE SET username = EXCLUDED.username
		RETURNING username, channel_id, current_personality, model, temperature,
		          user_id, needs_check_in, check_in_set_at, last_check_in_attempt, updated_at`

	cfg := &models.ChatConfig{}
	var setAt, lastAttempt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, username, channelID).Scan(
		&cfg.Username,
		&cfg.ChannelID,
		&cfg.CurrentPersonality,
		&cfg.Model,
		&cfg.Temperature,
		&cfg.UserID,
		&cfg.NeedsCheckIn,
		&setAt,
		&lastAttempt,
		&cfg.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("error getting chat config: %v", err)
	}
	if setAt.Valid {
		cfg.CheckInSetAt = setAt.Time
	}
	if lastAttempt.Valid {
		cfg.LastCheckInAttempt = lastAttempt.Time
	}
	return cfg, nil
}

func (s *PostgresStorage) SaveChatConfig(ctx context.Context, cfg *models.ChatConfig) error {
	query := `
		INSERT INTO chat_configs (username, channel_id, current_personality, model, temperature,
		                          user_id, needs_check_in, check_in_set_at, last_check_in_attempt, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (username, channel_id) DO UPDATE SET
			current_personality = EXCLUDED.current_personality,
			model = EXCLUDED.model,
			temperature = EXCLUDED.temperature,
			user_id = EXCLUDED.user_id,
			needs_check_in = EXCLUDED.needs_check_in,
			check_in_set_at = EXCLUDED.check_in_set_at,
			last_check_in_attempt = EXCLUDED.last_check_in_attempt,
			updated_at = NOW()`

	_, err := s.db.ExecContext(ctx, query,
		cfg.Username, cfg.ChannelID, cfg.CurrentPersonality, cfg.Model, cfg.Temperature,
		cfg.UserID, cfg.NeedsCheckIn, nullTime(cfg.CheckInSetAt), nullTime(cfg.LastCheckInAttempt))
	if err != nil {
		return fmt.Errorf("error saving chat config: %v", err)
	}
	return nil
}

func (s *PostgresStorage) SetMentalHealthFlag(ctx context.Context, username, userID, channelID string) error {
	// CASE keeps the original set-at timestamp when the flag is already up.
	query := `
		INSERT INTO chat_configs (username, channel_id, user_id, needs_check_in, check_in_set_at)
		VALUES ($1, $2, $3, TRUE, NOW())
		ON CONFLICT (username, channel_id) DO UPDATE SET
			user_id = CASE WHEN chat_configs.user_id = '' THEN EXCLUDED.user_id ELSE chat_configs.user_id END,
			needs_check_in = TRUE,
			check_in_set_at = CASE WHEN chat_configs.needs_check_in THEN chat_configs.check_in_set_at ELSE NOW() END,
			updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, username, channelID, userID); err != nil {
		return fmt.Errorf("error setting mental health flag: %v", err)
	}
	return nil
}

func (s *PostgresStorage) ClearMentalHealthFlag(ctx context.Context, username, channelID string) (bool, error) {
	query := `
		UPDATE chat_configs
		SET needs_check_in = FALSE, check_in_set_at = NULL, last_check_in_attempt = NULL, updated_at = NOW()
		WHERE username = $1 AND needs_check_in AND ($2 = '' OR channel_id = $2)`

	result, err := s.db.ExecContext(ctx, query, username, channelID)
	if err != nil {
		return false, fmt.Errorf("error clearing mental health flag: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error clearing mental health flag: %v", err)
	}
	return affected > 0, nil
}

func (s *PostgresStorage) FlaggedConfigs(ctx context.Context) ([]*models.ChatConfig, error) {
	query := `
		SELECT username, channel_id, current_personality, model, temperature,
		       user_id, needs_check_in, check_in_set_at, last_check_in_attempt, updated_at
		FROM chat_configs
		WHERE needs_check_in
		ORDER BY username, channel_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying flagged configs: %v", err)
	}
	defer rows.Close()

	var configs []*models.ChatConfig
	for rows.Next() {
		cfg := &models.ChatConfig{}
		var setAt, lastAttempt sql.NullTime
		if err := rows.Scan(
			&cfg.Username, &cfg.ChannelID, &cfg.CurrentPersonality, &cfg.Model, &cfg.Temperature,
			&cfg.UserID, &cfg.NeedsCheckIn, &setAt, &lastAttempt, &cfg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning flagged config: %v", err)
		}
		if setAt.Valid {
			cfg.CheckInSetAt = setAt.Time
		}
		if lastAttempt.Valid {
			cfg.LastCheckInAttempt = lastAttempt.Time
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *PostgresStorage) StampCheckInAttempt(ctx context.Context, username string, at time.Time) error {
	query := `UPDATE chat_configs SET last_check_in_attempt = $2, updated_at = NOW() WHERE username = $1 AND needs_check_in`
	if _, err := s.db.ExecContext(ctx, query, username, at); err != nil {
		return fmt.Errorf("error stamping check-in attempt: %v", err)
	}
	return nil
}

func (s *PostgresStorage) LastCheckInAttempt(ctx context.Context, username string) (time.Time, error) {
	query := `SELECT COALESCE(MAX(last_check_in_attempt), 'epoch'::timestamptz) FROM chat_configs WHERE username = $1 AND needs_check_in`
	var last time.Time
	if err := s.db.QueryRowContext(ctx, query, username).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("error querying last check-in attempt: %v", err)
	}
	if last.Unix() == 0 {
		return time.Time{}, nil
	}
	return last, nil
}

func (s *PostgresStorage) GetResponseMode(ctx context.Context, channelID string) (*models.ChannelResponseMode, error) {
	query := `
		INSERT INTO channel_response_modes (channel_id)
		VALUES ($1)
		ON CONFLICT (channel_id) DO UPDATE SET channel_id = EXCLUDED.channel_id
		RETURNING channel_id, respond_without_mention`

	mode := &models.ChannelResponseMode{}
	if err := s.db.QueryRowContext(ctx, query, channelID).Scan(&mode.ChannelID, &mode.RespondWithoutMention); err != nil {
		return nil, fmt.Errorf("error getting response mode: %v", err)
	}
	return mode, nil
}

func (s *PostgresStorage) SetResponseMode(ctx context.Context, channelID string, respondWithoutMention bool) error {
	query := `
		INSERT INTO channel_response_modes (channel_id, respond_without_mention)
		VALUES ($1, $2)
		ON CONFLICT (channel_id) DO UPDATE SET respond_without_mention = EXCLUDED.respond_without_mention`

	if _, err := s.db.ExecContext(ctx, query, channelID, respondWithoutMention); err != nil {
		return fmt.Errorf("error setting response mode: %v", err)
	}
	return nil
}

func (s *PostgresStorage) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	query := `
		INSERT INTO chat_history (id, type, username, content, requestor, channel_id, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`

	err := s.db.QueryRowContext(ctx, query,
		entry.ID, entry.Type, entry.Username, entry.Content, entry.Requestor, entry.ChannelID, entry.ImageURL,
	).Scan(&entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("error appending history: %v", err)
	}
	return nil
}

func (s *PostgresStorage) History(ctx context.Context, requestor, persona, channelID string, n int) ([]*models.HistoryEntry, error) {
	query := `
		SELECT id, type, username, content, requestor, channel_id, image_url, created_at
		FROM chat_history
		WHERE channel_id = $1 AND (
			(type = 'user' AND requestor = $2 AND username = $2) OR
			(type = 'assistant' AND username = $3)
		)
		ORDER BY created_at DESC
		LIMIT $4`

	// Fetch extra turns so filtering does not starve the window.
	rows, err := s.db.QueryContext(ctx, query, channelID, requestor, persona, n*2)
	if err != nil {
		return nil, fmt.Errorf("error querying history: %v", err)
	}
	defer rows.Close()

	var entries []*models.HistoryEntry
	for rows.Next() {
		e := &models.HistoryEntry{}
		if err := rows.Scan(&e.ID, &e.Type, &e.Username, &e.Content, &e.Requestor, &e.ChannelID, &e.ImageURL, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning history entry: %v", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order, then filter and truncate.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	var filtered []*models.HistoryEntry
	for _, e := range entries {
		if wellbeingPattern.MatchString(e.Content) {
			continue
		}
		filtered = append(filtered, e)
	}
	if len(filtered) > n {
		filtered = filtered[:n]
	}
	return filtered, nil
}

func (s *PostgresStorage) ClearUserHistory(ctx context.Context, username, channelID string) error {
	query := `DELETE FROM chat_history WHERE username = $1 OR requestor = $1 OR channel_id = $2`
	if _, err := s.db.ExecContext(ctx, query, username, channelID); err != nil {
		return fmt.Errorf("error clearing user history: %v", err)
	}
	return nil
}

func (s *PostgresStorage) ClearAllHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_history`); err != nil {
		return fmt.Errorf("error clearing history: %v", err)
	}
	return nil
}

func (s *PostgresStorage) UpsertCheckIn(ctx context.Context, cfg *models.ChannelCheckIn) error {
	query := `
		INSERT INTO channel_check_ins (channel_id, enabled, inactivity_days, check_in_time, timezone, min_messages_per_day)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (channel_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			inactivity_days = EXCLUDED.inactivity_days,
			check_in_time = EXCLUDED.check_in_time,
			timezone = EXCLUDED.timezone,
			min_messages_per_day = EXCLUDED.min_messages_per_day`

	_, err := s.db.ExecContext(ctx, query,
		cfg.ChannelID, cfg.Enabled, cfg.InactivityDays, cfg.CheckInTime, cfg.Timezone, cfg.MinMessagesPerDay)
	if err != nil {
		return fmt.Errorf("error upserting check-in config: %v", err)
	}
	return nil
}

func (s *PostgresStorage) GetCheckIn(ctx context.Context, channelID string) (*models.ChannelCheckIn, error) {
	query := `
		SELECT channel_id, enabled, inactivity_days, check_in_time, timezone, last_check_in, min_messages_per_day
		FROM channel_check_ins WHERE channel_id = $1`

	cfg := &models.ChannelCheckIn{}
	var lastCheckIn sql.NullTime
	err := s.db.QueryRowContext(ctx, query, channelID).Scan(
		&cfg.ChannelID, &cfg.Enabled, &cfg.InactivityDays, &cfg.CheckInTime, &cfg.Timezone, &lastCheckIn, &cfg.MinMessagesPerDay)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting check-in config: %v", err)
	}
	if lastCheckIn.Valid {
		cfg.LastCheckIn = lastCheckIn.Time
	}
	return cfg, nil
}

func (s *PostgresStorage) EnabledCheckIns(ctx context.Context) ([]*models.ChannelCheckIn, error) {
	query := `
		SELECT channel_id, enabled, inactivity_days, check_in_time, timezone, last_check_in, min_messages_per_day
		FROM channel_check_ins WHERE enabled ORDER BY channel_id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying check-in configs: %v", err)
	}
	defer rows.Close()

	var configs []*models.ChannelCheckIn
	for rows.Next() {
		cfg := &models.ChannelCheckIn{}
		var lastCheckIn sql.NullTime
		if err := rows.Scan(&cfg.ChannelID, &cfg.Enabled, &cfg.InactivityDays, &cfg.CheckInTime, &cfg.Timezone, &lastCheckIn, &cfg.MinMessagesPerDay); err != nil {
			return nil, fmt.Errorf("error scanning check-in config: %v", err)
		}
		if lastCheckIn.Valid {
			cfg.LastCheckIn = lastCheckIn.Time
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

func (s *PostgresStorage) StampLastCheckIn(ctx context.Context, channelID string, at time.Time) error {
	query := `UPDATE channel_check_ins SET last_check_in = $2 WHERE channel_id = $1`
	if _, err := s.db.ExecContext(ctx, query, channelID, at); err != nil {
		return fmt.Errorf("error stamping last check-in: %v", err)
	}
	return nil
}

func (s *PostgresStorage) GetMentalHealthSettings(ctx context.Context, userID string) (*models.UserMentalHealthSettings, error) {
	query := `SELECT user_id, username, enabled FROM user_mental_health_settings WHERE user_id = $1`

	settings := &models.UserMentalHealthSettings{}
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&settings.UserID, &settings.Username, &settings.Enabled)
	if err == sql.ErrNoRows {
		return &models.UserMentalHealthSettings{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting mental health settings: %v", err)
	}
	return settings, nil
}

func (s *PostgresStorage) SetMentalHealthOptIn(ctx context.Context, userID, username string, enabled bool) error {
	query := `
		INSERT INTO user_mental_health_settings (user_id, username, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET username = EXCLUDED.username, enabled = EXCLUDED.enabled`

	if _, err := s.db.ExecContext(ctx, query, userID, username, enabled); err != nil {
		return fmt.Errorf("error setting mental health opt-in: %v", err)
	}
	return nil
}

func (s *PostgresStorage) CreateEvent(ctx context.Context, event *models.ScheduledEvent) error {
	query := `
		INSERT INTO scheduled_events (event_name, channel_id, frequency, event_time, timezone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	err := s.db.QueryRowContext(ctx, query,
		event.EventName, event.ChannelID, event.Frequency, event.Time, event.Timezone,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("error creating event: %v", err)
	}
	return nil
}

func (s *PostgresStorage) ListEvents(ctx context.Context) ([]*models.ScheduledEvent, error) {
	query := `SELECT id, event_name, channel_id, frequency, event_time, timezone FROM scheduled_events ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying events: %v", err)
	}
	defer rows.Close()

	var events []*models.ScheduledEvent
	for rows.Next() {
		e := &models.ScheduledEvent{}
		if err := rows.Scan(&e.ID, &e.EventName, &e.ChannelID, &e.Frequency, &e.Time, &e.Timezone); err != nil {
			return nil, fmt.Errorf("error scanning event: %v", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStorage) DeleteEventByName(ctx context.Context, eventName string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_events WHERE LOWER(event_name) = LOWER($1)`, eventName)
	if err != nil {
		return false, fmt.Errorf("error deleting event: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error deleting event: %v", err)
	}
	return affected > 0, nil
}

func (s *PostgresStorage) DeleteEventByID(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_events WHERE id = $1`, id); err != nil {
		return fmt.Errorf("error deleting event: %v", err)
	}
	return nil
}

func (s *PostgresStorage) GetPersona(ctx context.Context, name string) (*models.Persona, error) {
	query := `
		SELECT name, persona_type, description, mannerisms, sayings, generated_phrases
		FROM personas WHERE LOWER(name) = LOWER($1)`

	p := &models.Persona{}
	var sayings, phrases string
	err := s.db.QueryRowContext(ctx, query, name).Scan(&p.Name, &p.Type, &p.Description, &p.Mannerisms, &sayings, &phrases)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error getting persona: %v", err)
	}
	p.Sayings = splitLines(sayings)
	p.GeneratedPhrases = splitLines(phrases)
	return p, nil
}

func (s *PostgresStorage) ListPersonas(ctx context.Context) ([]*models.Persona, error) {
	query := `
		SELECT name, persona_type, description, mannerisms, sayings, generated_phrases
		FROM personas ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying personas: %v", err)
	}
	defer rows.Close()

	var personas []*models.Persona
	for rows.Next() {
		p := &models.Persona{}
		var sayings, phrases string
		if err := rows.Scan(&p.Name, &p.Type, &p.Description, &p.Mannerisms, &sayings, &phrases); err != nil {
			return nil, fmt.Errorf("error scanning persona: %v", err)
		}
		p.Sayings = splitLines(sayings)
		p.GeneratedPhrases = splitLines(phrases)
		personas = append(personas, p)
	}
	return personas, rows.Err()
}

func (s *PostgresStorage) ListWebhookSubs(ctx context.Context) ([]*models.WebhookSub, error) {
	return s.queryWebhookSubs(ctx, `SELECT id, origin, channel_id FROM webhook_subs ORDER BY origin, channel_id`)
}

func (s *PostgresStorage) WebhookSubsByOrigin(ctx context.Context, origin string) ([]*models.WebhookSub, error) {
	return s.queryWebhookSubs(ctx, `SELECT id, origin, channel_id FROM webhook_subs WHERE origin = $1 ORDER BY channel_id`, origin)
}

func (s *PostgresStorage) queryWebhookSubs(ctx context.Context, query string, args ...any) ([]*models.WebhookSub, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying webhook subs: %v", err)
	}
	defer rows.Close()

	var subs []*models.WebhookSub
	for rows.Next() {
		sub := &models.WebhookSub{}
		if err := rows.Scan(&sub.ID, &sub.Origin, &sub.ChannelID); err != nil {
			return nil, fmt.Errorf("error scanning webhook sub: %v", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *PostgresStorage) Subscribe(ctx context.Context, origin, channelID string) error {
	query := `
		INSERT INTO webhook_subs (origin, channel_id)
		VALUES ($1, $2)
		ON CONFLICT (origin, channel_id) DO NOTHING`

	if _, err := s.db.ExecContext(ctx, query, origin, channelID); err != nil {
		return fmt.Errorf("error subscribing to webhook: %v", err)
	}
	return nil
}

func (s *PostgresStorage) Unsubscribe(ctx context.Context, origin, channelID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhook_subs WHERE origin = $1 AND channel_id = $2`, origin, channelID)
	if err != nil {
		return false, fmt.Errorf("error unsubscribing from webhook: %v", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error unsubscribing from webhook: %v", err)
	}
	return affected > 0, nil
}

func (s *PostgresStorage) JournalDocs(ctx context.Context) ([]*models.JournalDoc, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, bio FROM journal_docs`)
	if err != nil {
		return nil, fmt.Errorf("error querying journal docs: %v", err)
	}
	defer rows.Close()

	var docs []*models.JournalDoc
	for rows.Next() {
		doc := &models.JournalDoc{}
		if err := rows.Scan(&doc.ID, &doc.Name, &doc.Bio); err != nil {
			return nil, fmt.Errorf("error scanning journal doc: %v", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func splitLines(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return strings.Split(v, "\n")
}
