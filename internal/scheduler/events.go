package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kris-hamade/project-b-r0/internal/llm"
	"github.com/kris-hamade/project-b-r0/internal/models"
	"github.com/kris-hamade/project-b-r0/internal/storage"
	"go.uber.org/zap"
)

// eventTimeLayout matches models.ScheduledEvent.Time.
const eventTimeLayout = "2006-01-02T15:04:05"

// Messenger is the platform surface the scheduled jobs need.
type Messenger interface {
	SendMessage(channelID, content string) error
	SendDM(userID, content string) error
	// ChannelMessages returns up to limit of the channel's latest messages,
	// newest first.
	ChannelMessages(channelID string, limit int) ([]models.ChannelMessage, error)
}

// EventParser turns a natural-language scheduling request into event fields.
type EventParser interface {
	GenerateEventData(ctx context.Context, prompt string) (*llm.EventData, error)
}

// EventReminders owns scheduled events: recurring reminder pings leading up
// to each event and a one-shot announcement at event time that also retires
// the event.
type EventReminders struct {
	store     storage.EventStore
	sched     *Scheduler
	messenger Messenger
	parser    EventParser
	logger    *zap.Logger
	now       func() time.Time
}

func NewEventReminders(store storage.EventStore, sched *Scheduler, messenger Messenger, parser EventParser, logger *zap.Logger) *EventReminders {
	return &EventReminders{
		store:     store,
		sched:     sched,
		messenger: messenger,
		parser:    parser,
		logger:    logger,
		now:       time.Now,
	}
}

// Reconcile restores jobs for persisted events at boot. Events whose time
// already passed are deleted instead of rescheduled.
func (r *EventReminders) Reconcile(ctx context.Context) error {
	events, err := r.store.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	for _, ev := range events {
		at, err := r.eventTime(ev)
		if err != nil {
			r.logger.Warn("Dropping event with unparseable time",
				zap.Error(err),
				zap.String("event", ev.EventName))
			r.deleteRecord(ctx, ev)
			continue
		}
		if at.Before(r.now()) {
			r.logger.Info("Deleting expired event", zap.String("event", ev.EventName))
			r.deleteRecord(ctx, ev)
			continue
		}
		if err := r.schedule(ev, at); err != nil {
			r.logger.Error("Failed to reschedule event",
				zap.Error(err),
				zap.String("event", ev.EventName))
		}
	}
	return nil
}

// ScheduleFromPrompt parses a natural-language request, validates the
// resulting event, persists it, and schedules its jobs. Nothing is persisted
// unless every field validates.
func (r *EventReminders) ScheduleFromPrompt(ctx context.Context, prompt, channelID string) (string, error) {
	data, err := r.parser.GenerateEventData(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("couldn't understand the scheduling request: %w", err)
	}
	if data.EventName == "" || data.Date == "" || data.Time == "" || data.Frequency == "" || data.Timezone == "" {
		return "", fmt.Errorf("the request is missing required event details (name, date, time, frequency, timezone)")
	}

	ev := &models.ScheduledEvent{
		EventName: data.EventName,
		ChannelID: channelID,
		Frequency: data.Frequency,
		Time:      data.Date + "T" + data.Time,
		Timezone:  data.Timezone,
	}
	at, err := r.eventTime(ev)
	if err != nil {
		return "", fmt.Errorf("invalid event date, time, or timezone: %w", err)
	}
	if at.Before(r.now()) {
		return "", fmt.Errorf("event time %s is in the past", at.Format(time.RFC1123))
	}
	if err := ValidateSpec(ev.Frequency); err != nil {
		return "", fmt.Errorf("invalid reminder frequency %q: %w", ev.Frequency, err)
	}

	if err := r.store.CreateEvent(ctx, ev); err != nil {
		return "", fmt.Errorf("failed to save event: %w", err)
	}
	if err := r.schedule(ev, at); err != nil {
		return "", err
	}
	return fmt.Sprintf("Scheduled **%s** for %s (reminders: `%s`).",
		ev.EventName, at.Format("Mon Jan 2 2006 3:04 PM MST"), ev.Frequency), nil
}

// Delete cancels the event's jobs and removes its record.
func (r *EventReminders) Delete(ctx context.Context, eventName string) (bool, error) {
	events, err := r.store.ListEvents(ctx)
	if err != nil {
		return false, err
	}
	for _, ev := range events {
		if strings.EqualFold(ev.EventName, eventName) {
			r.cancel(ev)
		}
	}
	return r.store.DeleteEventByName(ctx, eventName)
}

// FormatEventList renders the schedule for the events command.
func (r *EventReminders) FormatEventList(ctx context.Context) (string, error) {
	events, err := r.store.ListEvents(ctx)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "No events scheduled.", nil
	}
	var sb strings.Builder
	for _, ev := range events {
		at, err := r.eventTime(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(&sb, "**%s** on %s. Time remaining: %s. Reminders: `%s`\n",
			ev.EventName, at.Format("Mon Jan 2 2006 3:04 PM MST"),
			humanDuration(at.Sub(r.now())), ev.Frequency)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (r *EventReminders) schedule(ev *models.ScheduledEvent, at time.Time) error {
	key := eventJobKey(ev)

	spec := ev.Frequency
	if !strings.HasPrefix(spec, "CRON_TZ=") && !strings.HasPrefix(spec, "TZ=") {
		spec = "CRON_TZ=" + ev.Timezone + " " + spec
	}
	name := ev.EventName
	channelID := ev.ChannelID
	if err := r.sched.AddCron(key, spec, func() {
		r.remind(name, channelID, at)
	}); err != nil {
		return err
	}

	evCopy := *ev
	r.sched.AddOneShot(key+"-final", at, func() {
		r.fire(&evCopy)
	})
	return nil
}

func (r *EventReminders) remind(eventName, channelID string, at time.Time) {
	remaining := at.Sub(r.now())
	if remaining < 0 {
		return
	}
	msg := fmt.Sprintf("@everyone Reminder: **%s** on %s. Time remaining: %s",
		eventName, at.Format("Mon Jan 2 2006 3:04 PM MST"), humanDuration(remaining))
	if err := r.messenger.SendMessage(channelID, msg); err != nil {
		r.logger.Error("Failed to send event reminder",
			zap.Error(err),
			zap.String("event", eventName))
	}
}

// fire announces the event, stops the recurring reminder, and retires the
// record so a restart cannot resurrect it.
func (r *EventReminders) fire(ev *models.ScheduledEvent) {
	msg := fmt.Sprintf("@everyone **%s** is starting now!", ev.EventName)
	if err := r.messenger.SendMessage(ev.ChannelID, msg); err != nil {
		r.logger.Error("Failed to send event announcement",
			zap.Error(err),
			zap.String("event", ev.EventName))
	}
	r.cancel(ev)
	r.deleteRecord(context.Background(), ev)
}

func (r *EventReminders) cancel(ev *models.ScheduledEvent) {
	key := eventJobKey(ev)
	r.sched.Cancel(key)
	r.sched.Cancel(key + "-final")
}

func (r *EventReminders) deleteRecord(ctx context.Context, ev *models.ScheduledEvent) {
	if ev.ID != 0 {
		if err := r.store.DeleteEventByID(ctx, ev.ID); err != nil {
			r.logger.Error("Failed to delete event record",
				zap.Error(err),
				zap.String("event", ev.EventName))
		}
		return
	}
	if _, err := r.store.DeleteEventByName(ctx, ev.EventName); err != nil {
		r.logger.Error("Failed to delete event record",
			zap.Error(err),
			zap.String("event", ev.EventName))
	}
}

func (r *EventReminders) eventTime(ev *models.ScheduledEvent) (time.Time, error) {
	loc, err := time.LoadLocation(ev.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown timezone %q: %w", ev.Timezone, err)
	}
	return time.ParseInLocation(eventTimeLayout, ev.Time, loc)
}

func eventJobKey(ev *models.ScheduledEvent) string {
	return "event-" + strings.ToLower(ev.EventName) + "-" + ev.Time
}

func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	parts = append(parts, fmt.Sprintf("%dm", minutes))
	return strings.Join(parts, " ")
}
