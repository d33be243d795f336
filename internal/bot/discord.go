package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/justinian/dice"
	"github.com/kris-hamade/project-b-r0/internal/models"
	"github.com/kris-hamade/project-b-r0/internal/scheduler"
	"github.com/kris-hamade/project-b-r0/internal/storage"
	"go.uber.org/zap"
)

// Discord owns the gateway session. It feeds inbound messages into the
// pipeline and implements the Messenger surface the pipeline and the
// scheduled jobs send through.
type Discord struct {
	session  *discordgo.Session
	store    storage.Storage
	pipeline *Pipeline
	events   *scheduler.EventReminders
	logger   *zap.Logger

	allowedModels []string
	searchModel   string
	startTime     time.Time

	commands []*discordgo.ApplicationCommand
}

func NewDiscord(token string, store storage.Storage, logger *zap.Logger, allowedModels []string, searchModel string) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentDirectMessages |
		discordgo.IntentMessageContent

	return &Discord{
		session:       session,
		store:         store,
		logger:        logger,
		allowedModels: allowedModels,
		searchModel:   searchModel,
		startTime:     time.Now(),
	}, nil
}

// Attach wires the pipeline and event scheduler. Separate from the
// constructor because both sides need the Discord messenger to exist first.
func (d *Discord) Attach(pipeline *Pipeline, events *scheduler.EventReminders) {
	d.pipeline = pipeline
	d.events = events
}

func (d *Discord) Open() error {
	d.session.AddHandler(d.onReady)
	d.session.AddHandler(d.onMessageCreate)
	d.session.AddHandler(d.onInteraction)

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}
	return d.registerCommands()
}

func (d *Discord) Close() error {
	for _, cmd := range d.commands {
		if err := d.session.ApplicationCommandDelete(d.session.State.User.ID, "", cmd.ID); err != nil {
			d.logger.Warn("Failed to delete command", zap.Error(err), zap.String("command", cmd.Name))
		}
	}
	return d.session.Close()
}

func (d *Discord) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	d.logger.Info("Gateway ready",
		zap.String("username", r.User.Username),
		zap.Int("guilds", len(r.Guilds)))
}

// SendMessage implements Messenger.
func (d *Discord) SendMessage(channelID, content string) error {
	_, err := d.session.ChannelMessageSend(channelID, content)
	return err
}

// SendDM implements Messenger.
func (d *Discord) SendDM(userID, content string) error {
	ch, err := d.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("failed to open DM channel: %w", err)
	}
	_, err = d.session.ChannelMessageSend(ch.ID, content)
	return err
}

// RecentMessages implements Messenger.
func (d *Discord) RecentMessages(channelID, beforeMessageID string, limit int) ([]models.ChannelMessage, error) {
	msgs, err := d.session.ChannelMessages(channelID, limit, beforeMessageID, "", "")
	if err != nil {
		return nil, err
	}
	out := make([]models.ChannelMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, models.ChannelMessage{
			Author:    m.Author.Username,
			Content:   m.Content,
			AuthorBot: m.Author.Bot,
			CreatedAt: m.Timestamp,
		})
	}
	return out, nil
}

// ChannelMessages implements the scheduler's messenger surface.
func (d *Discord) ChannelMessages(channelID string, limit int) ([]models.ChannelMessage, error) {
	return d.RecentMessages(channelID, "", limit)
}

// Typing implements Messenger. Best effort.
func (d *Discord) Typing(channelID string) {
	if err := d.session.ChannelTyping(channelID); err != nil {
		d.logger.Debug("Failed to send typing indicator", zap.Error(err))
	}
}

func (d *Discord) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}

	botID := s.State.User.ID
	mentionsBot := false
	mentionsOthers := false
	for _, u := range m.Mentions {
		if u.ID == botID {
			mentionsBot = true
		} else {
			mentionsOthers = true
		}
	}

	content := strings.TrimSpace(stripMention(m.Content, botID))

	nickname := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		nickname = m.Member.Nick
	}

	attachmentURL := ""
	if len(m.Attachments) > 0 {
		attachmentURL = m.Attachments[0].URL
	}

	inbound := Inbound{
		MessageID:          m.ID,
		ChannelID:          m.ChannelID,
		ChannelName:        d.channelName(m.ChannelID),
		UserID:             m.Author.ID,
		Username:           m.Author.Username,
		Nickname:           nickname,
		Content:            content,
		AttachmentURL:      attachmentURL,
		IsDM:               m.GuildID == "",
		AuthorIsBot:        m.Author.Bot,
		MentionsBot:        mentionsBot,
		MentionsEveryone:   m.MentionEveryone,
		MentionsRoles:      len(m.MentionRoles) > 0,
		MentionsOtherUsers: mentionsOthers,
	}

	go d.pipeline.Handle(context.Background(), inbound)
}

func (d *Discord) channelName(channelID string) string {
	ch, err := d.session.State.Channel(channelID)
	if err != nil {
		ch, err = d.session.Channel(channelID)
		if err != nil {
			return ""
		}
	}
	return ch.Name
}

func stripMention(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	return strings.ReplaceAll(content, "<@!"+botID+">", "")
}

func (d *Discord) registerCommands() error {
	defs := []*discordgo.ApplicationCommand{
		{
			Name:        "personas",
			Description: "List personas or select one for this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Persona to switch to"},
			},
		},
		{
			Name:        "model",
			Description: "List models or select one for this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Model to switch to"},
			},
		},
		{
			Name:        "temp",
			Description: "Set the response temperature",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionNumber, Name: "value", Description: "Temperature between 0 and 2", Required: true},
			},
		},
		{Name: "uptime", Description: "Show how long the bot has been running"},
		{Name: "about", Description: "About this bot"},
		{Name: "forgetme", Description: "Clear your chat history in this channel"},
		{Name: "forgetall", Description: "Clear all chat history"},
		{Name: "events", Description: "List scheduled events"},
		{
			Name:        "schedule",
			Description: "Schedule an event from a plain-language request",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "request", Description: "e.g. game night next Friday at 7pm Eastern, remind daily", Required: true},
			},
		},
		{
			Name:        "deleteevent",
			Description: "Delete a scheduled event by name",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "name", Description: "Event name", Required: true},
			},
		},
		{
			Name:        "roll",
			Description: "Roll dice",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "dice", Description: "Dice notation, e.g. 2d20+3", Required: true},
			},
		},
		{
			Name:        "webhook",
			Description: "Manage webhook subscriptions for this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionString, Name: "action", Description: "What to do", Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "list", Value: "list"},
						{Name: "subscribe", Value: "subscribe"},
						{Name: "unsubscribe", Value: "unsubscribe"},
					},
				},
				{Type: discordgo.ApplicationCommandOptionString, Name: "origin", Description: "Webhook origin"},
			},
		},
		{
			Name:        "responsemode",
			Description: "Control whether the bot replies here without a mention",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionString, Name: "action", Description: "What to do", Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "enable", Value: "enable"},
						{Name: "disable", Value: "disable"},
						{Name: "status", Value: "status"},
					},
				},
			},
		},
		{
			Name:        "checkin",
			Description: "Configure the daily inactivity check-in for this channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionString, Name: "action", Description: "What to do", Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "enable", Value: "enable"},
						{Name: "disable", Value: "disable"},
						{Name: "status", Value: "status"},
					},
				},
				{Type: discordgo.ApplicationCommandOptionString, Name: "time", Description: "Local check-in time HH:mm"},
				{Type: discordgo.ApplicationCommandOptionString, Name: "timezone", Description: "IANA timezone"},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "inactivity_days", Description: "Activity lookback in days"},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "min_messages", Description: "Messages required in the lookback window"},
			},
		},
		{
			Name:        "mentalhealth",
			Description: "Opt in or out of proactive wellbeing check-in DMs",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type: discordgo.ApplicationCommandOptionString, Name: "action", Description: "What to do", Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "enable", Value: "enable"},
						{Name: "disable", Value: "disable"},
						{Name: "status", Value: "status"},
					},
				},
			},
		},
	}

	for _, def := range defs {
		cmd, err := d.session.ApplicationCommandCreate(d.session.State.User.ID, "", def)
		if err != nil {
			return fmt.Errorf("failed to register command %q: %w", def.Name, err)
		}
		d.commands = append(d.commands, cmd)
	}
	return nil
}

func (d *Discord) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	ctx := context.Background()

	var reply string
	switch data.Name {
	case "personas":
		reply = d.cmdPersonas(ctx, i, data)
	case "model":
		reply = d.cmdModel(ctx, i, data)
	case "temp":
		reply = d.cmdTemp(ctx, i, data)
	case "uptime":
		reply = fmt.Sprintf("Uptime: %s", humanUptime(time.Since(d.startTime)))
	case "about":
		reply = "B-r0, your D&D campaign companion. Ask about the adventures, roll dice, schedule sessions, or just chat."
	case "forgetme":
		reply = d.cmdForgetMe(ctx, i)
	case "forgetall":
		reply = d.cmdForgetAll(ctx)
	case "events":
		reply = d.cmdEvents(ctx)
	case "schedule":
		reply = d.cmdSchedule(ctx, i, data)
	case "deleteevent":
		reply = d.cmdDeleteEvent(ctx, data)
	case "roll":
		reply = cmdRoll(data)
	case "webhook":
		reply = d.cmdWebhook(ctx, i, data)
	case "responsemode":
		reply = d.cmdResponseMode(ctx, i, data)
	case "checkin":
		reply = d.cmdCheckIn(ctx, i, data)
	case "mentalhealth":
		reply = d.cmdMentalHealth(ctx, i, data)
	default:
		return
	}

	d.respond(s, i, reply)
}

func (d *Discord) respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	chunks := SplitIntoChunks(content, MaxMessageLength)
	if len(chunks) == 0 {
		chunks = []string{"Done."}
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: chunks[0]},
	})
	if err != nil {
		d.logger.Error("Failed to respond to interaction", zap.Error(err))
		return
	}
	for _, chunk := range chunks[1:] {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: chunk}); err != nil {
			d.logger.Error("Failed to send interaction follow-up", zap.Error(err))
			return
		}
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

func optString(data discordgo.ApplicationCommandInteractionData, name string) string {
	for _, opt := range data.Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

func optInt(data discordgo.ApplicationCommandInteractionData, name string, fallback int) int {
	for _, opt := range data.Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionInteger {
			return int(opt.IntValue())
		}
	}
	return fallback
}

func optFloat(data discordgo.ApplicationCommandInteractionData, name string) (float64, bool) {
	for _, opt := range data.Options {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionNumber {
			return opt.FloatValue(), true
		}
	}
	return 0, false
}

func (d *Discord) cmdPersonas(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) string {
	name := optString(data, "name")
	if name == "" {
		personas, err := d.store.ListPersonas(ctx)
		if err != nil {
			d.logger.Error("Failed to list personas", zap.Error(err))
			return "Couldn't load the persona list."
		}
		names := make([]string, 0, len(personas))
		for _, p := range personas {
			names = append(names, p.Name)
		}
		return "Available personas: " + strings.Join(names, ", ")
	}

	persona, err := d.store.GetPersona(ctx, name)
	if err != nil || persona == nil {
		return "Sorry, I couldn't find the specified personality: " + name
	}

	user := interactionUser(i)
	cfg, err := d.store.GetChatConfig(ctx, user.Username, i.ChannelID)
	if err != nil {
		d.logger.Error("Failed to load chat config", zap.Error(err))
		return "Couldn't update your settings."
	}
	cfg.CurrentPersonality = persona.Name
	if err := d.store.SaveChatConfig(ctx, cfg); err != nil {
		d.logger.Error("Failed to save chat config", zap.Error(err))
		return "Couldn't update your settings."
	}
	return "Persona set to **" + persona.Name + "** for this channel."
}

func (d *Discord) cmdModel(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) string {
	name := optString(data, "name")
	if name == "" {
		available := append([]string{}, d.allowedModels...)
		if d.searchModel != "" && !containsString(available, d.searchModel) {
			available = append(available, d.searchModel)
		}
		return "Available models: " + strings.Join(available, ", ")
	}

	allowed := name == d.searchModel && d.searchModel != ""
	for _, m := range d.allowedModels {
		if m == name {
			allowed = true
			break
		}
	}
	if !allowed {
		return "Model not available: " + name
	}

	user := interactionUser(i)
	cfg, err := d.store.GetChatConfig(ctx, user.Username, i.ChannelID)
	if err != nil {
		d.logger.Error("Failed to load chat config", zap.Error(err))
		return "Couldn't update your settings."
	}
	cfg.Model = name
	if err := d.store.SaveChatConfig(ctx, cfg); err != nil {
		d.logger.Error("Failed to save chat config", zap.Error(err))
		return "Couldn't update your settings."
	}
	return "Model set to **" + name + "** for this channel."
}

func (d *Discord) cmdTemp(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) string {
	value, ok := optFloat(data, "value")
	if !ok || value < 0 || value > 2 {
		return "Temperature must be between 0 and 2."
	}
	user := interactionUser(i)
	cfg, err := d.store.GetChatConfig(ctx, user.Username, i.ChannelID)
	if err != nil {
		d.logger.Error("Failed to load chat config", zap.Error(err))
		return "Couldn't update your settings."
	}
	cfg.Temperature = value
	if err := d.store.SaveChatConfig(ctx, cfg); err != nil {
		d.logger.Error("Failed to save chat config", zap.Error(err))
		return "Couldn't update your settings."
	}
	return fmt.Sprintf("Temperature set to %.2f.", value)
}

func (d *Discord) cmdForgetMe(ctx context.Context, i *discordgo.InteractionCreate) string {
	user := interactionUser(i)
	if err := d.store.ClearUserHistory(ctx, user.Username, i.ChannelID); err != nil {
		d.logger.Error("Failed to clear user history", zap.Error(err))
		return "Couldn't clear your history."
	}
	return "Your chat history in this channel has been cleared."
}

func (d *Discord) cmdForgetAll(ctx context.Context) string {
	if err := d.store.ClearAllHistory(ctx); err != nil {
		d.logger.Error("Failed to clear history", zap.Error(err))
		return "Couldn't clear the history."
	}
	return "All chat history has been cleared."
}

func (d *Discord) cmdEvents(ctx context.Context) string {
	list, err := d.events.FormatEventList(ctx)
	if err != nil {
		d.logger.Error("Failed to list events", zap.Error(err))
		return "Couldn't load the event list."
	}
	return list
}

func (d *Discord) cmdSchedule(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) string {
	request := optString(data, "request")
	confirmation, err := d.events.ScheduleFromPrompt(ctx, request, i.ChannelID)
	if err != nil {
		return "Couldn't schedule that: " + err.Error()
	}
	return confirmation
}

func (d *Discord) cmdDeleteEvent(ctx context.Context, data discordgo.ApplicationCommandInteractionData) string {
	name := optString(data, "name")
	deleted, err := d.events.Delete(ctx, name)
	if err != nil {
		d.logger.Error("Failed to delete event", zap.Error(err), zap.String("event", name))
		return "Couldn't delete the event."
	}
	if !deleted {
		return "No event named **" + name + "** found."
	}
	return "Deleted event **" + name + "**."
}

func cmdRoll(data discordgo.ApplicationCommandInteractionData) string {
	notation := optString(data, "dice")
	result, _, err := dice.Roll(notation)
	if err != nil {
		return "I couldn't roll that. Try notation like `2d20+3`."
	}
	return result.String()
}

func (d *Discord) cmdWebhook(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) string {
	action := optString(data, "action")
	origin := optString(data, "origin")

	switch action {
	case "list":
		subs, err := d.store.ListWebhookSubs(ctx)
		if err != nil {
			d.logger.Error("Failed to list webhook subscriptions", zap.Error(err))
			return "Couldn't load the subscriptions."
		}
		var lines []string
		for _, sub := range subs {
			if sub.ChannelID == i.ChannelID {
				lines = append(lines, sub.Origin)
			}
		}
		if len(lines) == 0 {
			return "This channel has no webhook subscriptions."
		}
		return "Subscriptions for this channel: " + strings.Join(lines, ", ")
	case "subscribe":
		if origin == "" {
			return "An origin is required to subscribe."
		}
		if err := d.store.Subscribe(ctx, origin, i.ChannelID); err != nil {
			d.logger.Error("Failed to subscribe channel", zap.Error(err), zap.String("origin", origin))
			return "Couldn't subscribe this channel."
		}
		return "Subscribed this channel to **" + origin + "**."
	case "unsubscribe":
		if origin == "" {
			return "An origin is required to unsubscribe."
		}
		removed, err := d.store.Unsubscribe(ctx, origin, i.ChannelID)
		if err != nil {
			d.logger.Error("Failed to unsubscribe channel", zap.Error(err), zap.String("origin", origin))
			return "Couldn't unsubscribe this channel."
		}
		if !removed {
			return "This channel wasn't subscribed to **" + origin + "**."
		}
		return "Unsubscribed this channel from **" + origin + "**."
	}
	return "Unknown action."
}

func (d *Discord) cmdResponseMode(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) string {
	switch optString(data, "action") {
	case "enable":
		if err := d.store.SetResponseMode(ctx, i.ChannelID, true); err != nil {
			d.logger.Error("Failed to set response mode", zap.Error(err))
			return "Couldn't update the response mode."
		}
		return "I'll now consider replying here without being mentioned."
	case "disable":
		if err := d.store.SetResponseMode(ctx, i.ChannelID, false); err != nil {
			d.logger.Error("Failed to set response mode", zap.Error(err))
			return "Couldn't update the response mode."
		}
		return "I'll only reply here when mentioned."
	default:
		mode, err := d.store.GetResponseMode(ctx, i.ChannelID)
		if err != nil {
			d.logger.Error("Failed to load response mode", zap.Error(err))
			return "Couldn't load the response mode."
		}
		if mode.RespondWithoutMention {
			return "Response mode is **on**: I may reply without a mention."
		}
		return "Response mode is **off**: mention me to get a reply."
	}
}

func (d *Discord) cmdCheckIn(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) string {
	switch optString(data, "action") {
	case "enable":
		cfg, err := d.store.GetCheckIn(ctx, i.ChannelID)
		if err != nil {
			d.logger.Error("Failed to load check-in config", zap.Error(err))
			return "Couldn't update the check-in settings."
		}
		if cfg == nil {
			cfg = &models.ChannelCheckIn{
				ChannelID:         i.ChannelID,
				CheckInTime:       "18:00",
				Timezone:          "America/New_York",
				InactivityDays:    3,
				MinMessagesPerDay: 5,
			}
		}
		cfg.Enabled = true
		if t := optString(data, "time"); t != "" {
			if _, err := time.Parse("15:04", t); err != nil {
				return "Check-in time must look like 18:00."
			}
			cfg.CheckInTime = t
		}
		if tz := optString(data, "timezone"); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return "Unknown timezone: " + tz
			}
			cfg.Timezone = tz
		}
		cfg.InactivityDays = optInt(data, "inactivity_days", cfg.InactivityDays)
		cfg.MinMessagesPerDay = optInt(data, "min_messages", cfg.MinMessagesPerDay)
		if err := d.store.UpsertCheckIn(ctx, cfg); err != nil {
			d.logger.Error("Failed to save check-in config", zap.Error(err))
			return "Couldn't update the check-in settings."
		}
		return fmt.Sprintf("Daily check-in enabled at %s %s.", cfg.CheckInTime, cfg.Timezone)
	case "disable":
		cfg, err := d.store.GetCheckIn(ctx, i.ChannelID)
		if err != nil || cfg == nil {
			return "Check-ins aren't configured for this channel."
		}
		cfg.Enabled = false
		if err := d.store.UpsertCheckIn(ctx, cfg); err != nil {
			d.logger.Error("Failed to save check-in config", zap.Error(err))
			return "Couldn't update the check-in settings."
		}
		return "Daily check-in disabled for this channel."
	default:
		cfg, err := d.store.GetCheckIn(ctx, i.ChannelID)
		if err != nil {
			d.logger.Error("Failed to load check-in config", zap.Error(err))
			return "Couldn't load the check-in settings."
		}
		if cfg == nil || !cfg.Enabled {
			return "Check-ins are **off** for this channel."
		}
		return fmt.Sprintf("Check-ins are **on**: %s %s, lookback %d days, minimum %d messages.",
			cfg.CheckInTime, cfg.Timezone, cfg.InactivityDays, cfg.MinMessagesPerDay)
	}
}

func (d *Discord) cmdMentalHealth(ctx context.Context, i *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) string {
	user := interactionUser(i)
	switch optString(data, "action") {
	case "enable":
		if err := d.store.SetMentalHealthOptIn(ctx, user.ID, user.Username, true); err != nil {
			d.logger.Error("Failed to set wellbeing opt-in", zap.Error(err))
			return "Couldn't update your settings."
		}
		return "Proactive wellbeing check-ins are **on**. I'll check in by DM if things seem heavy. You can turn this off anytime."
	case "disable":
		if err := d.store.SetMentalHealthOptIn(ctx, user.ID, user.Username, false); err != nil {
			d.logger.Error("Failed to set wellbeing opt-in", zap.Error(err))
			return "Couldn't update your settings."
		}
		return "Proactive wellbeing check-ins are **off**."
	default:
		settings, err := d.store.GetMentalHealthSettings(ctx, user.ID)
		if err != nil {
			d.logger.Error("Failed to load wellbeing settings", zap.Error(err))
			return "Couldn't load your settings."
		}
		if settings != nil && settings.Enabled {
			return "Proactive wellbeing check-ins are **on** for you."
		}
		return "Proactive wellbeing check-ins are **off** for you."
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func humanUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
