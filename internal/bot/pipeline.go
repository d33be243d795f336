package bot

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kris-hamade/project-b-r0/internal/classifier"
	"github.com/kris-hamade/project-b-r0/internal/llm"
	"github.com/kris-hamade/project-b-r0/internal/models"
	"github.com/kris-hamade/project-b-r0/internal/storage"
	"go.uber.org/zap"
)

// MaxMessageLength is the platform cap; longer replies are chunked.
const MaxMessageLength = 2000

const (
	apologyReply      = "An error occurred while generating the response. Please try again."
	recentContextSize = 10
	reactiveDMWindow  = time.Hour
)

// Messenger abstracts the platform operations the pipeline needs, so the
// decision logic is testable without a gateway connection.
type Messenger interface {
	SendMessage(channelID, content string) error
	SendDM(userID, content string) error
	// RecentMessages returns up to limit messages posted before the given
	// message, newest first.
	RecentMessages(channelID, beforeMessageID string, limit int) ([]models.ChannelMessage, error)
	Typing(channelID string)
}

// Classifier is the verdict service consulted before generating.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (*models.Classification, error)
}

// Generator is the generation adapter surface the pipeline uses.
type Generator interface {
	Generate(ctx context.Context, pc llm.PromptContext) string
	Recheck(ctx context.Context, message string, cls *models.Classification, recentMessages []string) (*llm.RecheckVerdict, error)
	GenerateWellbeingNudge(ctx context.Context, persona *models.Persona) (string, error)
	DescribeImage(ctx context.Context, imageURL string) (string, error)
}

// CampaignLookup resolves campaign-journal data for a message.
type CampaignLookup interface {
	Lookup(ctx context.Context, input, nickname string) (string, error)
}

// Inbound is a normalized platform message.
type Inbound struct {
	MessageID          string
	ChannelID          string
	ChannelName        string
	UserID             string
	Username           string
	Nickname           string
	Content            string
	AttachmentURL      string
	IsDM               bool
	AuthorIsBot        bool
	MentionsBot        bool
	MentionsEveryone   bool
	MentionsRoles      bool
	MentionsOtherUsers bool
}

// hardPattern is a fixed trigger that short-circuits to a canned reply.
type hardPattern struct {
	pattern *regexp.Regexp
	reply   string
}

var hardPatterns = []hardPattern{
	{regexp.MustCompile(`(?i)don['’]?t have a cow`), "Don't have a cow, man!"},
	{regexp.MustCompile(`(?i)bag of holdings`), "*Bag of Holding. One bag, many wonders."},
}

var imgURLPattern = regexp.MustCompile(`https?://[^ "]+\.(?:png|jpg|jpeg|gif)`)

// Pipeline is the layered response-decision gate: an ordered list of guard
// evaluators, each of which continues, terminates the turn, or
// short-circuits with a canned reply.
type Pipeline struct {
	store     storage.Storage
	classify  Classifier
	generator Generator
	journal   CampaignLookup
	messenger Messenger
	wellbeing WellbeingClassifier
	logger    *zap.Logger

	minConfidence float64
	historyWindow int

	wg sync.WaitGroup
}

func NewPipeline(
	store storage.Storage,
	cls Classifier,
	generator Generator,
	journal CampaignLookup,
	messenger Messenger,
	wellbeing WellbeingClassifier,
	minConfidence float64,
	historyWindow int,
	logger *zap.Logger,
) *Pipeline {
	if minConfidence <= 0 {
		minConfidence = 0.6
	}
	if historyWindow <= 0 {
		historyWindow = 5
	}
	return &Pipeline{
		store:         store,
		classify:      cls,
		generator:     generator,
		journal:       journal,
		messenger:     messenger,
		wellbeing:     wellbeing,
		minConfidence: minConfidence,
		historyWindow: historyWindow,
		logger:        logger,
	}
}

// Flush waits for background work (reactive DMs) to settle.
func (p *Pipeline) Flush() {
	p.wg.Wait()
}

type guardAction int

const (
	guardContinue guardAction = iota
	guardTerminate
	guardShortCircuit
)

type guardResult struct {
	action guardAction
	reason string
	reply  string
}

func terminate(reason string) guardResult {
	return guardResult{action: guardTerminate, reason: reason}
}

func shortCircuit(reply string) guardResult {
	return guardResult{action: guardShortCircuit, reply: reply}
}

var pass = guardResult{action: guardContinue}

// turn carries per-message state between guards. It is never persisted.
type turn struct {
	msg            Inbound
	recentMessages []string
	classification *models.Classification
	fromFallback   bool
}

type guard struct {
	name string
	eval func(ctx context.Context, t *turn) guardResult
}

// Handle runs one inbound message through the gate sequence. Failures in
// any downstream dependency degrade per-step; nothing here propagates.
func (p *Pipeline) Handle(ctx context.Context, msg Inbound) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic in message handler",
				zap.Any("panic", r),
				zap.String("channel_id", msg.ChannelID))
			if err := p.messenger.SendMessage(msg.ChannelID, apologyReply); err != nil {
				p.logger.Error("Failed to send apology", zap.Error(err))
			}
		}
	}()

	t := &turn{msg: msg}
	for _, g := range p.guards() {
		result := g.eval(ctx, t)
		switch result.action {
		case guardTerminate:
			p.logger.Debug("Pipeline terminated",
				zap.String("guard", g.name),
				zap.String("reason", result.reason),
				zap.String("channel_id", msg.ChannelID))
			return
		case guardShortCircuit:
			if err := p.messenger.SendMessage(msg.ChannelID, result.reply); err != nil {
				p.logger.Error("Failed to send canned reply", zap.Error(err))
			}
			return
		}
	}

	p.generateAndDeliver(ctx, t)
}

// guards returns the gate sequence in precedence order.
func (p *Pipeline) guards() []guard {
	return []guard{
		{"bot-author", p.botAuthorGuard},
		{"dm-wellbeing", p.dmWellbeingGuard},
		{"hard-patterns", p.hardPatternGuard},
		{"other-mentions", p.otherMentionGuard},
		{"response-mode", p.responseModeGuard},
		{"context-fetch", p.contextFetchGuard},
		{"classification", p.classificationGuard},
		{"sensitivity", p.sensitivityGuard},
		{"quality-recheck", p.recheckGuard},
	}
}

// Messages from bot accounts are dropped unconditionally.
func (p *Pipeline) botAuthorGuard(ctx context.Context, t *turn) guardResult {
	if t.msg.AuthorIsBot {
		return terminate("author is a bot")
	}
	return pass
}

// DMs are routed through the wellbeing reply handler before anything else.
// If the handler consumes the message, the turn ends here.
func (p *Pipeline) dmWellbeingGuard(ctx context.Context, t *turn) guardResult {
	if !t.msg.IsDM {
		return pass
	}
	return p.handleWellbeingReply(ctx, t.msg)
}

// Fixed regex triggers bypass all later gates.
func (p *Pipeline) hardPatternGuard(ctx context.Context, t *turn) guardResult {
	for _, hp := range hardPatterns {
		if hp.pattern.MatchString(t.msg.Content) {
			return shortCircuit(hp.reply)
		}
	}
	return pass
}

// The bot never interjects in user-to-user exchanges.
func (p *Pipeline) otherMentionGuard(ctx context.Context, t *turn) guardResult {
	if t.msg.IsDM {
		return pass
	}
	if t.msg.MentionsOtherUsers || t.msg.MentionsEveryone || t.msg.MentionsRoles {
		return terminate("mentions another user, everyone, or a role")
	}
	return pass
}

// Response-mode gate: without the channel toggle, an explicit mention is
// required. A store read failure fails closed.
func (p *Pipeline) responseModeGuard(ctx context.Context, t *turn) guardResult {
	if t.msg.IsDM {
		return pass
	}
	mode, err := p.store.GetResponseMode(ctx, t.msg.ChannelID)
	if err != nil {
		p.logger.Error("Failed to load response mode, requiring mention",
			zap.Error(err),
			zap.String("channel_id", t.msg.ChannelID))
		if !t.msg.MentionsBot {
			return terminate("response mode unavailable and bot not mentioned")
		}
		return pass
	}
	if !mode.RespondWithoutMention && !t.msg.MentionsBot {
		return terminate("bot not mentioned")
	}
	return pass
}

// Best-effort recent-context fetch; an empty window is fine.
func (p *Pipeline) contextFetchGuard(ctx context.Context, t *turn) guardResult {
	recent, err := p.messenger.RecentMessages(t.msg.ChannelID, t.msg.MessageID, 50)
	if err != nil {
		p.logger.Warn("Failed to fetch recent messages",
			zap.Error(err),
			zap.String("channel_id", t.msg.ChannelID))
		return pass
	}
	var lines []string
	for _, m := range recent {
		if m.AuthorBot {
			continue
		}
		lines = append(lines, m.Author+": "+m.Content)
		if len(lines) == recentContextSize {
			break
		}
	}
	// Newest-first from the platform; flip to chronological.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	t.recentMessages = lines
	return pass
}

// Classification gate. On classifier failure the legacy mention rule
// applies: non-DM channels require an explicit mention, DMs proceed.
func (p *Pipeline) classificationGuard(ctx context.Context, t *turn) guardResult {
	cls, err := p.classify.Classify(ctx, classifier.Request{
		Message:        t.msg.Content,
		RecentMessages: t.recentMessages,
		ChannelName:    t.msg.ChannelName,
	})
	if err != nil {
		p.logger.Warn("Classifier unavailable, applying fallback rule",
			zap.Error(err),
			zap.String("channel_id", t.msg.ChannelID))
		t.fromFallback = true
		if !t.msg.IsDM && !t.msg.MentionsBot {
			return terminate("classifier unavailable and bot not mentioned")
		}
		return pass
	}
	t.classification = cls
	if !cls.ShouldRespond {
		return terminate("classifier voted no: " + cls.Reason)
	}
	if cls.Confidence < p.minConfidence {
		return terminate("classifier confidence below threshold")
	}
	return pass
}

// High sensitivity sets the follow-up flag, scrubs the recent-context
// window, and fires a rate-limited best-effort DM.
func (p *Pipeline) sensitivityGuard(ctx context.Context, t *turn) guardResult {
	if t.classification == nil || t.classification.Sensitivity != models.SensitivityHigh {
		return pass
	}

	if err := p.store.SetMentalHealthFlag(ctx, t.msg.Username, t.msg.UserID, t.msg.ChannelID); err != nil {
		p.logger.Error("Failed to set mental health flag",
			zap.Error(err),
			zap.String("username", t.msg.Username))
	}

	// High-sensitivity content must not leak into later prompts.
	t.recentMessages = nil

	last, err := p.store.LastCheckInAttempt(ctx, t.msg.Username)
	if err != nil {
		p.logger.Error("Failed to read last check-in attempt", zap.Error(err))
		return pass
	}
	if !last.IsZero() && time.Since(last) < reactiveDMWindow {
		return pass
	}

	userID := t.msg.UserID
	username := t.msg.Username
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sendWellbeingDM(context.Background(), username, userID)
	}()
	return pass
}

// Only a live classifier verdict gets rechecked; errors fail open since
// the classifier already approved.
func (p *Pipeline) recheckGuard(ctx context.Context, t *turn) guardResult {
	if t.classification == nil || t.fromFallback {
		return pass
	}
	verdict, err := p.generator.Recheck(ctx, t.msg.Content, t.classification, t.recentMessages)
	if err != nil {
		p.logger.Warn("Quality recheck failed, proceeding", zap.Error(err))
		return pass
	}
	if !verdict.ShouldRespond {
		return terminate("recheck vetoed: " + verdict.Reason)
	}
	return pass
}

// generateAndDeliver assembles the context bundle, generates, sends, and
// applies the history write policy.
func (p *Pipeline) generateAndDeliver(ctx context.Context, t *turn) {
	msg := t.msg
	content := msg.Content

	// Image handling: attachment first, then an inline image URL, which is
	// stripped from the prompt text.
	imageURL := msg.AttachmentURL
	if imageURL == "" {
		if found := imgURLPattern.FindString(content); found != "" {
			imageURL = found
			content = strings.TrimSpace(strings.Replace(content, found, "", 1))
		}
	}
	imageDescription := ""
	if imageURL != "" {
		desc, err := p.generator.DescribeImage(ctx, imageURL)
		if err != nil {
			p.logger.Warn("Failed to describe image", zap.Error(err), zap.String("image_url", imageURL))
		} else {
			imageDescription = desc
		}
	}

	cfg, err := p.store.GetChatConfig(ctx, msg.Username, msg.ChannelID)
	if err != nil {
		p.logger.Error("Failed to load chat config", zap.Error(err), zap.String("username", msg.Username))
		p.reply(msg.ChannelID, apologyReply)
		return
	}
	if cfg.UserID == "" && msg.UserID != "" {
		cfg.UserID = msg.UserID
		if err := p.store.SaveChatConfig(ctx, cfg); err != nil {
			p.logger.Warn("Failed to persist user id on config", zap.Error(err))
		}
	}

	persona, err := p.store.GetPersona(ctx, cfg.CurrentPersonality)
	if err != nil || persona == nil {
		p.logger.Error("No personality found",
			zap.Error(err),
			zap.String("personality", cfg.CurrentPersonality))
		p.reply(msg.ChannelID, "Sorry, I couldn't find the specified personality: "+cfg.CurrentPersonality)
		return
	}

	p.messenger.Typing(msg.ChannelID)

	campaignData := ""
	if content != "" && persona.Type == "dnd" && imageDescription == "" {
		campaignData, err = p.journal.Lookup(ctx, content, msg.Nickname)
		if err != nil {
			p.logger.Warn("Campaign journal lookup failed", zap.Error(err))
		}
	}

	history, err := p.store.History(ctx, msg.Nickname, persona.Name, msg.ChannelID, p.historyWindow)
	if err != nil {
		p.logger.Warn("Failed to load chat history", zap.Error(err))
	}

	responseText := p.generator.Generate(ctx, llm.PromptContext{
		Prompt:           content,
		Persona:          persona,
		CampaignData:     campaignData,
		Nickname:         msg.Nickname,
		Model:            cfg.Model,
		Temperature:      cfg.Temperature,
		ImageDescription: imageDescription,
		History:          history,
		RecentMessages:   t.recentMessages,
	})
	responseText = trimPersonaName(responseText, persona.Name)

	p.reply(msg.ChannelID, responseText)

	// High-sensitivity channel turns stay out of the persistent log so the
	// topic cannot resurface in unrelated context. DMs are still written.
	if t.classification != nil && t.classification.Sensitivity == models.SensitivityHigh && !msg.IsDM {
		return
	}
	p.writeHistory(ctx, models.HistoryTypeUser, msg.Nickname, msg.Content, msg.Nickname, msg.ChannelID, imageURL)
	p.writeHistory(ctx, models.HistoryTypeAssistant, persona.Name, responseText, msg.Nickname, msg.ChannelID, imageURL)
}

func (p *Pipeline) writeHistory(ctx context.Context, turnType, username, content, requestor, channelID, imageURL string) {
	entry := &models.HistoryEntry{
		ID:        uuid.New().String(),
		Type:      turnType,
		Username:  username,
		Content:   content,
		Requestor: requestor,
		ChannelID: channelID,
		ImageURL:  imageURL,
	}
	if err := p.store.AppendHistory(ctx, entry); err != nil {
		p.logger.Error("Failed to append history",
			zap.Error(err),
			zap.String("type", turnType),
			zap.String("channel_id", channelID))
	}
}

// reply sends a message, chunking anything over the platform cap.
func (p *Pipeline) reply(channelID, text string) {
	for _, chunk := range SplitIntoChunks(text, MaxMessageLength) {
		if err := p.messenger.SendMessage(channelID, chunk); err != nil {
			p.logger.Error("Failed to send message",
				zap.Error(err),
				zap.String("channel_id", channelID))
			return
		}
	}
}

// trimPersonaName strips a leading persona prefix the model sometimes adds.
func trimPersonaName(text, persona string) string {
	text = strings.ReplaceAll(text, persona+": ", "")
	return strings.ReplaceAll(text, "("+persona+") ", "")
}

// SplitIntoChunks splits text into ordered pieces no longer than maxLength.
func SplitIntoChunks(text string, maxLength int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > maxLength {
		chunks = append(chunks, text[:maxLength])
		text = text[maxLength:]
	}
	return append(chunks, text)
}
