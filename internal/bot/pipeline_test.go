package bot

import (
	"context"
	"sync"
	"testing"

	"github.com/kris-hamade/project-b-r0/internal/classifier"
	"github.com/kris-hamade/project-b-r0/internal/llm"
	"github.com/kris-hamade/project-b-r0/internal/models"
	"github.com/kris-hamade/project-b-r0/internal/storage"
	"go.uber.org/zap"
)

type sentMsg struct {
	target  string
	content string
}

type fakeMessenger struct {
	mu        sync.Mutex
	sent      []sentMsg
	dms       []sentMsg
	recent    []models.ChannelMessage
	recentErr error
}

func (f *fakeMessenger) SendMessage(channelID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMsg{channelID, content})
	return nil
}

func (f *fakeMessenger) SendDM(userID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms = append(f.dms, sentMsg{userID, content})
	return nil
}

func (f *fakeMessenger) RecentMessages(channelID, beforeMessageID string, limit int) ([]models.ChannelMessage, error) {
	return f.recent, f.recentErr
}

func (f *fakeMessenger) Typing(channelID string) {}

func (f *fakeMessenger) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMessenger) dmCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dms)
}

type fakeClassifier struct {
	cls   *models.Classification
	err   error
	calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, req classifier.Request) (*models.Classification, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.cls, nil
}

type fakeGenerator struct {
	reply         string
	generateCalls int
	lastPrompt    llm.PromptContext

	recheck      *llm.RecheckVerdict
	recheckErr   error
	recheckCalls int

	imageDesc string
}

func (f *fakeGenerator) Generate(ctx context.Context, pc llm.PromptContext) string {
	f.generateCalls++
	f.lastPrompt = pc
	return f.reply
}

func (f *fakeGenerator) Recheck(ctx context.Context, message string, cls *models.Classification, recentMessages []string) (*llm.RecheckVerdict, error) {
	f.recheckCalls++
	if f.recheckErr != nil {
		return nil, f.recheckErr
	}
	return f.recheck, nil
}

func (f *fakeGenerator) GenerateWellbeingNudge(ctx context.Context, persona *models.Persona) (string, error) {
	return "thinking of you, how are you holding up?", nil
}

func (f *fakeGenerator) DescribeImage(ctx context.Context, imageURL string) (string, error) {
	return f.imageDesc, nil
}

type fakeJournal struct{}

func (fakeJournal) Lookup(ctx context.Context, input, nickname string) (string, error) {
	return "No DnD Data Found", nil
}

func approvingClassification() *models.Classification {
	return &models.Classification{
		ShouldRespond: true,
		Confidence:    0.9,
		Topic:         models.TopicOther,
		Sensitivity:   models.SensitivityLow,
		Reason:        "direct question",
	}
}

func newTestPipeline(t *testing.T) (*Pipeline, *storage.MemoryStorage, *fakeMessenger, *fakeClassifier, *fakeGenerator) {
	t.Helper()
	store := storage.NewMemoryStorage()
	messenger := &fakeMessenger{}
	cls := &fakeClassifier{cls: approvingClassification()}
	gen := &fakeGenerator{
		reply:   "sure, happy to help",
		recheck: &llm.RecheckVerdict{ShouldRespond: true},
	}
	p := NewPipeline(store, cls, gen, fakeJournal{}, messenger, RegexWellbeing{}, 0.6, 5, zap.NewNop())
	return p, store, messenger, cls, gen
}

func channelMsg() Inbound {
	return Inbound{
		MessageID:   "m1",
		ChannelID:   "chan1",
		ChannelName: "general",
		UserID:      "u1",
		Username:    "alice",
		Nickname:    "Alice",
		Content:     "hey, what do you think?",
		MentionsBot: true,
	}
}

func dmMsg(content string) Inbound {
	return Inbound{
		MessageID: "m1",
		ChannelID: "dm1",
		UserID:    "u1",
		Username:  "alice",
		Nickname:  "Alice",
		Content:   content,
		IsDM:      true,
	}
}

func TestIgnoresBotAuthors(t *testing.T) {
	p, _, messenger, cls, _ := newTestPipeline(t)

	msg := channelMsg()
	msg.AuthorIsBot = true
	p.Handle(context.Background(), msg)

	if cls.calls != 0 {
		t.Errorf("classifier called %d times for a bot message", cls.calls)
	}
	if messenger.sentCount() != 0 {
		t.Errorf("sent %d messages for a bot message", messenger.sentCount())
	}
}

func TestHardPatternShortCircuits(t *testing.T) {
	p, _, messenger, cls, gen := newTestPipeline(t)

	msg := channelMsg()
	msg.Content = "don't have a cow about it"
	msg.MentionsBot = false
	p.Handle(context.Background(), msg)

	if messenger.sentCount() != 1 {
		t.Fatalf("expected 1 message, got %d", messenger.sentCount())
	}
	if messenger.sent[0].content != "Don't have a cow, man!" {
		t.Errorf("unexpected reply %q", messenger.sent[0].content)
	}
	if cls.calls != 0 || gen.generateCalls != 0 {
		t.Errorf("classifier or generator ran for a fixed trigger")
	}
}

func TestOtherMentionsTerminate(t *testing.T) {
	p, _, messenger, cls, _ := newTestPipeline(t)

	for _, mutate := range []func(*Inbound){
		func(m *Inbound) { m.MentionsOtherUsers = true },
		func(m *Inbound) { m.MentionsEveryone = true },
		func(m *Inbound) { m.MentionsRoles = true },
	} {
		msg := channelMsg()
		mutate(&msg)
		p.Handle(context.Background(), msg)
	}

	if cls.calls != 0 {
		t.Errorf("classifier called %d times", cls.calls)
	}
	if messenger.sentCount() != 0 {
		t.Errorf("sent %d messages", messenger.sentCount())
	}
}

func TestMentionRequiredByDefault(t *testing.T) {
	p, _, messenger, _, _ := newTestPipeline(t)

	msg := channelMsg()
	msg.MentionsBot = false
	p.Handle(context.Background(), msg)

	if messenger.sentCount() != 0 {
		t.Errorf("replied without a mention in a default-mode channel")
	}
}

func TestRespondWithoutMentionWhenEnabled(t *testing.T) {
	p, store, messenger, _, _ := newTestPipeline(t)
	if err := store.SetResponseMode(context.Background(), "chan1", true); err != nil {
		t.Fatal(err)
	}

	msg := channelMsg()
	msg.MentionsBot = false
	p.Handle(context.Background(), msg)

	if messenger.sentCount() != 1 {
		t.Fatalf("expected 1 reply, got %d", messenger.sentCount())
	}
	if messenger.sent[0].content != "sure, happy to help" {
		t.Errorf("unexpected reply %q", messenger.sent[0].content)
	}
}

type failingModeStore struct {
	*storage.MemoryStorage
}

func (failingModeStore) GetResponseMode(ctx context.Context, channelID string) (*models.ChannelResponseMode, error) {
	return nil, context.DeadlineExceeded
}

func TestResponseModeFailureFailsClosed(t *testing.T) {
	store := failingModeStore{storage.NewMemoryStorage()}
	messenger := &fakeMessenger{}
	cls := &fakeClassifier{cls: approvingClassification()}
	gen := &fakeGenerator{reply: "hi", recheck: &llm.RecheckVerdict{ShouldRespond: true}}
	p := NewPipeline(store, cls, gen, fakeJournal{}, messenger, RegexWellbeing{}, 0.6, 5, zap.NewNop())

	msg := channelMsg()
	msg.MentionsBot = false
	p.Handle(context.Background(), msg)
	if messenger.sentCount() != 0 {
		t.Errorf("replied without a mention while the mode store is down")
	}

	msg.MentionsBot = true
	p.Handle(context.Background(), msg)
	if messenger.sentCount() != 1 {
		t.Errorf("expected the mentioned message to still get a reply, got %d", messenger.sentCount())
	}
}

func TestClassifierDeclineSilences(t *testing.T) {
	p, _, messenger, cls, gen := newTestPipeline(t)
	cls.cls = &models.Classification{
		ShouldRespond: false,
		Confidence:    0.9,
		Topic:         models.TopicOther,
		Sensitivity:   models.SensitivityLow,
		Reason:        "not addressed to the bot",
	}

	p.Handle(context.Background(), channelMsg())

	if gen.generateCalls != 0 || messenger.sentCount() != 0 {
		t.Errorf("generated despite a negative verdict")
	}
}

func TestLowConfidenceSilences(t *testing.T) {
	p, _, messenger, cls, _ := newTestPipeline(t)
	cls.cls.Confidence = 0.4

	p.Handle(context.Background(), channelMsg())

	if messenger.sentCount() != 0 {
		t.Errorf("replied on a low-confidence verdict")
	}
}

func TestClassifierFailureFallsBackToMentionRule(t *testing.T) {
	p, _, messenger, cls, gen := newTestPipeline(t)
	cls.err = context.DeadlineExceeded

	msg := channelMsg()
	msg.MentionsBot = false
	p.Handle(context.Background(), msg)
	if messenger.sentCount() != 0 {
		t.Errorf("replied without a mention while the classifier is down")
	}

	msg.MentionsBot = true
	p.Handle(context.Background(), msg)
	if messenger.sentCount() != 1 {
		t.Fatalf("expected a reply to the mention, got %d", messenger.sentCount())
	}
	if gen.recheckCalls != 0 {
		t.Errorf("recheck ran on a fallback verdict")
	}
}

func TestRecheckVetoSilences(t *testing.T) {
	p, _, messenger, _, gen := newTestPipeline(t)
	gen.recheck = &llm.RecheckVerdict{ShouldRespond: false, Reason: "rhetorical"}

	p.Handle(context.Background(), channelMsg())

	if messenger.sentCount() != 0 {
		t.Errorf("replied despite a recheck veto")
	}
}

func TestRecheckErrorFailsOpen(t *testing.T) {
	p, _, messenger, _, gen := newTestPipeline(t)
	gen.recheckErr = context.DeadlineExceeded

	p.Handle(context.Background(), channelMsg())

	if messenger.sentCount() != 1 {
		t.Errorf("expected a reply when the recheck errors, got %d", messenger.sentCount())
	}
}

func TestHighSensitivityFlagsAndDMs(t *testing.T) {
	p, store, messenger, cls, gen := newTestPipeline(t)
	cls.cls.Sensitivity = models.SensitivityHigh
	messenger.recent = []models.ChannelMessage{
		{Author: "bob", Content: "rough day huh"},
	}

	msg := channelMsg()
	msg.Content = "honestly I've been really struggling lately"
	p.Handle(context.Background(), msg)
	p.Flush()

	flagged, err := store.FlaggedConfigs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(flagged) != 1 || flagged[0].Username != "alice" {
		t.Fatalf("expected alice flagged, got %+v", flagged)
	}
	if messenger.dmCount() != 1 {
		t.Fatalf("expected 1 wellbeing DM, got %d", messenger.dmCount())
	}
	if len(gen.lastPrompt.RecentMessages) != 0 {
		t.Errorf("recent context leaked into a high-sensitivity prompt")
	}

	// The channel turn stays out of the persistent log.
	history, err := store.History(context.Background(), "Alice", "assistant", "chan1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 0 {
		t.Errorf("high-sensitivity channel turn was logged: %+v", history)
	}

	// A second flagged message inside the rate window sends no second DM.
	p.Handle(context.Background(), msg)
	p.Flush()
	if messenger.dmCount() != 1 {
		t.Errorf("expected the DM rate window to hold, got %d DMs", messenger.dmCount())
	}
}

func TestHighSensitivityDMStillLogged(t *testing.T) {
	p, store, messenger, cls, _ := newTestPipeline(t)
	cls.cls.Sensitivity = models.SensitivityHigh

	p.Handle(context.Background(), dmMsg("I've been feeling really low"))
	p.Flush()

	history, err := store.History(context.Background(), "Alice", "assistant", "dm1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Errorf("expected the DM turn to be logged, got %d entries", len(history))
	}
	if messenger.sentCount() != 1 {
		t.Errorf("expected a reply in the DM, got %d", messenger.sentCount())
	}
}

func TestWellbeingStopClearsEverywhere(t *testing.T) {
	p, store, messenger, cls, _ := newTestPipeline(t)
	ctx := context.Background()
	if err := store.SetMentalHealthFlag(ctx, "alice", "u1", "chan1"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetMentalHealthFlag(ctx, "alice", "u1", "chan2"); err != nil {
		t.Fatal(err)
	}

	p.Handle(ctx, dmMsg("please stop checking in on me"))

	flagged, _ := store.FlaggedConfigs(ctx)
	if len(flagged) != 0 {
		t.Errorf("expected all flags cleared, got %d", len(flagged))
	}
	if messenger.sentCount() != 1 || messenger.sent[0].content != stopAck {
		t.Errorf("expected the stop acknowledgement, got %+v", messenger.sent)
	}
	if cls.calls != 0 {
		t.Errorf("classifier ran on a consumed wellbeing reply")
	}
}

func TestWellbeingOkayClearsFlag(t *testing.T) {
	p, store, messenger, _, _ := newTestPipeline(t)
	ctx := context.Background()
	if err := store.SetMentalHealthFlag(ctx, "alice", "u1", "chan1"); err != nil {
		t.Fatal(err)
	}

	p.Handle(ctx, dmMsg("i'm okay now, thank you"))

	flagged, _ := store.FlaggedConfigs(ctx)
	if len(flagged) != 0 {
		t.Errorf("expected the flag cleared")
	}
	if messenger.sentCount() != 1 || messenger.sent[0].content != okayAck {
		t.Errorf("expected the okay acknowledgement, got %+v", messenger.sent)
	}
}

func TestWellbeingStrugglingKeepsFlag(t *testing.T) {
	p, store, messenger, _, _ := newTestPipeline(t)
	ctx := context.Background()
	if err := store.SetMentalHealthFlag(ctx, "alice", "u1", "chan1"); err != nil {
		t.Fatal(err)
	}

	p.Handle(ctx, dmMsg("i'm not okay, still struggling"))

	flagged, _ := store.FlaggedConfigs(ctx)
	if len(flagged) != 1 {
		t.Errorf("expected the flag kept")
	}
	if messenger.sentCount() != 1 || messenger.sent[0].content != supportiveReply {
		t.Errorf("expected the supportive reply, got %+v", messenger.sent)
	}
}

func TestWellbeingNeutralFallsThrough(t *testing.T) {
	p, store, messenger, cls, _ := newTestPipeline(t)
	ctx := context.Background()
	if err := store.SetMentalHealthFlag(ctx, "alice", "u1", "chan1"); err != nil {
		t.Fatal(err)
	}

	p.Handle(ctx, dmMsg("what time is the session tomorrow?"))
	p.Flush()

	if cls.calls != 1 {
		t.Errorf("expected the message to reach normal handling, classifier calls = %d", cls.calls)
	}
	if messenger.sentCount() != 1 || messenger.sent[0].content != "sure, happy to help" {
		t.Errorf("expected a normal reply, got %+v", messenger.sent)
	}
	flagged, _ := store.FlaggedConfigs(ctx)
	if len(flagged) != 1 {
		t.Errorf("expected the flag kept on an ambiguous reply")
	}
}

func TestImageURLExtractedFromContent(t *testing.T) {
	p, _, _, _, gen := newTestPipeline(t)
	gen.imageDesc = "a red dragon over a castle"

	msg := channelMsg()
	msg.Content = "look at this https://cdn.example.com/dragon.png what is it?"
	p.Handle(context.Background(), msg)

	if gen.lastPrompt.ImageDescription != "a red dragon over a castle" {
		t.Errorf("image description missing from prompt: %+v", gen.lastPrompt)
	}
	if gen.lastPrompt.Prompt == msg.Content {
		t.Errorf("image URL was not stripped from the prompt text")
	}
}

func TestSplitIntoChunks(t *testing.T) {
	if got := SplitIntoChunks("", 10); got != nil {
		t.Errorf("expected nil for empty text, got %v", got)
	}
	if got := SplitIntoChunks("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("unexpected chunks %v", got)
	}
	long := make([]byte, 4500)
	for i := range long {
		long[i] = 'a'
	}
	chunks := SplitIntoChunks(string(long), MaxMessageLength)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != MaxMessageLength || len(chunks[2]) != 500 {
		t.Errorf("unexpected chunk sizes %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestTrimPersonaName(t *testing.T) {
	if got := trimPersonaName("B-r0: hello there", "B-r0"); got != "hello there" {
		t.Errorf("got %q", got)
	}
	if got := trimPersonaName("(B-r0) greetings", "B-r0"); got != "greetings" {
		t.Errorf("got %q", got)
	}
}
