package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kris-hamade/project-b-r0/internal/models"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrorReply is the user-safe fallback returned whenever generation fails.
const ErrorReply = "BZZZZT! WEEEEEOOOO WEEEEOOWWW BRRRRRRT!! *B-r0 flails his arms and spins in place* ERROR! MEMORY BANKS OVERLOADED! TRY BEING MORE SPECIFIC ABOUT OUR ADVENTURES!"

// Options configures the generation adapter.
type Options struct {
	RecheckModel  string
	CheckInModel  string
	SearchModel   string
	SearchTimeout time.Duration
	MaxTokens     int
}

const openAIBaseURL = "https://api.openai.com/v1"

// Generator wraps the chat-completion API. Every public generation method
// resolves failures to a user-safe string instead of propagating them.
type Generator struct {
	client        *openai.Client
	apiKey        string
	httpClient    *http.Client
	searchBaseURL string
	opts          Options
	logger        *zap.Logger
}

func NewGenerator(apiKey string, opts Options, logger *zap.Logger) *Generator {
	if opts.RecheckModel == "" {
		opts.RecheckModel = "gpt-4o-mini"
	}
	if opts.CheckInModel == "" {
		opts.CheckInModel = opts.RecheckModel
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 20 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}
	return &Generator{
		client:        openai.NewClient(apiKey),
		apiKey:        apiKey,
		httpClient:    &http.Client{},
		searchBaseURL: openAIBaseURL,
		opts:          opts,
		logger:        logger,
	}
}

// PromptContext is the assembled context bundle for one reply.
type PromptContext struct {
	Prompt           string
	Persona          *models.Persona
	CampaignData     string
	Nickname         string
	Model            string
	Temperature      float64
	ImageDescription string
	History          []*models.HistoryEntry
	RecentMessages   []string
}

// Generate produces the reply text for the context bundle. The web-search
// model variant is raced against a timeout and falls back to the standard
// model, since the search path is the slow one.
func (g *Generator) Generate(ctx context.Context, pc PromptContext) string {
	messages := g.buildMessages(pc)

	if pc.Model == g.opts.SearchModel && g.opts.SearchModel != "" {
		if text, ok := g.generateWithSearch(ctx, pc, messages); ok {
			return text
		}
		pc.Model = g.opts.RecheckModel
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       pc.Model,
		Messages:    messages,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: float32(pc.Temperature),
	})
	if err != nil {
		g.logger.Error("Failed to generate response", zap.Error(err), zap.String("model", pc.Model))
		return ErrorReply
	}
	if len(resp.Choices) == 0 {
		g.logger.Error("Generation returned no choices", zap.String("model", pc.Model))
		return ErrorReply
	}
	return resp.Choices[0].Message.Content
}

// generateWithSearch races the search-enabled model against its timeout.
// Reports (text, true) on success; (_, false) tells the caller to retry on
// the non-search model.
func (g *Generator) generateWithSearch(ctx context.Context, pc PromptContext, messages []openai.ChatCompletionMessage) (string, bool) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	searchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		msg, err := g.searchCompletion(searchCtx, pc.Model, messages)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{text: withCitations(msg)}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			g.logger.Warn("Search model failed, falling back", zap.Error(r.err), zap.String("model", pc.Model))
			return "", false
		}
		return r.text, true
	case <-time.After(g.opts.SearchTimeout):
		g.logger.Warn("Search model timed out, falling back",
			zap.Duration("timeout", g.opts.SearchTimeout),
			zap.String("model", pc.Model))
		return "", false
	}
}

func (g *Generator) buildMessages(pc PromptContext) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Make sure your response is as concise as possible",
		},
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: PersonaPrompt(pc.Persona),
		},
	}

	if pc.CampaignData != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "--START DUNGEONS AND DRAGONS CAMPAIGN DATA-- " + pc.CampaignData + " --END DUNGEONS AND DRAGONS CAMPAIGN DATA--",
		})
	}

	if pc.ImageDescription != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Given the following key elements from an image: " + pc.ImageDescription + " Please provide a comprehensive description of the image.",
		})
	}

	if len(pc.History) > 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "--START CHAT HISTORY-- " + FormatHistory(pc.History) + " --END CHAT HISTORY--",
		})
	}

	if len(pc.RecentMessages) > 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Recent channel messages for context:\n" + strings.Join(pc.RecentMessages, "\n"),
		})
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: fmt.Sprintf("%s says: %s", pc.Nickname, pc.Prompt),
	})
	return messages
}

type urlCitation struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type searchAnnotation struct {
	Type        string      `json:"type"`
	URLCitation urlCitation `json:"url_citation"`
}

type searchMessage struct {
	Content     string             `json:"content"`
	Annotations []searchAnnotation `json:"annotations"`
}

// searchCompletion posts the chat completion itself so the search models'
// annotation field can be decoded; the client library drops it.
// Search-preview models reject a temperature parameter, so none is sent.
func (g *Generator) searchCompletion(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (*searchMessage, error) {
	payload := struct {
		Model     string                         `json:"model"`
		Messages  []openai.ChatCompletionMessage `json:"messages"`
		MaxTokens int                            `json:"max_tokens,omitempty"`
	}{Model: model, Messages: messages, MaxTokens: g.opts.MaxTokens}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.searchBaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search completion failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("search completion returned %d: %s", resp.StatusCode, string(errText))
	}

	var decoded struct {
		Choices []struct {
			Message searchMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode search completion: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}
	return &decoded.Choices[0].Message, nil
}

// withCitations appends the citation annotations the search models return.
func withCitations(msg *searchMessage) string {
	text := msg.Content
	var cites []string
	for _, a := range msg.Annotations {
		if a.URLCitation.URL != "" {
			cites = append(cites, fmt.Sprintf("<%s> (%s)", a.URLCitation.URL, a.URLCitation.Title))
		}
	}
	if len(cites) > 0 {
		text += "\n\nSources: " + strings.Join(cites, ", ")
	}
	return text
}

// RecheckVerdict is the quality recheck's final say on a classifier-approved
// message.
type RecheckVerdict struct {
	ShouldRespond bool   `json:"shouldRespond"`
	Reason        string `json:"reason"`
}

// Recheck issues a second, cheaper call that takes the classification plus
// recent context and renders a final boolean. Callers fail open on error.
func (g *Generator) Recheck(ctx context.Context, message string, cls *models.Classification, recentMessages []string) (*RecheckVerdict, error) {
	prompt := fmt.Sprintf(`A heuristic classifier approved responding to a chat message. Double-check its verdict.

Message: %s
Classifier verdict: shouldRespond=%t confidence=%.2f topic=%s reason=%s
Recent channel messages:
%s

Should the bot actually respond? Reply with a JSON object: {"shouldRespond": bool, "reason": "short explanation"}`,
		message, cls.ShouldRespond, cls.Confidence, cls.Topic, cls.Reason, strings.Join(recentMessages, "\n"))

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.opts.RecheckModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("recheck call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("recheck returned no choices")
	}

	var verdict RecheckVerdict
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &verdict); err != nil {
		return nil, fmt.Errorf("failed to parse recheck verdict: %w", err)
	}
	return &verdict, nil
}

// EventData is the structured output of the natural-language event parse.
// Validation of required fields is the scheduler's job.
type EventData struct {
	EventName string `json:"Event Name"`
	Date      string `json:"Date"`
	Time      string `json:"Time"`
	Frequency string `json:"Frequency"`
	Timezone  string `json:"Timezone"`
}

// GenerateEventData parses a natural-language scheduling request into the
// event template fields.
func (g *Generator) GenerateEventData(ctx context.Context, prompt string) (*EventData, error) {
	template := `{
  "Event Name": "Sample Event",
  "Date": "YYYY-MM-DD",
  "Time": "HH:mm:ss",
  "Frequency": "CRON format",
  "Timezone": "IANA Time Zone"
}`

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.opts.RecheckModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "The user wants to schedule an event based on the following template JSON. Please fill in the details based on the user's request:\n\n" +
					template + "\n\nUser's Request: ",
			},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate event data: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("event data generation returned no choices")
	}

	var data EventData
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Choices[0].Message.Content)), &data); err != nil {
		return nil, fmt.Errorf("failed to parse event data: %w", err)
	}
	return &data, nil
}

// GenerateWebhookReport summarizes an unrecognized webhook payload.
func (g *Generator) GenerateWebhookReport(ctx context.Context, payload string) string {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.opts.RecheckModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are receiving a webhook. Please describe what the source is and your assessment of what the data is that is being received. Use your best judgement to draw conclusions and build a report.",
			},
			{Role: openai.ChatMessageRoleUser, Content: payload},
		},
		MaxTokens: g.opts.MaxTokens,
	})
	if err != nil {
		g.logger.Error("Failed to generate webhook report", zap.Error(err))
		return "Sorry, I couldn't generate a webhook report based on the data received"
	}
	if len(resp.Choices) == 0 {
		return "Sorry, I couldn't generate a webhook report based on the data received"
	}
	return resp.Choices[0].Message.Content
}

// GenerateCheckIn produces the channel inactivity check-in message.
func (g *Generator) GenerateCheckIn(ctx context.Context, persona *models.Persona, recentMessages []string) (string, error) {
	prompt := "The channel has been quiet today, but was active in the past few days. Generate a friendly, casual check-in message to spark conversation. Keep it brief (1-2 sentences), warm, and engaging. Don't be pushy or demanding."
	return g.smallTalk(ctx, persona, prompt, recentMessages)
}

// GenerateWellbeingNudge produces the DM sent to a user with an open
// wellbeing follow-up.
func (g *Generator) GenerateWellbeingNudge(ctx context.Context, persona *models.Persona) (string, error) {
	prompt := `Generate a warm, caring, and empathetic check-in message for someone who may be struggling. The message should:
- Be brief (2-3 sentences)
- Express genuine concern and care
- Ask how they're doing
- Be supportive without being pushy
- Encourage them to reach out if they need to talk
- Avoid being clinical or overly formal

Keep it personal and human-like.`
	return g.smallTalk(ctx, persona, prompt, nil)
}

func (g *Generator) smallTalk(ctx context.Context, persona *models.Persona, prompt string, recentMessages []string) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: PersonaPrompt(persona)},
	}
	if len(recentMessages) > 0 {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: "Recent channel messages for context:\n" + strings.Join(recentMessages, "\n"),
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.opts.CheckInModel,
		Messages:    messages,
		MaxTokens:   g.opts.MaxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("check-in generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("check-in generation returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// PersonaPrompt renders a persona into its system prompt.
func PersonaPrompt(p *models.Persona) string {
	if p == nil {
		return "You are a helpful and concise assistant."
	}
	prompt := fmt.Sprintf("You are %s %s.", p.Name, p.Description)
	if p.Mannerisms != "" {
		prompt += fmt.Sprintf(" These are your mannerisms, which you are confined to %s", p.Mannerisms)
	}
	if len(p.Sayings) > 0 {
		prompt += fmt.Sprintf(" The following are your sayings: %s.", strings.Join(p.Sayings, ", "))
	}
	if len(p.GeneratedPhrases) > 0 {
		prompt += fmt.Sprintf(" You'll generate your own phrases for: %s.", strings.Join(p.GeneratedPhrases, ", "))
	}
	return prompt
}

// FormatHistory renders stored turns the way the prompt expects them.
func FormatHistory(history []*models.HistoryEntry) string {
	var sb strings.Builder
	for _, item := range history {
		switch item.Type {
		case models.HistoryTypeUser:
			fmt.Fprintf(&sb, "User: %s\n%s\n", item.Username, item.Content)
		case models.HistoryTypeAssistant:
			fmt.Fprintf(&sb, "Assistant: %s\n", item.Content)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
