package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kris-hamade/project-b-r0/internal/models"
	"go.uber.org/zap"
)

func TestPersonaPrompt(t *testing.T) {
	if got := PersonaPrompt(nil); got != "You are a helpful and concise assistant." {
		t.Errorf("unexpected nil-persona prompt %q", got)
	}

	p := &models.Persona{
		Name:             "B-r0",
		Description:      ", a rickety warforged bard",
		Mannerisms:       "speaks in bursts of static",
		Sayings:          []string{"BZZT", "recalibrating"},
		GeneratedPhrases: []string{"battle cries"},
	}
	got := PersonaPrompt(p)
	for _, want := range []string{"You are B-r0", "rickety warforged bard", "static", "BZZT, recalibrating", "battle cries"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q: %s", want, got)
		}
	}
}

func newSearchGenerator(t *testing.T, handler http.HandlerFunc) (*Generator, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	g := NewGenerator("test-key", Options{
		SearchModel:   "gpt-4o-search-preview",
		SearchTimeout: 2 * time.Second,
	}, zap.NewNop())
	g.searchBaseURL = srv.URL
	return g, srv
}

func TestGenerateAppendsSearchCitations(t *testing.T) {
	g, srv := newSearchGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{
			"content":"The session is Friday.",
			"annotations":[
				{"type":"url_citation","url_citation":{"url":"https://example.com/a","title":"Example A"}},
				{"type":"url_citation","url_citation":{"url":"https://example.com/b","title":"Example B"}}
			]}}]}`))
	})
	defer srv.Close()

	got := g.Generate(context.Background(), PromptContext{
		Prompt:   "when is the session?",
		Nickname: "Alice",
		Model:    "gpt-4o-search-preview",
	})
	if !strings.HasPrefix(got, "The session is Friday.") {
		t.Errorf("unexpected reply %q", got)
	}
	want := "Sources: <https://example.com/a> (Example A), <https://example.com/b> (Example B)"
	if !strings.Contains(got, want) {
		t.Errorf("citations missing: %q", got)
	}
}

func TestGenerateSearchWithoutAnnotations(t *testing.T) {
	g, srv := newSearchGenerator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"Just an answer."}}]}`))
	})
	defer srv.Close()

	got := g.Generate(context.Background(), PromptContext{
		Prompt:   "hi",
		Nickname: "Alice",
		Model:    "gpt-4o-search-preview",
	})
	if got != "Just an answer." {
		t.Errorf("expected the plain content, got %q", got)
	}
}

func TestWithCitationsSkipsEmptyURLs(t *testing.T) {
	msg := &searchMessage{
		Content: "text",
		Annotations: []searchAnnotation{
			{Type: "url_citation"},
			{Type: "url_citation", URLCitation: urlCitation{URL: "https://example.com", Title: "Example"}},
		},
	}
	got := withCitations(msg)
	if got != "text\n\nSources: <https://example.com> (Example)" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestFormatHistory(t *testing.T) {
	history := []*models.HistoryEntry{
		{Type: models.HistoryTypeUser, Username: "Alice", Content: "who is the lich?"},
		{Type: models.HistoryTypeAssistant, Content: "Karnath, of the northern wastes."},
		{Type: "unknown", Content: "dropped"},
	}
	got := FormatHistory(history)
	want := "User: Alice\nwho is the lich?\nAssistant: Karnath, of the northern wastes."
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if strings.Contains(got, "dropped") {
		t.Errorf("unknown turn types should be skipped")
	}
}
