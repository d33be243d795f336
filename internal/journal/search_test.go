package journal

import (
	"context"
	"strings"
	"testing"

	"github.com/kris-hamade/project-b-r0/internal/models"
	"github.com/kris-hamade/project-b-r0/internal/storage"
	"go.uber.org/zap"
)

func seededSearcher(charLimit int) *Searcher {
	store := storage.NewMemoryStorage()
	store.SeedJournalDoc(&models.JournalDoc{
		Name: "Karnath the Lich King",
		Bio:  "Karnath rules the northern wastes and commands an undead legion.",
	})
	store.SeedJournalDoc(&models.JournalDoc{
		Name: "Pip Copperkettle",
		Bio:  "A halfling tinkerer who repaired B-r0's voice box in Daggerford.",
	})
	return NewSearcher(store, charLimit, zap.NewNop())
}

func TestLookupMatchesRelevantDoc(t *testing.T) {
	s := seededSearcher(24000)

	result, err := s.Lookup(context.Background(), "what do we know about Karnath and his undead legion?", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if result == NoDataFound {
		t.Fatal("expected a match")
	}
	if !strings.Contains(result, "Karnath") {
		t.Errorf("result missing the matched document: %s", result)
	}
	if strings.Contains(result, "Copperkettle") {
		t.Errorf("unrelated document leaked into the result")
	}
}

func TestLookupRequiresMultipleMatches(t *testing.T) {
	s := seededSearcher(24000)

	// A single overlapping token is not enough at the default char limit.
	result, err := s.Lookup(context.Background(), "anything about legions?", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if result != NoDataFound {
		t.Errorf("expected no data for a single-token match, got %s", result)
	}
}

func TestLookupLoosensWithLargeBudget(t *testing.T) {
	s := seededSearcher(100000)

	result, err := s.Lookup(context.Background(), "anything about legions?", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if result == NoDataFound {
		t.Error("expected a single-token match with a large context budget")
	}
}

func TestLookupStemsTokens(t *testing.T) {
	s := seededSearcher(24000)

	// "ruling" and "commanding" stem to the bio's "rules" and "commands".
	result, err := s.Lookup(context.Background(), "who is ruling the wastes and commanding the dead?", "Alice")
	if err != nil {
		t.Fatal(err)
	}
	if result == NoDataFound {
		t.Error("expected stemmed tokens to match")
	}
}

func TestLookupEmptyInput(t *testing.T) {
	s := seededSearcher(24000)

	result, err := s.Lookup(context.Background(), "the and of", "")
	if err != nil {
		t.Fatal(err)
	}
	if result != NoDataFound {
		t.Errorf("expected no data for stopword-only input, got %s", result)
	}
}
