package journal

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/kljensen/snowball/english"
	"github.com/kris-hamade/project-b-r0/internal/models"
	"github.com/kris-hamade/project-b-r0/internal/storage"
	"go.uber.org/zap"
)

// NoDataFound is returned when no journal document matches the message.
const NoDataFound = "No DnD Data Found"

var tokenPattern = regexp.MustCompile(`[A-Za-z][A-Za-z']*`)

// Common words dropped before matching, plus campaign chatter that would
// otherwise match every document.
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "can": {}, "did": {}, "do": {}, "does": {}, "for": {},
	"from": {}, "had": {}, "has": {}, "have": {}, "he": {}, "her": {}, "his": {},
	"how": {}, "i": {}, "if": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"me": {}, "my": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {},
	"our": {}, "she": {}, "so": {}, "that": {}, "the": {}, "their": {},
	"them": {}, "then": {}, "there": {}, "they": {}, "this": {}, "to": {},
	"us": {}, "was": {}, "we": {}, "were": {}, "what": {}, "when": {},
	"where": {}, "which": {}, "who": {}, "why": {}, "will": {}, "with": {},
	"you": {}, "your": {}, "tell": {}, "about": {}, "know": {}, "remember": {},
}

// Searcher ranks campaign-journal documents against the tokens of a user
// message and returns the best matches as campaign data for the prompt.
type Searcher struct {
	store     storage.JournalStore
	charLimit int
	logger    *zap.Logger
}

func NewSearcher(store storage.JournalStore, charLimit int, logger *zap.Logger) *Searcher {
	if charLimit <= 0 {
		charLimit = 24000
	}
	return &Searcher{store: store, charLimit: charLimit, logger: logger}
}

type scoredDoc struct {
	Doc   *models.JournalDoc `json:"doc"`
	Count int                `json:"count"`
}

// Lookup tokenizes the input (plus the requesting player's nickname, so
// their own character's records surface), stems the tokens, and matches
// them against each document's name and bio.
func (s *Searcher) Lookup(ctx context.Context, input, nickname string) (string, error) {
	tokens := s.tokens(input, nickname)
	if len(tokens) == 0 {
		return NoDataFound, nil
	}

	docs, err := s.store.JournalDocs(ctx)
	if err != nil {
		return NoDataFound, err
	}

	// Large context windows can afford looser matching.
	minMatchCount := 2
	if s.charLimit >= 96000 {
		minMatchCount = 1
	}

	var relevant []scoredDoc
	for _, doc := range docs {
		stemmedName := stemWords(doc.Name)
		stemmedBio := stemWords(doc.Bio)

		matchCount := 0
		for _, token := range tokens {
			if strings.Contains(stemmedName, token) || strings.Contains(stemmedBio, token) {
				matchCount++
			}
		}
		if matchCount >= minMatchCount {
			relevant = append(relevant, scoredDoc{Doc: doc, Count: matchCount})
		}
	}
	if len(relevant) == 0 {
		return NoDataFound, nil
	}

	sort.SliceStable(relevant, func(i, j int) bool { return relevant[i].Count > relevant[j].Count })

	totalCharacters := 0
	var kept []scoredDoc
	for _, doc := range relevant {
		encoded, err := json.Marshal(doc)
		if err != nil {
			continue
		}
		if totalCharacters+len(encoded) > s.charLimit {
			break
		}
		totalCharacters += len(encoded)
		kept = append(kept, doc)
	}
	if len(kept) == 0 {
		return NoDataFound, nil
	}

	encoded, err := json.Marshal(kept)
	if err != nil {
		return NoDataFound, err
	}
	s.logger.Debug("Journal lookup matched documents",
		zap.Int("matched", len(kept)),
		zap.Int("characters", totalCharacters))
	return string(encoded), nil
}

func (s *Searcher) tokens(input, nickname string) []string {
	words := tokenPattern.FindAllString(input, -1)
	if nickname != "" {
		words = append(words, nickname)
	}

	seen := make(map[string]struct{})
	var tokens []string
	for _, w := range words {
		w = strings.ToLower(w)
		if _, stop := stopWords[w]; stop {
			continue
		}
		stemmed := english.Stem(w, false)
		if stemmed == "" {
			continue
		}
		if _, dup := seen[stemmed]; dup {
			continue
		}
		seen[stemmed] = struct{}{}
		tokens = append(tokens, stemmed)
	}
	return tokens
}

func stemWords(text string) string {
	words := tokenPattern.FindAllString(text, -1)
	stemmed := make([]string, 0, len(words))
	for _, w := range words {
		stemmed = append(stemmed, english.Stem(strings.ToLower(w), false))
	}
	return strings.Join(stemmed, " ")
}
