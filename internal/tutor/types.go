// Package tutor wraps the remote generative-AI service behind typed
// word-analysis, sentence-check, chat and media-synthesis operations.
package tutor

import (
	"errors"
	"fmt"
)

// Errors returned by gateway operations. Media synthesis never returns
// errors; see the best-effort contract on SynthesizeImage/SynthesizeSpeech.
var (
	// ErrLookup indicates a failed word analysis (network, malformed or
	// incomplete response, or empty input).
	ErrLookup = errors.New("word lookup failed")
	// ErrCheck indicates a failed sentence check.
	ErrCheck = errors.New("sentence check failed")
	// ErrChat indicates a failed chat turn.
	ErrChat = errors.New("chat turn failed")
)

// Articles accepted for German nouns. An empty article means the word is
// not a noun; it is never an error.
var validArticles = map[string]bool{"": true, "der": true, "die": true, "das": true}

// WordEntry is the structured analysis of a single German word.
// Field names follow the wire shape of the analysis response.
type WordEntry struct {
	Word                string `json:"word"`
	Article             string `json:"article,omitempty"`
	Type                string `json:"type"`
	MeaningBN           string `json:"meaning_bn"`
	MeaningEN           string `json:"meaning_en"`
	PluralOrConjugation string `json:"plural_or_conjugation"`
	PluralMeaningBN     string `json:"plural_meaning_bn"`
	Synonym             string `json:"synonym"`
	SynonymMeaningBN    string `json:"synonym_meaning_bn"`
	ExampleDE           string `json:"example_de"`
	ExampleBN           string `json:"example_bn"`
	ImagePrompt         string `json:"img_prompt"`
}

// Validate reports whether the entry is complete. Every field except the
// article is required; a partial response is rejected rather than passed
// through half-populated.
func (w WordEntry) Validate() error {
	required := map[string]string{
		"word":                  w.Word,
		"type":                  w.Type,
		"meaning_bn":            w.MeaningBN,
		"meaning_en":            w.MeaningEN,
		"plural_or_conjugation": w.PluralOrConjugation,
		"plural_meaning_bn":     w.PluralMeaningBN,
		"synonym":               w.Synonym,
		"synonym_meaning_bn":    w.SynonymMeaningBN,
		"example_de":            w.ExampleDE,
		"example_bn":            w.ExampleBN,
		"img_prompt":            w.ImagePrompt,
	}
	for field, value := range required {
		if value == "" {
			return fmt.Errorf("missing required field %q", field)
		}
	}
	if !validArticles[w.Article] {
		return fmt.Errorf("invalid article %q", w.Article)
	}
	return nil
}

// SentenceAnalysis is the result of checking one German sentence.
type SentenceAnalysis struct {
	IsCorrect   bool    `json:"isCorrect"`
	Corrected   string  `json:"corrected"`
	Explanation string  `json:"explanation"`
	Meaning     string  `json:"meaning"`
	Score       float64 `json:"score"`
}

// Validate reports whether the analysis is complete. The score is clamped
// to [0,100] rather than rejected; everything else is required.
func (s *SentenceAnalysis) Validate() error {
	if s.Corrected == "" {
		return fmt.Errorf("missing required field %q", "corrected")
	}
	if s.Explanation == "" {
		return fmt.Errorf("missing required field %q", "explanation")
	}
	if s.Meaning == "" {
		return fmt.Errorf("missing required field %q", "meaning")
	}
	if s.Score < 0 {
		s.Score = 0
	}
	if s.Score > 100 {
		s.Score = 100
	}
	return nil
}

// Media is a synthesized binary payload (image or audio) with its MIME type.
// Data is base64-encoded when serialized to JSON.
type Media struct {
	MIME string `json:"mime"`
	Data []byte `json:"data"`
}
