package tutor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

// chatSystemPrompt fixes the tutoring persona for the conversational
// assistant. Replies are in Bengali with German used for examples.
const chatSystemPrompt = "You are a helpful and friendly German language tutor. " +
	"Your goal is to help users learn German by answering their questions about " +
	"grammar, vocabulary, culture, and pronunciation. Always respond in Bengali, " +
	"but use German words and sentences for examples. Be encouraging and provide " +
	"clear explanations."

const analysisPromptTemplate = `Analyze German word: %q. Include article for nouns, plural forms, and simple examples. Use Bengali for meanings and explanations.
Respond with a single JSON object with exactly these keys:
"word" (the German word), "article" ("der", "die" or "das" for nouns, empty string otherwise), "type" (part of speech, e.g. Noun, Verb, Adjective), "meaning_bn", "meaning_en", "plural_or_conjugation", "plural_meaning_bn", "synonym", "synonym_meaning_bn", "example_de", "example_bn", "img_prompt" (a prompt for an image generator representing this word).`

const checkPromptTemplate = `Check this German sentence for grammar and logic: %q. Provide correction and explanation in Bengali.
Respond with a single JSON object with exactly these keys:
"isCorrect" (boolean), "corrected" (the corrected sentence, equal to the input if already correct), "explanation", "meaning", "score" (accuracy from 0 to 100).`

// Model is the subset of langchaingo's llms.Model the gateway needs.
// Satisfied by every langchaingo backend; tests inject fakes.
type Model interface {
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior exchange entry carried with a chat request. The remote
// service is stateless; every turn resends the running transcript.
type Turn struct {
	Role Role
	Text string
}

// Config holds gateway configuration.
type Config struct {
	// AnalysisModel and ChatModel name the generative models used for the
	// structured text operations.
	AnalysisModel string
	ChatModel     string

	// ImageModel and SpeechModel name the media-capable models reached
	// through the REST endpoint (see media.go).
	ImageModel  string
	SpeechModel string

	// MediaBaseURL is the REST endpoint base for media synthesis.
	MediaBaseURL string
	// APIKey authorizes media synthesis calls.
	APIKey string

	// RequestTimeout bounds every remote call so a hung backend cannot pin
	// a view's controls forever.
	RequestTimeout time.Duration
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.AnalysisModel == "" || c.ChatModel == "" {
		return fmt.Errorf("analysis and chat model names are required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	return nil
}

// Gateway shapes requests to the remote tutoring service and validates its
// responses. All four operations are stateless and independently fallible;
// retrying is the caller's decision.
type Gateway struct {
	model  Model
	media  *mediaClient
	config Config
	logger *zap.Logger
}

// NewGateway creates a gateway on top of a langchaingo model.
func NewGateway(model Model, cfg Config, logger *zap.Logger) (*Gateway, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Gateway{
		model:  model,
		media:  newMediaClient(cfg, logger),
		config: cfg,
		logger: logger,
	}, nil
}

// AnalyzeWord looks up a single German word and returns its full analysis.
// Incomplete responses are an ErrLookup, never a partial result.
func (g *Gateway) AnalyzeWord(ctx context.Context, term string) (WordEntry, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return WordEntry{}, fmt.Errorf("%w: empty term", ErrLookup)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.RequestTimeout)
	defer cancel()

	start := time.Now()
	raw, err := g.generateJSON(ctx, g.config.AnalysisModel, fmt.Sprintf(analysisPromptTemplate, term))
	if err != nil {
		return WordEntry{}, fmt.Errorf("%w: %v", ErrLookup, err)
	}

	var entry WordEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return WordEntry{}, fmt.Errorf("%w: decoding response: %v", ErrLookup, err)
	}
	if err := entry.Validate(); err != nil {
		return WordEntry{}, fmt.Errorf("%w: %v", ErrLookup, err)
	}

	g.logger.Debug("word analyzed",
		zap.String("term", term),
		zap.String("article", entry.Article),
		zap.Duration("duration", time.Since(start)),
	)
	return entry, nil
}

// CheckSentence analyzes one German sentence for grammar and logic. Empty
// input is rejected locally without a remote call.
func (g *Gateway) CheckSentence(ctx context.Context, text string) (SentenceAnalysis, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SentenceAnalysis{}, fmt.Errorf("%w: empty sentence", ErrCheck)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.RequestTimeout)
	defer cancel()

	raw, err := g.generateJSON(ctx, g.config.AnalysisModel, fmt.Sprintf(checkPromptTemplate, text))
	if err != nil {
		return SentenceAnalysis{}, fmt.Errorf("%w: %v", ErrCheck, err)
	}

	var analysis SentenceAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return SentenceAnalysis{}, fmt.Errorf("%w: decoding response: %v", ErrCheck, err)
	}
	if err := analysis.Validate(); err != nil {
		return SentenceAnalysis{}, fmt.Errorf("%w: %v", ErrCheck, err)
	}

	return analysis, nil
}

// Converse performs one chat turn: the fixed system instruction, the running
// transcript, then the new user message. Returns the assistant's reply text.
func (g *Gateway) Converse(ctx context.Context, history []Turn, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty message", ErrChat)
	}

	ctx, cancel := context.WithTimeout(ctx, g.config.RequestTimeout)
	defer cancel()

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeSystem, chatSystemPrompt))
	for _, turn := range history {
		role := schema.ChatMessageTypeHuman
		if turn.Role == RoleAssistant {
			role = schema.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Text))
	}
	messages = append(messages, llms.TextParts(schema.ChatMessageTypeHuman, text))

	resp, err := g.model.GenerateContent(ctx, messages, llms.WithModel(g.config.ChatModel))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrChat, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrChat)
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// SynthesizeImage renders an illustrative image for a prompt. Best effort:
// any failure yields nil, never an error the caller must surface.
func (g *Gateway) SynthesizeImage(ctx context.Context, prompt string) *Media {
	if strings.TrimSpace(prompt) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.config.RequestTimeout)
	defer cancel()
	return g.media.synthesizeImage(ctx, prompt)
}

// SynthesizeSpeech renders German speech audio for a text. Same best-effort
// contract as SynthesizeImage.
func (g *Gateway) SynthesizeSpeech(ctx context.Context, text string) *Media {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.config.RequestTimeout)
	defer cancel()
	return g.media.synthesizeSpeech(ctx, text)
}

// generateJSON runs a single JSON-mode completion and returns the raw JSON
// document from the first choice.
func (g *Gateway) generateJSON(ctx context.Context, model, prompt string) ([]byte, error) {
	resp, err := g.model.GenerateContent(ctx,
		[]llms.MessageContent{llms.TextParts(schema.ChatMessageTypeHuman, prompt)},
		llms.WithModel(model),
		llms.WithJSONMode(),
	)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	return []byte(extractJSON(resp.Choices[0].Content)), nil
}

// extractJSON strips the markdown fences some models wrap around JSON-mode
// output.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
