package tutor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
	"go.uber.org/zap"
)

const hausJSON = `{
	"word": "Haus",
	"article": "der",
	"type": "Noun",
	"meaning_bn": "বাড়ি",
	"meaning_en": "house",
	"plural_or_conjugation": "die Häuser",
	"plural_meaning_bn": "বাড়িগুলো",
	"synonym": "das Gebäude",
	"synonym_meaning_bn": "ভবন",
	"example_de": "Das Haus ist groß.",
	"example_bn": "বাড়িটি বড়।",
	"img_prompt": "a cozy German house"
}`

// fakeModel records calls and replays a canned completion.
type fakeModel struct {
	content  string
	err      error
	calls    int
	messages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.calls++
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: f.content}},
	}, nil
}

func testConfig() Config {
	return Config{
		AnalysisModel:  "analysis-model",
		ChatModel:      "chat-model",
		ImageModel:     "image-model",
		SpeechModel:    "speech-model",
		RequestTimeout: 5 * time.Second,
	}
}

func newTestGateway(t *testing.T, model Model) *Gateway {
	t.Helper()
	g, err := NewGateway(model, testConfig(), zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestNewGateway(t *testing.T) {
	t.Run("requires a model", func(t *testing.T) {
		_, err := NewGateway(nil, testConfig(), zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := testConfig()
		cfg.ChatModel = ""
		_, err := NewGateway(&fakeModel{}, cfg, zap.NewNop())
		assert.Error(t, err)
	})
}

func TestAnalyzeWord(t *testing.T) {
	t.Run("returns a complete entry", func(t *testing.T) {
		model := &fakeModel{content: hausJSON}
		g := newTestGateway(t, model)

		entry, err := g.AnalyzeWord(context.Background(), "Haus")
		require.NoError(t, err)
		assert.Equal(t, "Haus", entry.Word)
		assert.Equal(t, "der", entry.Article)
		assert.Equal(t, "house", entry.MeaningEN)
		assert.Equal(t, "a cozy German house", entry.ImagePrompt)
		assert.Equal(t, 1, model.calls)
	})

	t.Run("accepts fenced JSON", func(t *testing.T) {
		model := &fakeModel{content: "```json\n" + hausJSON + "\n```"}
		g := newTestGateway(t, model)

		entry, err := g.AnalyzeWord(context.Background(), "Haus")
		require.NoError(t, err)
		assert.Equal(t, "Haus", entry.Word)
	})

	t.Run("rejects empty term without a remote call", func(t *testing.T) {
		model := &fakeModel{content: hausJSON}
		g := newTestGateway(t, model)

		_, err := g.AnalyzeWord(context.Background(), "   ")
		assert.ErrorIs(t, err, ErrLookup)
		assert.Equal(t, 0, model.calls)
	})

	t.Run("rejects incomplete responses", func(t *testing.T) {
		model := &fakeModel{content: `{"word": "Haus", "type": "Noun"}`}
		g := newTestGateway(t, model)

		_, err := g.AnalyzeWord(context.Background(), "Haus")
		assert.ErrorIs(t, err, ErrLookup)
	})

	t.Run("rejects invalid article", func(t *testing.T) {
		model := &fakeModel{content: `{
			"word": "Haus", "article": "los", "type": "Noun",
			"meaning_bn": "x", "meaning_en": "x",
			"plural_or_conjugation": "x", "plural_meaning_bn": "x",
			"synonym": "x", "synonym_meaning_bn": "x",
			"example_de": "x", "example_bn": "x", "img_prompt": "x"
		}`}
		g := newTestGateway(t, model)

		_, err := g.AnalyzeWord(context.Background(), "Haus")
		assert.ErrorIs(t, err, ErrLookup)
	})

	t.Run("missing article means not a noun", func(t *testing.T) {
		model := &fakeModel{content: `{
			"word": "lernen", "type": "Verb",
			"meaning_bn": "শেখা", "meaning_en": "to learn",
			"plural_or_conjugation": "lernt / lernte / gelernt", "plural_meaning_bn": "x",
			"synonym": "studieren", "synonym_meaning_bn": "x",
			"example_de": "Ich lerne Deutsch.", "example_bn": "x", "img_prompt": "x"
		}`}
		g := newTestGateway(t, model)

		entry, err := g.AnalyzeWord(context.Background(), "lernen")
		require.NoError(t, err)
		assert.Empty(t, entry.Article)
	})

	t.Run("wraps remote failures", func(t *testing.T) {
		model := &fakeModel{err: errors.New("connection refused")}
		g := newTestGateway(t, model)

		_, err := g.AnalyzeWord(context.Background(), "Haus")
		assert.ErrorIs(t, err, ErrLookup)
	})
}

func TestCheckSentence(t *testing.T) {
	t.Run("returns the analysis", func(t *testing.T) {
		model := &fakeModel{content: `{
			"isCorrect": false,
			"corrected": "Ich gehe nach Hause.",
			"explanation": "ক্রিয়ার রূপ ভুল ছিল।",
			"meaning": "আমি বাড়ি যাচ্ছি।",
			"score": 60
		}`}
		g := newTestGateway(t, model)

		analysis, err := g.CheckSentence(context.Background(), "Ich bin gehen nach Hause.")
		require.NoError(t, err)
		assert.False(t, analysis.IsCorrect)
		assert.Equal(t, "Ich gehe nach Hause.", analysis.Corrected)
		assert.InDelta(t, 60, analysis.Score, 0.001)
	})

	t.Run("empty input never reaches the model", func(t *testing.T) {
		model := &fakeModel{}
		g := newTestGateway(t, model)

		_, err := g.CheckSentence(context.Background(), "")
		assert.ErrorIs(t, err, ErrCheck)
		assert.Equal(t, 0, model.calls)

		_, err = g.CheckSentence(context.Background(), "  \n\t ")
		assert.ErrorIs(t, err, ErrCheck)
		assert.Equal(t, 0, model.calls)
	})

	t.Run("clamps out-of-range scores", func(t *testing.T) {
		model := &fakeModel{content: `{
			"isCorrect": true, "corrected": "Das ist gut.",
			"explanation": "x", "meaning": "x", "score": 130
		}`}
		g := newTestGateway(t, model)

		analysis, err := g.CheckSentence(context.Background(), "Das ist gut.")
		require.NoError(t, err)
		assert.InDelta(t, 100, analysis.Score, 0.001)
	})

	t.Run("rejects incomplete responses", func(t *testing.T) {
		model := &fakeModel{content: `{"isCorrect": true, "score": 90}`}
		g := newTestGateway(t, model)

		_, err := g.CheckSentence(context.Background(), "Das ist gut.")
		assert.ErrorIs(t, err, ErrCheck)
	})
}

func TestConverse(t *testing.T) {
	t.Run("sends system prompt, history, then the new message", func(t *testing.T) {
		model := &fakeModel{content: "Sehr gut!"}
		g := newTestGateway(t, model)

		history := []Turn{
			{Role: RoleUser, Text: "Wie sagt man 'house'?"},
			{Role: RoleAssistant, Text: "Das Haus."},
		}
		reply, err := g.Converse(context.Background(), history, "Danke!")
		require.NoError(t, err)
		assert.Equal(t, "Sehr gut!", reply)

		require.Len(t, model.messages, 4)
		assert.Equal(t, schema.ChatMessageTypeSystem, model.messages[0].Role)
		assert.Equal(t, schema.ChatMessageTypeHuman, model.messages[1].Role)
		assert.Equal(t, schema.ChatMessageTypeAI, model.messages[2].Role)
		assert.Equal(t, schema.ChatMessageTypeHuman, model.messages[3].Role)
	})

	t.Run("rejects empty messages locally", func(t *testing.T) {
		model := &fakeModel{content: "x"}
		g := newTestGateway(t, model)

		_, err := g.Converse(context.Background(), nil, "  ")
		assert.ErrorIs(t, err, ErrChat)
		assert.Equal(t, 0, model.calls)
	})

	t.Run("wraps remote failures", func(t *testing.T) {
		model := &fakeModel{err: errors.New("boom")}
		g := newTestGateway(t, model)

		_, err := g.Converse(context.Background(), nil, "Hallo")
		assert.ErrorIs(t, err, ErrChat)
	})
}
