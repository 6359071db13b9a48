package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/wortschatz/internal/app"
	"github.com/fyrsmithlabs/wortschatz/internal/notebook"
	"github.com/fyrsmithlabs/wortschatz/internal/tutor"
)

// stubGateway scripts the tutor operations the handlers exercise.
type stubGateway struct {
	mu        sync.Mutex
	entries   map[string]tutor.WordEntry
	lookupErr error
	analysis  tutor.SentenceAnalysis
	checkErr  error
	reply     string
	chatErr   error
	image     *tutor.Media
	speech    *tutor.Media
}

func (g *stubGateway) AnalyzeWord(_ context.Context, term string) (tutor.WordEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lookupErr != nil {
		return tutor.WordEntry{}, g.lookupErr
	}
	e, ok := g.entries[term]
	if !ok {
		return tutor.WordEntry{}, tutor.ErrLookup
	}
	return e, nil
}

func (g *stubGateway) CheckSentence(_ context.Context, _ string) (tutor.SentenceAnalysis, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.checkErr != nil {
		return tutor.SentenceAnalysis{}, g.checkErr
	}
	return g.analysis, nil
}

func (g *stubGateway) Converse(context.Context, []tutor.Turn, string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chatErr != nil {
		return "", g.chatErr
	}
	return g.reply, nil
}

func (g *stubGateway) SynthesizeImage(context.Context, string) *tutor.Media {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.image
}

func (g *stubGateway) SynthesizeSpeech(context.Context, string) *tutor.Media {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.speech
}

func hausEntry() tutor.WordEntry {
	return tutor.WordEntry{
		Word:                "Haus",
		Article:             "der",
		Type:                "Noun",
		MeaningBN:           "বাড়ি",
		MeaningEN:           "house",
		PluralOrConjugation: "Häuser",
		PluralMeaningBN:     "বাড়িগুলো",
		Synonym:             "Heim",
		SynonymMeaningBN:    "ঘর",
		ExampleDE:           "Das Haus ist groß.",
		ExampleBN:           "বাড়িটি বড়।",
		ImagePrompt:         "a cozy house",
	}
}

func setupTestServer(t *testing.T) (*Server, *stubGateway) {
	t.Helper()
	g := &stubGateway{
		entries: map[string]tutor.WordEntry{"Haus": hausEntry()},
		reply:   "Sehr gut!",
		analysis: tutor.SentenceAnalysis{
			IsCorrect:   true,
			Corrected:   "Ich lerne Deutsch.",
			Explanation: "সঠিক বাক্য।",
			Meaning:     "আমি জার্মান শিখছি।",
			Score:       95,
		},
	}
	store, err := notebook.NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	controller, err := app.NewController(g, store, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	server, err := NewServer(controller, zap.NewNop(), nil)
	require.NoError(t, err)
	return server, g
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, _ := setupTestServer(t)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8787, server.config.Port)
	})

	t.Run("returns error when controller is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "controller cannot be nil")
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		store, err := notebook.NewStore(t.TempDir(), zap.NewNop())
		require.NoError(t, err)
		controller, err := app.NewController(&stubGateway{}, store, zap.NewNop())
		require.NoError(t, err)

		_, err = NewServer(controller, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})
}

func TestHandleHealth(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleMetrics(t *testing.T) {
	server, _ := setupTestServer(t)

	// Generate one request so the collectors have something to report.
	doJSON(t, server, http.MethodGet, "/health", nil)

	rec := doJSON(t, server, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wortschatz_http_requests_total")
}

func TestHandleSetView(t *testing.T) {
	server, _ := setupTestServer(t)

	t.Run("switches the active view", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPut, "/api/v1/view", ViewRequest{View: "notebook"})
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doJSON(t, server, http.MethodGet, "/api/v1/state", nil)
		var state app.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
		assert.Equal(t, app.ViewNotebook, state.ActiveView)
	})

	t.Run("rejects unknown views", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPut, "/api/v1/view", ViewRequest{View: "settings"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleSearch(t *testing.T) {
	t.Run("returns the analysis", func(t *testing.T) {
		server, _ := setupTestServer(t)

		rec := doJSON(t, server, http.MethodPost, "/api/v1/search", SearchRequest{Term: "Haus"})
		require.Equal(t, http.StatusOK, rec.Code)

		var entry tutor.WordEntry
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
		assert.Equal(t, "Haus", entry.Word)
		assert.Equal(t, "der", entry.Article)
	})

	t.Run("missing term is a local validation failure", func(t *testing.T) {
		server, _ := setupTestServer(t)

		rec := doJSON(t, server, http.MethodPost, "/api/v1/search", SearchRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("remote failure maps to bad gateway", func(t *testing.T) {
		server, g := setupTestServer(t)
		g.mu.Lock()
		g.lookupErr = tutor.ErrLookup
		g.mu.Unlock()

		rec := doJSON(t, server, http.MethodPost, "/api/v1/search", SearchRequest{Term: "Haus"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("result endpoint reports the image once it arrives", func(t *testing.T) {
		server, g := setupTestServer(t)
		g.mu.Lock()
		g.image = &tutor.Media{MIME: "image/png", Data: []byte("png-bytes")}
		g.mu.Unlock()

		rec := doJSON(t, server, http.MethodPost, "/api/v1/search", SearchRequest{Term: "Haus"})
		require.Equal(t, http.StatusOK, rec.Code)
		server.controller.Close()

		rec = doJSON(t, server, http.MethodGet, "/api/v1/search/result", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var state app.SearchState
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
		require.NotNil(t, state.Result)
		require.NotNil(t, state.Image)
		assert.Equal(t, []byte("png-bytes"), state.Image.Data)
	})
}

func TestHandleNotebook(t *testing.T) {
	server, _ := setupTestServer(t)

	t.Run("empty list", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodGet, "/api/v1/notebook", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	})

	t.Run("save requires a displayed result", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/api/v1/notebook", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	var savedID string

	t.Run("save the current lookup", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/api/v1/search", SearchRequest{Term: "Haus"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, server, http.MethodPost, "/api/v1/notebook", nil)
		require.Equal(t, http.StatusCreated, rec.Code)

		var saved notebook.SavedWord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
		assert.Equal(t, "Haus", saved.Word)
		require.NotEmpty(t, saved.ID)
		savedID = saved.ID
	})

	t.Run("duplicate save conflicts", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/api/v1/notebook", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("open a saved word", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/api/v1/notebook/"+savedID+"/open", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, server, http.MethodGet, "/api/v1/state", nil)
		var state app.Snapshot
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
		assert.Equal(t, app.ViewSearch, state.ActiveView)
	})

	t.Run("open unknown id", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/api/v1/notebook/missing/open", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodDelete, "/api/v1/notebook/"+savedID, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doJSON(t, server, http.MethodGet, "/api/v1/notebook", nil)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	})
}

func TestHandleCheck(t *testing.T) {
	t.Run("returns the analysis", func(t *testing.T) {
		server, _ := setupTestServer(t)

		rec := doJSON(t, server, http.MethodPost, "/api/v1/check", CheckRequest{Text: "Ich lerne Deutsch."})
		require.Equal(t, http.StatusOK, rec.Code)

		var analysis tutor.SentenceAnalysis
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
		assert.True(t, analysis.IsCorrect)
		assert.InDelta(t, 95, analysis.Score, 0.01)
	})

	t.Run("missing text is a local validation failure", func(t *testing.T) {
		server, _ := setupTestServer(t)

		rec := doJSON(t, server, http.MethodPost, "/api/v1/check", CheckRequest{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("remote failure maps to bad gateway", func(t *testing.T) {
		server, g := setupTestServer(t)
		g.mu.Lock()
		g.checkErr = tutor.ErrCheck
		g.mu.Unlock()

		rec := doJSON(t, server, http.MethodPost, "/api/v1/check", CheckRequest{Text: "Ich lerne."})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestHandleChat(t *testing.T) {
	server, g := setupTestServer(t)

	t.Run("send appends user message and reply", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/api/v1/chat", ChatRequest{Text: "Hallo!"})
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, server, http.MethodGet, "/api/v1/chat", nil)
		var msgs []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
		require.Len(t, msgs, 2)
		assert.Equal(t, "user", msgs[0]["role"])
		assert.Equal(t, "assistant", msgs[1]["role"])
	})

	t.Run("failed send keeps the user message", func(t *testing.T) {
		g.mu.Lock()
		g.chatErr = tutor.ErrChat
		g.mu.Unlock()

		rec := doJSON(t, server, http.MethodPost, "/api/v1/chat", ChatRequest{Text: "Noch da?"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		rec = doJSON(t, server, http.MethodGet, "/api/v1/chat", nil)
		var msgs []map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
		require.Len(t, msgs, 3)
		assert.Equal(t, "user", msgs[2]["role"])
	})

	t.Run("reset clears the transcript", func(t *testing.T) {
		rec := doJSON(t, server, http.MethodPost, "/api/v1/chat/reset", nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doJSON(t, server, http.MethodGet, "/api/v1/chat", nil)
		assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
	})
}

func TestHandleSpeech(t *testing.T) {
	t.Run("returns raw audio", func(t *testing.T) {
		server, g := setupTestServer(t)
		g.mu.Lock()
		g.speech = &tutor.Media{MIME: "audio/L16;rate=24000", Data: []byte("pcm")}
		g.mu.Unlock()

		rec := doJSON(t, server, http.MethodPost, "/api/v1/speech", SpeechRequest{Text: "Haus"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "audio/L16;rate=24000", rec.Header().Get(echo.HeaderContentType))
		assert.Equal(t, []byte("pcm"), rec.Body.Bytes())
	})

	t.Run("no audio answers no content", func(t *testing.T) {
		server, _ := setupTestServer(t)

		rec := doJSON(t, server, http.MethodPost, "/api/v1/speech", SpeechRequest{Text: "Haus"})
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.Bytes())
	})
}

func TestHandleSuggestions(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/suggestions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SuggestionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Terms, 8)
	assert.Contains(t, resp.Terms, "Haus")
}

func TestShutdown(t *testing.T) {
	server, _ := setupTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Shutdown(ctx))
}
