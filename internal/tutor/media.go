package tutor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// defaultMediaBaseURL is the Gemini REST endpoint. Image and speech
// synthesis return binary inlineData payloads that the langchaingo text
// abstraction cannot carry, so these two operations speak the wire format
// directly.
const defaultMediaBaseURL = "https://generativelanguage.googleapis.com"

const speechVoice = "Kore"

// mediaClient issues generateContent calls that produce binary media.
// Every method is best effort: failures are logged and come back as nil.
type mediaClient struct {
	baseURL     string
	apiKey      string
	imageModel  string
	speechModel string
	httpClient  *http.Client
	logger      *zap.Logger
}

func newMediaClient(cfg Config, logger *zap.Logger) *mediaClient {
	baseURL := cfg.MediaBaseURL
	if baseURL == "" {
		baseURL = defaultMediaBaseURL
	}
	return &mediaClient{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		imageModel:  cfg.ImageModel,
		speechModel: cfg.SpeechModel,
		httpClient:  &http.Client{},
		logger:      logger,
	}
}

// generateRequest is the wire request for a media generateContent call.
type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities,omitempty"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// generateResponse is the wire response, including the API error envelope.
type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (m *mediaClient) synthesizeImage(ctx context.Context, prompt string) *Media {
	req := generateRequest{
		Contents: []content{{Parts: []part{{
			Text: "A high quality, clear educational illustration of: " + prompt,
		}}}},
	}
	return m.generate(ctx, m.imageModel, req, "image")
}

func (m *mediaClient) synthesizeSpeech(ctx context.Context, text string) *Media {
	req := generateRequest{
		Contents: []content{{Parts: []part{{
			Text: "Say clearly in German: " + text,
		}}}},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: speechVoice},
				},
			},
		},
	}
	return m.generate(ctx, m.speechModel, req, "speech")
}

// generate performs one media call and extracts the first inline payload.
func (m *mediaClient) generate(ctx context.Context, model string, reqBody generateRequest, kind string) *Media {
	if model == "" {
		return nil
	}

	start := time.Now()
	payload, err := json.Marshal(reqBody)
	if err != nil {
		m.logger.Warn("media synthesis failed", zap.String("kind", kind), zap.Error(err))
		return nil
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", m.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		m.logger.Warn("media synthesis failed", zap.String("kind", kind), zap.Error(err))
		return nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", m.apiKey)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		m.logger.Warn("media synthesis failed", zap.String("kind", kind), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		m.logger.Warn("media synthesis failed",
			zap.String("kind", kind),
			zap.Int("status", resp.StatusCode),
			zap.Error(err),
		)
		return nil
	}
	if decoded.Error != nil {
		m.logger.Warn("media synthesis rejected",
			zap.String("kind", kind),
			zap.Int("code", decoded.Error.Code),
			zap.String("message", decoded.Error.Message),
		)
		return nil
	}

	for _, candidate := range decoded.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				m.logger.Warn("media synthesis returned undecodable payload",
					zap.String("kind", kind), zap.Error(err))
				return nil
			}
			m.logger.Debug("media synthesized",
				zap.String("kind", kind),
				zap.String("mime", p.InlineData.MIMEType),
				zap.Int("bytes", len(data)),
				zap.Duration("duration", time.Since(start)),
			)
			return &Media{MIME: p.InlineData.MIMEType, Data: data}
		}
	}

	m.logger.Warn("media synthesis produced no inline payload",
		zap.String("kind", kind), zap.Int("status", resp.StatusCode))
	return nil
}
