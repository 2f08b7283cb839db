package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedChat struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"messages"`
}

func newTestServer(t *testing.T, h http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewOpenAI(OpenAIOptions{APIKey: "test", BaseURL: srv.URL + "/v1", Referrer: "https://example.org", Title: "role-chatter"})
}

func chatReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",`+
		`"choices":[{"index":0,"message":{"role":"assistant","content":`+strconvQuote(content)+`},"finish_reason":"stop"}],`+
		`"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestOpenAI_CompletePrependsSystemPrompt(t *testing.T) {
	var got capturedChat
	var headers http.Header
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chatReply(w, "您好")
	})

	resp, err := c.Complete(context.Background(), "你是管家", []Message{{Role: RoleUser, Content: "Hello"}})
	require.NoError(t, err)
	assert.Equal(t, "您好", resp.Content)
	assert.Equal(t, defaultChatModel, resp.Model)
	assert.Equal(t, 4, resp.TotalTokens)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.JSONEq(t, `"你是管家"`, string(got.Messages[0].Content))
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.InDelta(t, chatTemperature, got.Temperature, 1e-6)
	assert.Equal(t, "https://example.org", headers.Get("HTTP-Referer"))
	assert.Equal(t, "role-chatter", headers.Get("X-Title"))
}

func TestOpenAI_CompleteFailureIsProviderError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"quota","type":"rate_limit"}}`)
	})

	_, err := c.Complete(context.Background(), "", []Message{{Role: RoleUser, Content: "x"}})
	require.Error(t, err)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, OpChat, pe.Op)
}

func TestOpenAI_Transcribe(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, defaultTranscribeModel, r.FormValue("model"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "voice.ogg", hdr.Filename)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  你好  "}`)
	})

	text, err := c.Transcribe(context.Background(), []byte("OggS"), "")
	require.NoError(t, err)
	assert.Equal(t, "你好", text)
}

func TestOpenAI_DescribeSendsDataURL(t *testing.T) {
	var body string
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		chatReply(w, " 一隻貓 ")
	})

	text, err := c.Describe(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png", "描述圖片")
	require.NoError(t, err)
	assert.Equal(t, "一隻貓", text)
	assert.True(t, strings.Contains(body, "data:image/png;base64,"), body)
	assert.Contains(t, body, defaultVisionModel)
	assert.Contains(t, body, "描述圖片")
}

func TestOpenAI_Synthesize(t *testing.T) {
	var req map[string]any
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/speech", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "audio/ogg")
		_, _ = w.Write([]byte("OggS-audio"))
	})

	audio, err := c.Synthesize(context.Background(), "晚安", "alloy", 1.25)
	require.NoError(t, err)
	assert.Equal(t, []byte("OggS-audio"), audio)
	assert.Equal(t, "alloy", req["voice"])
	assert.Equal(t, "opus", req["response_format"])
	assert.InDelta(t, 1.25, req["speed"], 1e-9)
}
