package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"screenmind/api/internal/vision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model     string `json:"model"`
	MaxTokens int    `json:"max_tokens"`
	Messages  []struct {
		Role    string `json:"role"`
		Content []struct {
			Type     string `json:"type"`
			Text     string `json:"text"`
			ImageURL struct {
				URL string `json:"url"`
			} `json:"image_url"`
		} `json:"content"`
	} `json:"messages"`
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "qwen-vl-plus",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
	return string(b)
}

func qwen(t *testing.T) vision.ProviderConfig {
	t.Helper()
	p, ok := vision.Lookup(vision.Qwen)
	require.True(t, ok)
	return p
}

func TestGenerate_RequestShape(t *testing.T) {
	var got chatRequest
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion("  题目类型：判断题\n正确答案：对  "))
	}))
	defer srv.Close()

	png, err := vision.BlankPNG(10, 10)
	require.NoError(t, err)

	c := New(qwen(t), "sk-test", WithBaseURL(srv.URL))
	txt, err := c.Generate(context.Background(), png, "describe", "qwen-vl-plus")
	require.NoError(t, err)

	assert.Equal(t, "题目类型：判断题\n正确答案：对", txt)
	assert.True(t, strings.HasSuffix(path, "/chat/completions"))
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "qwen-vl-plus", got.Model)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, "text", got.Messages[0].Content[0].Type)
	assert.Equal(t, "describe", got.Messages[0].Content[0].Text)
	assert.Equal(t, "image_url", got.Messages[0].Content[1].Type)
	assert.True(t, strings.HasPrefix(got.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestGenerate_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   vision.Kind
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`, vision.KindUnauthenticated},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached","type":"requests"}}`, vision.KindRateLimited},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"upstream exploded","type":"server_error"}}`, vision.KindProvider},
		{"non-json error", http.StatusBadGateway, `<html>bad gateway</html>`, vision.KindProvider},
	}
	png, _ := vision.BlankPNG(2, 2)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := New(qwen(t), "sk", WithBaseURL(srv.URL))
			_, err := c.Generate(context.Background(), png, "p", "qwen-vl-max")
			var ve *vision.Error
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.want, ve.Kind)
			assert.Equal(t, tt.status, ve.Status)
		})
	}
}

func TestGenerate_EmptyContentIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion("   "))
	}))
	defer srv.Close()

	png, _ := vision.BlankPNG(2, 2)
	_, err := New(qwen(t), "sk", WithBaseURL(srv.URL)).Generate(context.Background(), png, "p", "qwen-vl-plus")
	var ve *vision.Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, vision.KindMalformedResponse, ve.Kind)
}

func TestGenerate_ClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	png, _ := vision.BlankPNG(2, 2)
	c := New(qwen(t), "sk", WithBaseURL(srv.URL), WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	_, err := c.Generate(context.Background(), png, "p", "qwen-vl-plus")
	var ve *vision.Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, vision.KindTimeout, ve.Kind)
}

func TestGenerate_NoNetworkOnInvalidImage(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer srv.Close()

	_, err := New(qwen(t), "sk", WithBaseURL(srv.URL)).Generate(context.Background(), []byte("garbage"), "p", "qwen-vl-plus")
	var ve *vision.Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, vision.KindInvalidImage, ve.Kind)
	assert.Zero(t, hits.Load())
}
