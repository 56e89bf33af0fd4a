package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"safebot-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatRequestShape(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hola"}}]}`))
	}))
	defer srv.Close()

	p := NewProvider("secret", srv.URL, "gpt-4o")
	out, err := p.Generate(context.Background(), "hola", llm.WithTemperature(0), llm.WithJSONMode())

	require.NoError(t, err)
	assert.Equal(t, "hola", out)
	assert.Equal(t, "gpt-4o", got["model"])
	assert.Equal(t, 0.0, got["temperature"])
	assert.Equal(t, map[string]interface{}{"type": "json_object"}, got["response_format"])
}

func TestChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[],"error":{"message":"quota"}}`))
	}))
	defer srv.Close()

	_, err := NewProvider("", srv.URL, "m").Generate(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}
