package ollama

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

func TestChatSendsDeterministicJSONRequest(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"llama3","message":{"role":"assistant","content":"{\"role\":\"other\"}"},"done":true}`))
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")
	out, err := p.Chat(context.Background(),
		[]llm.Message{{Role: "system", Content: "s"}, {Role: "model", Content: "m"}},
		llm.WithTemperature(0), llm.WithJSONMode(),
	)

	require.NoError(t, err)
	assert.Equal(t, `{"role":"other"}`, out)
	assert.Equal(t, "json", got["format"])
	assert.Equal(t, false, got["stream"])

	options := got["options"].(map[string]interface{})
	assert.Equal(t, 0.0, options["temperature"])

	messages := got["messages"].([]interface{})
	assert.Equal(t, "assistant", messages[1].(map[string]interface{})["role"])
}

func TestChatSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`model loading`))
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "llama3").Generate(context.Background(), "hola")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
