package zerolog_config

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestElasticsearchWriter(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	n, err := ElasticsearchWriter{URL: srv.URL + "/logs"}.Write([]byte(`{"msg":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, 12, n)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/logs/_doc", path)
	assert.JSONEq(t, `{"msg":"hi"}`, string(body))
}

func TestElasticsearchWriterRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := ElasticsearchWriter{URL: srv.URL}.Write([]byte(`{}`))
	assert.ErrorContains(t, err, "400")
}

func TestNewLoggerConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "", "logs")
	logger.Info().Str("patient_id", "p-1").Msg("evaluated")
	assert.Contains(t, buf.String(), "evaluated")
	assert.Contains(t, buf.String(), "p-1")
}

func TestStartupWithEnvRequiresIndex(t *testing.T) {
	assert.Error(t, StartupWithEnv("", "", "info"))
}
