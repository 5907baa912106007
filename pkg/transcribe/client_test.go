package transcribe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleResponse = `{
	"metadata": {"duration": 12.5},
	"results": {"channels": [{"alternatives": [{
		"transcript": "hello there general kenobi",
		"words": [
			{"word": "hello", "punctuated_word": "Hello", "speaker": 0},
			{"word": "there", "punctuated_word": "there.", "speaker": 0},
			{"word": "general", "punctuated_word": "General", "speaker": 1},
			{"word": "kenobi", "punctuated_word": "Kenobi.", "speaker": 1}
		]
	}]}]}
}`

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestTranscribeBytes(t *testing.T) {
	var gotAuth, gotContentType, gotQuery string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotQuery = r.URL.RawQuery
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	client, err := New("dg-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	result, err := client.TranscribeBytes(context.Background(), []byte("RIFFdata"), "audio/wav")
	require.NoError(t, err)

	assert.Equal(t, "Token dg-key", gotAuth)
	assert.Equal(t, "audio/wav", gotContentType)
	assert.Equal(t, []byte("RIFFdata"), gotBody)
	assert.Contains(t, gotQuery, "diarize=true")
	assert.Contains(t, gotQuery, "smart_format=true")
	assert.Contains(t, gotQuery, "punctuate=true")

	assert.Equal(t, "SPEAKER_0: Hello there.\nSPEAKER_1: General Kenobi.", result.Transcript)
	assert.Equal(t, 12.5, result.DurationSeconds)
	assert.Equal(t, 1, result.Channels)
	assert.Equal(t, 4, result.Words)
}

func TestTranscribeURL(t *testing.T) {
	var gotContentType string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	client, err := New("dg-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	result, err := client.TranscribeURL(context.Background(), "https://bucket.s3/presigned")
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "https://bucket.s3/presigned", gotBody["url"])
	assert.NotEmpty(t, result.Transcript)
}

func TestTranscribeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"err_msg":"unsupported format"}`))
	}))
	defer srv.Close()

	client, err := New("dg-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = client.TranscribeBytes(context.Background(), []byte("junk"), "audio/wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestTranscribeEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"metadata":{"duration":0},"results":{"channels":[]}}`))
	}))
	defer srv.Close()

	client, err := New("dg-key", WithBaseURL(srv.URL))
	require.NoError(t, err)

	result, err := client.TranscribeBytes(context.Background(), []byte("silence"), "audio/wav")
	require.NoError(t, err)
	assert.Empty(t, result.Transcript)
	assert.Zero(t, result.Words)
}
