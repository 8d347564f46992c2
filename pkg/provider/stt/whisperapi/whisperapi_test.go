package whisperapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kaigi-app/kaigi/pkg/provider/stt"
)

func testChunk() stt.Chunk {
	return stt.Chunk{Data: make([]byte, 4096), MIME: "audio/wav"}
}

func TestTranscribeSuccess(t *testing.T) {
	var gotAuth, gotModel, gotLanguage, gotFormat string
	var gotFileLen int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s, want /audio/transcriptions", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLanguage = r.FormValue("language")
		gotFormat = r.FormValue("response_format")
		if f, _, err := r.FormFile("file"); err == nil {
			buf := make([]byte, 1<<20)
			n, _ := f.Read(buf)
			gotFileLen = n
			f.Close()
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "  本日の議題について説明します  "}`))
	}))
	defer srv.Close()

	c := New("sk-test", WithBaseURL(srv.URL), WithLanguage("ja"))
	res, err := c.Transcribe(context.Background(), testChunk())
	if err != nil {
		t.Fatalf("Transcribe() unexpected error: %v", err)
	}

	if res.Text != "本日の議題について説明します" {
		t.Errorf("text = %q, want trimmed transcript", res.Text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", gotModel)
	}
	if gotLanguage != "ja" {
		t.Errorf("language = %q, want ja", gotLanguage)
	}
	if gotFormat != "json" {
		t.Errorf("response_format = %q, want json", gotFormat)
	}
	if gotFileLen != 4096 {
		t.Errorf("uploaded file length = %d, want 4096", gotFileLen)
	}
}

func TestTranscribeStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, stt.ErrAuth},
		{"forbidden", http.StatusForbidden, stt.ErrAuth},
		{"rate limited", http.StatusTooManyRequests, stt.ErrRateLimited},
		{"bad request", http.StatusBadRequest, stt.ErrInvalidAudio},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			c := New("sk-test", WithBaseURL(srv.URL))
			_, err := c.Transcribe(context.Background(), testChunk())
			if !errors.Is(err, tt.want) {
				t.Errorf("Transcribe() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New("sk-test", WithBaseURL(srv.URL))
	_, err := c.Transcribe(context.Background(), testChunk())

	var te *stt.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Transcribe() error = %v, want *stt.TransportError", err)
	}
	if te.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", te.Status)
	}
}

func TestTranscribeEmptyChunk(t *testing.T) {
	c := New("sk-test")
	_, err := c.Transcribe(context.Background(), stt.Chunk{})
	if !errors.Is(err, stt.ErrInvalidAudio) {
		t.Errorf("Transcribe(empty) error = %v, want ErrInvalidAudio", err)
	}
}

func TestTranscribeContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New("sk-test", WithBaseURL(srv.URL))
	_, err := c.Transcribe(ctx, testChunk())
	if err == nil {
		t.Fatal("Transcribe() with cancelled context should fail")
	}
}
