package freeimage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"catalogsync-backend/internal/catalog"

	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

var okBody = map[string]any{
	"status_code": 200,
	"success":     map[string]any{"message": "image uploaded", "code": 200},
	"image": map[string]any{
		"url":        "https://iili.io/abc.jpg",
		"url_viewer": "https://freeimage.host/i/abc",
		"thumb":      map[string]any{"url": "https://iili.io/abc.th.jpg"},
	},
}

func testClient(endpoint string, retries int) *Client {
	client := NewClient(Config{Endpoint: endpoint, ApiKey: "secret", MaxRetries: retries})
	client.backoff = func(int) time.Duration { return 0 }
	return client
}

func TestUploadBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "secret", r.FormValue("key"))
		require.Equal(t, "upload", r.FormValue("action"))
		require.Equal(t, "json", r.FormValue("format"))

		file, header, err := r.FormFile("source")
		require.NoError(t, err)
		require.Equal(t, "bottle.jpg", header.Filename)
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, "jpeg bytes", string(data))

		writeJSON(w, http.StatusOK, okBody)
	}))
	defer server.Close()

	entry, err := testClient(server.URL, 0).UploadBytes(context.Background(), []byte("jpeg bytes"), "bottle.jpg")
	require.NoError(t, err)
	require.Equal(t, catalog.ImageCacheEntry{
		DirectURL: "https://iili.io/abc.jpg",
		ViewerURL: "https://freeimage.host/i/abc",
		ThumbURL:  "https://iili.io/abc.th.jpg",
	}, entry)
}

func TestUploadRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// every attempt must carry the whole file
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, _, err := r.FormFile("source")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		require.Equal(t, "jpeg bytes", string(data))

		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, okBody)
	}))
	defer server.Close()

	entry, err := testClient(server.URL, 3).UploadBytes(context.Background(), []byte("jpeg bytes"), "a.jpg")
	require.NoError(t, err)
	require.Equal(t, "https://iili.io/abc.jpg", entry.DirectURL)
	require.Equal(t, int32(3), calls.Load())
}

func TestUploadDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status_code": 400,
			"error":       map[string]any{"message": "Invalid API v1 key.", "code": 100},
		})
	}))
	defer server.Close()

	_, err := testClient(server.URL, 3).UploadBytes(context.Background(), []byte("x"), "a.jpg")
	require.ErrorContains(t, err, "Invalid API v1 key.")
	require.Equal(t, int32(1), calls.Load())
}

func TestUploadMissingImageURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": map[string]any{"code": 200}})
	}))
	defer server.Close()

	_, err := testClient(server.URL, 0).UploadBytes(context.Background(), []byte("x"), "a.jpg")
	require.ErrorContains(t, err, "missing the image url")
}

func TestUploadWithoutKey(t *testing.T) {
	client := NewClient(Config{Endpoint: "http://127.0.0.1:1"})
	_, err := client.UploadBytes(context.Background(), []byte("x"), "a.jpg")
	require.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestDownload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old.jpg", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/upload/new.jpg", http.StatusFound)
	})
	mux.HandleFunc("/upload/new.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "image/jpeg")
		w.Write([]byte("jpeg bytes"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := testClient(server.URL, 0)

	data, err := client.Download(context.Background(), server.URL+"/old.jpg")
	require.NoError(t, err)
	require.Equal(t, "jpeg bytes", string(data))

	_, err = client.Download(context.Background(), server.URL+"/missing.jpg")
	require.ErrorContains(t, err, "status 404")

	_, err = client.Download(context.Background(), "data:image/png;base64,AAAA")
	require.ErrorIs(t, err, ErrUnsupportedScheme)
}
