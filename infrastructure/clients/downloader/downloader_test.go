package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"reelpipe/infrastructure/configuration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDownloader(resolver string) *Downloader {
	return New(configuration.Downloader{
		ResolverURL:    resolver,
		LinkSelector:   "a.download-file, a[href*='.mp4']",
		UserAgent:      "ua",
		TimeoutSeconds: 5,
	})
}

func TestResolveDownloadURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "https://www.tiktok.com/@a/video/1", r.PostForm.Get("id"))
		assert.Equal(t, "en", r.PostForm.Get("locale"))
		_, _ = w.Write([]byte(`<div><a class="download-file" href="/media/1.mp4">Download</a></div>`))
	}))
	defer srv.Close()

	got, err := newDownloader(srv.URL+"/abc").ResolveDownloadURL(context.Background(), "https://www.tiktok.com/@a/video/1")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/media/1.mp4", got)
}

func TestResolveDownloadURL_NoMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<p>This video is private</p>`))
	}))
	defer srv.Close()

	got, err := newDownloader(srv.URL).ResolveDownloadURL(context.Background(), "link")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveDownloadURL_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newDownloader(srv.URL).ResolveDownloadURL(context.Background(), "link")
	require.Error(t, err)
}

func TestFetchToFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.mp4":
			_, _ = w.Write([]byte("video-bytes"))
		case "/empty.mp4":
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	d := newDownloader(srv.URL)
	dir := t.TempDir()

	t.Run("ok", func(t *testing.T) {
		path := filepath.Join(dir, "ok.mp4")
		require.NoError(t, d.FetchToFile(context.Background(), srv.URL+"/ok.mp4", path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "video-bytes", string(data))
	})

	t.Run("empty body removes file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.mp4")
		require.Error(t, d.FetchToFile(context.Background(), srv.URL+"/empty.mp4", path))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("not found", func(t *testing.T) {
		path := filepath.Join(dir, "missing.mp4")
		require.Error(t, d.FetchToFile(context.Background(), srv.URL+"/missing.mp4", path))
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err))
	})
}
