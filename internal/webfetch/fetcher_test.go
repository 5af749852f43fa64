package webfetch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestFetcherGet(t *testing.T) {
	t.Parallel()

	t.Run("reads plain body and headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
				t.Errorf("unexpected user agent %q", ua)
			}
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		}))
		defer server.Close()

		f := New(server.Client(), WithUserAgent("test-agent"))
		resp, err := f.Get(context.Background(), Request{URL: server.URL + "/robots.txt", MaxBytes: 1024})
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if !resp.OK() || resp.MediaType() != "text/plain" {
			t.Errorf("unexpected response: status=%d type=%q", resp.StatusCode, resp.MediaType())
		}
		if !strings.Contains(string(resp.Body), "Disallow: /private") {
			t.Errorf("unexpected body %q", resp.Body)
		}
	})

	t.Run("truncates oversized body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(bytes.Repeat([]byte("a"), 4096))
		}))
		defer server.Close()

		resp, err := New(server.Client()).Get(context.Background(), Request{URL: server.URL, MaxBytes: 100})
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if len(resp.Body) != 100 || !resp.Truncated {
			t.Errorf("expected 100 truncated bytes, got %d (truncated=%v)", len(resp.Body), resp.Truncated)
		}
	})

	t.Run("decodes gzip content encoding", func(t *testing.T) {
		t.Parallel()

		payload := gzipBytes(t, []byte("<urlset></urlset>"))
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Encoding", "gzip")
			_, _ = w.Write(payload)
		}))
		defer server.Close()

		resp, err := New(server.Client()).Get(context.Background(), Request{URL: server.URL, MaxBytes: 1024})
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if string(resp.Body) != "<urlset></urlset>" {
			t.Errorf("unexpected body %q", resp.Body)
		}
	})

	t.Run("decodes brotli content encoding", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		_, _ = bw.Write([]byte("Sitemap: https://example.com/s.xml"))
		_ = bw.Close()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Encoding", "br")
			_, _ = w.Write(buf.Bytes())
		}))
		defer server.Close()

		resp, err := New(server.Client()).Get(context.Background(), Request{URL: server.URL, MaxBytes: 1024})
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if string(resp.Body) != "Sitemap: https://example.com/s.xml" {
			t.Errorf("unexpected body %q", resp.Body)
		}
	})

	t.Run("strict decoding rejects expansion past the cap", func(t *testing.T) {
		t.Parallel()

		payload := gzipBytes(t, bytes.Repeat([]byte("x"), 10_000))
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Encoding", "gzip")
			_, _ = w.Write(payload)
		}))
		defer server.Close()

		_, err := New(server.Client()).Get(context.Background(), Request{
			URL:            server.URL,
			MaxBytes:       1000,
			StrictDecoding: true,
		})
		if !errors.Is(err, ErrDecodedTooLarge) {
			t.Errorf("expected ErrDecodedTooLarge, got %v", err)
		}
	})

	t.Run("times out slow servers", func(t *testing.T) {
		t.Parallel()

		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer server.Close()
		defer close(release)

		_, err := New(server.Client()).Get(context.Background(), Request{URL: server.URL, Timeout: 50 * time.Millisecond})
		if err == nil {
			t.Fatal("expected timeout error")
		}
	})
}

func TestGunzip(t *testing.T) {
	t.Parallel()

	data := gzipBytes(t, []byte("hello"))
	out, err := Gunzip(data, 100)
	if err != nil || string(out) != "hello" {
		t.Errorf("Gunzip = %q, %v", out, err)
	}

	if _, err := Gunzip(gzipBytes(t, bytes.Repeat([]byte("z"), 500)), 100); !errors.Is(err, ErrDecodedTooLarge) {
		t.Errorf("expected ErrDecodedTooLarge, got %v", err)
	}

	plain := []byte("not gzip")
	if out, err := Gunzip(plain, 100); err != nil || !bytes.Equal(out, plain) {
		t.Errorf("non-gzip input should pass through, got %q, %v", out, err)
	}
}

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	if _, err := NewHTTPClient("", time.Second); err != nil {
		t.Errorf("direct client: unexpected error %v", err)
	}
	if _, err := NewHTTPClient("127.0.0.1:9050", time.Second); err != nil {
		t.Errorf("socks client: unexpected error %v", err)
	}
	for _, bad := range []string{"localhost", "host:0", "host:99999", ":9050"} {
		if _, err := NewHTTPClient(bad, time.Second); !errors.Is(err, ErrInvalidProxyAddress) {
			t.Errorf("NewHTTPClient(%q) error = %v, want ErrInvalidProxyAddress", bad, err)
		}
	}
}
