package webfetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// ErrDecodedTooLarge is returned when a compressed body expands beyond the
// cap and the request asked for strict decoding.
var ErrDecodedTooLarge = errors.New("decoded body exceeds size limit")

// DefaultUserAgent identifies the auditor on robots.txt and sitemap requests.
const DefaultUserAgent = "SiteAuditBot/1.0 (+https://github.com/nao1215/siteaudit)"

// Request describes one GET.
type Request struct {
	URL string

	// Timeout bounds the whole request including the body read.
	Timeout time.Duration

	// MaxBytes caps the body. Larger bodies are truncated.
	MaxBytes int64

	// StrictDecoding makes a compressed body that expands past MaxBytes an
	// error instead of a truncation.
	StrictDecoding bool
}

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte

	// Truncated is true when the body was cut at the size cap.
	Truncated bool
}

// MediaType returns the lowercased media type of the Content-Type header
// without parameters.
func (r *Response) MediaType() string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	}
	return mt
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher issues GET requests with a fixed identity.
type Fetcher struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
	logger    *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) Option {
	return func(f *Fetcher) {
		for k, v := range headers {
			f.headers[k] = v
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// New creates a Fetcher. A nil client means http.DefaultClient.
func New(client *http.Client, opts ...Option) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{
		client:    client,
		userAgent: DefaultUserAgent,
		headers:   make(map[string]string),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Get performs the request and reads the body within the request's limits.
func (f *Fetcher) Get(ctx context.Context, req Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", f.userAgent)
	httpReq.Header.Set("Accept", "text/plain,application/xml,text/xml;q=0.9,*/*;q=0.8")
	httpReq.Header.Set("Accept-Encoding", "gzip, deflate, br")
	for k, v := range f.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	raw, truncated, err := readLimited(resp.Body, req.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	out := &Response{
		URL:        req.URL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       raw,
		Truncated:  truncated,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.URL = resp.Request.URL.String()
	}

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	if encoding == "" || encoding == "identity" {
		return out, nil
	}

	decoded, decTruncated, err := Decode(encoding, raw, req.MaxBytes)
	switch {
	case errors.Is(err, ErrDecodedTooLarge) && req.StrictDecoding:
		return nil, err
	case err != nil && !errors.Is(err, ErrDecodedTooLarge):
		f.logger.Debug("content decoding failed, keeping raw body",
			"url", req.URL, "encoding", encoding, "error", err)
		return out, nil
	}
	out.Body = decoded
	out.Truncated = out.Truncated || decTruncated
	out.Header.Del("Content-Encoding")
	return out, nil
}

// Decode expands data according to a Content-Encoding value. Output beyond
// maxBytes is dropped and reported through ErrDecodedTooLarge together with
// the truncated output. A stream cut short by an earlier truncation yields
// the bytes decoded so far.
func Decode(encoding string, data []byte, maxBytes int64) ([]byte, bool, error) {
	var (
		r   io.Reader
		err error
	)
	switch encoding {
	case "gzip", "x-gzip":
		if !IsGzip(data) {
			return data, false, nil
		}
		var gz *gzip.Reader
		gz, err = gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, false, fmt.Errorf("gzip decode: %w", err)
		}
		defer gz.Close()
		r = gz
	case "br":
		r = brotli.NewReader(bytes.NewReader(data))
	case "deflate":
		zr, zerr := zlib.NewReader(bytes.NewReader(data))
		if zerr != nil {
			fr := flate.NewReader(bytes.NewReader(data))
			defer fr.Close()
			r = fr
		} else {
			defer zr.Close()
			r = zr
		}
	default:
		return data, false, nil
	}

	out, truncated, err := readLimited(r, maxBytes)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, false, fmt.Errorf("%s decode: %w", encoding, err)
	}
	if truncated {
		return out, true, ErrDecodedTooLarge
	}
	return out, errors.Is(err, io.ErrUnexpectedEOF), nil
}

// Gunzip is Decode for gzip payloads identified by file extension.
func Gunzip(data []byte, maxBytes int64) ([]byte, error) {
	out, _, err := Decode("gzip", data, maxBytes)
	return out, err
}

// IsGzip reports whether data starts with the gzip magic number.
func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// readLimited reads at most maxBytes from r. The boolean result reports
// whether more data was available. A non-positive maxBytes means no cap.
func readLimited(r io.Reader, maxBytes int64) ([]byte, bool, error) {
	if maxBytes <= 0 {
		data, err := io.ReadAll(r)
		return data, false, err
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if int64(len(data)) > maxBytes {
		return data[:maxBytes], true, err
	}
	return data, false, err
}
