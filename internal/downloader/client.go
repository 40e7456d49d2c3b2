package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
)

// Service is the external collaborator that resolves playlists and prepares
// items. *HTTPClient implements it against the HTTP API.
type Service interface {
	ResolvePlaylist(ctx context.Context, reference, mode string) (PlaylistResult, error)
	RequestItem(ctx context.Context, req TransferRequest) (Ticket, error)
	FetchBytes(ctx context.Context, downloadURL string) ([]byte, error)
}

const (
	defaultUserAgent = "ytdl-playlist/1.0"
	maxJSONBody      = 16 << 20
	// DefaultMode is the only resolve mode the service understands today.
	DefaultMode = "full"
)

// ClientOptions tunes the HTTP client.
type ClientOptions struct {
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
	Logger       zerolog.Logger
}

// HTTPClient talks to the playlist service.
type HTTPClient struct {
	base *url.URL
	http *http.Client
	log  zerolog.Logger
}

// NewHTTPClient builds a client for the service rooted at baseURL.
func NewHTTPClient(baseURL string, opts ClientOptions) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("server URL must be http(s)://host, got %q", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	transport := cleanhttp.DefaultPooledTransport()

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = &http.Client{
		Transport: &consistentTransport{base: transport, userAgent: userAgent},
		Timeout:   opts.Timeout,
	}
	retryClient.RetryMax = opts.RetryMax
	if opts.RetryWaitMin > 0 {
		retryClient.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		retryClient.RetryWaitMax = opts.RetryWaitMax
	}
	retryClient.Logger = retryLogger{log: opts.Logger}

	return &HTTPClient{
		base: base,
		http: retryClient.StandardClient(),
		log:  opts.Logger,
	}, nil
}

func (c *HTTPClient) ResolvePlaylist(ctx context.Context, reference, mode string) (PlaylistResult, error) {
	if mode == "" {
		mode = DefaultMode
	}
	var resp PlaylistResponse
	if err := c.postJSON(ctx, "fetch_playlist", PlaylistRequest{PlaylistURL: reference, Mode: mode}, &resp); err != nil {
		return PlaylistResult{}, wrapCategory(CategoryResolve, fmt.Errorf("fetching playlist: %w", err))
	}
	if resp.Status != StatusSuccess {
		return PlaylistResult{}, wrapCategory(CategoryResolve, errors.New(messageOr(resp.Status, resp.Message, "Failed to fetch playlist")))
	}
	items := make([]ItemDescriptor, len(resp.Videos))
	copy(items, resp.Videos)
	c.log.Debug().Str("title", resp.PlaylistTitle).Int("items", len(items)).Msg("playlist resolved")
	return PlaylistResult{Title: resp.PlaylistTitle, Items: items}, nil
}

func (c *HTTPClient) RequestItem(ctx context.Context, req TransferRequest) (Ticket, error) {
	var resp DownloadResponse
	if err := c.postJSON(ctx, "download_video", req, &resp); err != nil {
		return Ticket{}, wrapCategory(CategoryTransfer, fmt.Errorf("requesting %s: %w", req.ItemID, err))
	}
	if resp.Status != StatusSuccess {
		return Ticket{}, wrapCategory(CategoryTransfer, errors.New(messageOr(resp.Status, resp.Message, "Download failed")))
	}
	if strings.TrimSpace(resp.DownloadURL) == "" || resp.DownloadURL == "#" {
		return Ticket{}, wrapCategory(CategoryTransfer, fmt.Errorf("service returned no download URL for %s", req.ItemID))
	}
	target, err := c.resolve(resp.DownloadURL)
	if err != nil {
		return Ticket{}, wrapCategory(CategoryTransfer, err)
	}
	return Ticket{DownloadURL: target, Filename: resp.Filename, Message: resp.Message}, nil
}

func (c *HTTPClient) FetchBytes(ctx context.Context, downloadURL string) ([]byte, error) {
	target, err := c.resolve(downloadURL)
	if err != nil {
		return nil, wrapCategory(CategoryTransfer, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, wrapCategory(CategoryTransfer, fmt.Errorf("building request: %w", err))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapCategory(CategoryTransfer, fmt.Errorf("fetching %s: %w", target, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure ErrorResponse
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
		if json.Unmarshal(body, &failure) == nil && failure.Message != "" {
			return nil, wrapCategory(CategoryTransfer, errors.New(failure.Message))
		}
		return nil, wrapCategory(CategoryTransfer, fmt.Errorf("fetching %s: unexpected status %d", target, resp.StatusCode))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, wrapCategory(CategoryTransfer, fmt.Errorf("reading %s: %w", target, err))
	}
	return data, nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path}).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBody))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		return fmt.Errorf("malformed response: %w", err)
	}
	return nil
}

// resolve turns the service's relative download path into an absolute URL.
func (c *HTTPClient) resolve(ref string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("invalid download URL %q: %w", ref, err)
	}
	if parsed.IsAbs() {
		return parsed.String(), nil
	}
	return c.base.ResolveReference(parsed).String(), nil
}

func messageOr(status, message, fallback string) string {
	if strings.TrimSpace(message) != "" {
		return message
	}
	if status != "" && status != StatusError {
		return fmt.Sprintf("%s (status %q)", fallback, status)
	}
	return fallback
}

type consistentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *consistentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	return t.base.RoundTrip(req)
}

// retryLogger adapts zerolog to retryablehttp.LeveledLogger.
type retryLogger struct {
	log zerolog.Logger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

var _ Service = (*HTTPClient)(nil)
