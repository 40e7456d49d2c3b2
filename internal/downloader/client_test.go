package downloader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, srv *httptest.Server) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(srv.URL, ClientOptions{
		Timeout:      5 * time.Second,
		RetryMax:     1,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewHTTPClient: %v", err)
	}
	return c
}

func TestResolvePlaylistPreservesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/fetch_playlist" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req PlaylistRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Mode != "full" || req.PlaylistURL != "https://youtube.com/playlist?list=PL1" {
			t.Errorf("unexpected body %+v", req)
		}
		_ = json.NewEncoder(w).Encode(PlaylistResponse{
			Status:        StatusSuccess,
			PlaylistTitle: "Mix",
			Videos: []ItemDescriptor{
				{ID: "c", Title: "Zulu"},
				{ID: "a", Title: "Alpha"},
				{ID: "b", Title: "Mike"},
			},
			Total: 3,
		})
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv).ResolvePlaylist(context.Background(), "https://youtube.com/playlist?list=PL1", "")
	if err != nil {
		t.Fatalf("ResolvePlaylist: %v", err)
	}
	if res.Title != "Mix" {
		t.Fatalf("unexpected title %q", res.Title)
	}
	got := []string{}
	for _, item := range res.Items {
		got = append(got, item.ID)
	}
	if strings.Join(got, ",") != "c,a,b" {
		t.Fatalf("order changed: %v", got)
	}
}

func TestResolvePlaylistFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "application error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(ErrorResponse{Status: StatusError, Message: "Invalid YouTube playlist URL"})
			},
			want: "Invalid YouTube playlist URL",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>oops</html>"))
			},
			want: "malformed response",
		},
		{
			name: "error without message",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"error"}`))
			},
			want: "Failed to fetch playlist",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			_, err := newTestClient(t, srv).ResolvePlaylist(context.Background(), "https://youtube.com/playlist?list=x", "full")
			if err == nil {
				t.Fatalf("expected error")
			}
			if CategoryOf(err) != CategoryResolve {
				t.Fatalf("expected resolve category, got %q", CategoryOf(err))
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestResolvePlaylistTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(t, srv)
	srv.Close()

	_, err := c.ResolvePlaylist(context.Background(), "https://youtube.com/playlist?list=x", "full")
	if CategoryOf(err) != CategoryResolve {
		t.Fatalf("expected resolve failure, got %v", err)
	}
}

func TestRequestItemAndFetchBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/download_video":
			var req TransferRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.ItemID != "abc" || req.Quality != "720p" || req.Format != "mp4" {
				t.Errorf("unexpected request %+v", req)
			}
			_ = json.NewEncoder(w).Encode(DownloadResponse{
				Status:      StatusSuccess,
				Message:     "Video ready for download",
				Filename:    "Song.mp4",
				DownloadURL: "/serve_file/Song.mp4",
			})
		case "/serve_file/Song.mp4":
			_, _ = w.Write([]byte("payload"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ticket, err := c.RequestItem(context.Background(), TransferRequest{ItemID: "abc", Quality: "720p", Format: "mp4"})
	if err != nil {
		t.Fatalf("RequestItem: %v", err)
	}
	if ticket.Filename != "Song.mp4" || ticket.DownloadURL != srv.URL+"/serve_file/Song.mp4" {
		t.Fatalf("unexpected ticket %+v", ticket)
	}
	data, err := c.FetchBytes(context.Background(), ticket.DownloadURL)
	if err != nil {
		t.Fatalf("FetchBytes: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected payload %q", data)
	}
}

func TestRequestItemFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "service error", body: `{"status":"error","message":"Video ID is required"}`, want: "Video ID is required"},
		{name: "demo placeholder url", body: `{"status":"success","filename":"demo.mp4","download_url":"#"}`, want: "no download URL"},
		{name: "missing url", body: `{"status":"success","filename":"demo.mp4"}`, want: "no download URL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()
			_, err := newTestClient(t, srv).RequestItem(context.Background(), TransferRequest{ItemID: "x"})
			if CategoryOf(err) != CategoryTransfer || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("unexpected error %v", err)
			}
		})
	}
}

func TestFetchBytesNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":"error","message":"File not found"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchBytes(context.Background(), "/serve_file/missing.mp4")
	if CategoryOf(err) != CategoryTransfer || !strings.Contains(err.Error(), "File not found") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"success","playlist_title":"t","videos":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv).ResolvePlaylist(context.Background(), "https://youtube.com/x", "full"); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestNewHTTPClientRejectsBadBase(t *testing.T) {
	for _, base := range []string{"", "ftp://host", "localhost:5000"} {
		if _, err := NewHTTPClient(base, ClientOptions{}); err == nil {
			t.Fatalf("expected error for %q", base)
		}
	}
}
