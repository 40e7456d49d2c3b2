package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lvcoi/ytdl-playlist/internal/db"
	"github.com/lvcoi/ytdl-playlist/internal/downloader"
	"github.com/lvcoi/ytdl-playlist/internal/ws"
)

const maxRequestBodyBytes = 1 << 20 // 1 MiB

const (
	defaultMediaListLimit = 200
	maxMediaListLimit     = 500
	shutdownTimeout       = 5 * time.Second
)

var audioMediaExtensions = map[string]struct{}{
	".aac":  {},
	".flac": {},
	".m4a":  {},
	".mp3":  {},
	".ogg":  {},
	".opus": {},
	".wav":  {},
}

// Options configures a Server.
type Options struct {
	Backend  Backend
	Catalog  *db.DB        // optional
	Hub      *ws.Hub       // optional
	Limiter  *rate.Limiter // optional; throttles /download_video
	MediaDir string
	Log      zerolog.Logger
}

// Server is the playlist service: it lists playlists, produces files and
// serves them back.
type Server struct {
	backend   Backend
	catalog   *db.DB
	hub       *ws.Hub
	limiter   *rate.Limiter
	mediaDir  string
	log       zerolog.Logger
	startedAt time.Time
}

// NewServer resolves and creates the media directory and returns a Server.
func NewServer(opts Options) (*Server, error) {
	if opts.Backend == nil {
		return nil, errors.New("web: backend is required")
	}
	dir := opts.MediaDir
	if dir == "" {
		dir = "downloads"
	}
	mediaDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving media directory: %w", err)
	}
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media directory: %w", err)
	}
	return &Server{
		backend:   opts.Backend,
		catalog:   opts.Catalog,
		hub:       opts.Hub,
		limiter:   opts.Limiter,
		mediaDir:  mediaDir,
		log:       opts.Log,
		startedAt: time.Now(),
	}, nil
}

// MediaDir returns the absolute output directory.
func (s *Server) MediaDir() string { return s.mediaDir }

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(withSecurityHeaders)

	r.Post("/fetch_playlist", s.handleFetchPlaylist)
	r.Post("/download_video", s.handleDownloadVideo)
	r.Get("/serve_file/{filename}", s.handleServeFile)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/library", s.handleLibrary)
	})

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if s.hub != nil {
		go s.hub.Run(ctx)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Str("media_dir", s.mediaDir).Msg("service listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleFetchPlaylist(w http.ResponseWriter, r *http.Request) {
	var req downloader.PlaylistRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err.status, err.message)
		return
	}
	playlistURL := strings.TrimSpace(req.PlaylistURL)
	if playlistURL == "" {
		writeJSONError(w, http.StatusOK, "Playlist URL is required")
		return
	}
	listID, ok := downloader.ExtractPlaylistID(playlistURL)
	if !ok {
		writeJSONError(w, http.StatusOK, "Invalid YouTube playlist URL")
		return
	}

	pl, err := s.backend.Playlist(r.Context(), "https://www.youtube.com/playlist?list="+url.QueryEscape(listID))
	if err != nil {
		s.log.Error().Err(err).Str("playlist", listID).Msg("fetching playlist failed")
		writeJSONError(w, http.StatusOK, fmt.Sprintf("Error fetching playlist: %v", err))
		return
	}

	videos := make([]downloader.ItemDescriptor, 0, len(pl.Entries))
	for _, e := range pl.Entries {
		videos = append(videos, describeEntry(pl, e))
	}
	title := pl.Title
	if title == "" {
		title = "YouTube Playlist"
	}
	writeJSON(w, http.StatusOK, downloader.PlaylistResponse{
		Status:        downloader.StatusSuccess,
		PlaylistTitle: title,
		Videos:        videos,
		Total:         len(videos),
	})
}

func describeEntry(pl Playlist, e Entry) downloader.ItemDescriptor {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		title = "Unknown Title"
	}
	author := pl.Author
	if author == "" {
		author = e.Author
	}
	if author == "" {
		author = "Unknown"
	}
	thumb := e.Thumbnail
	if thumb == "" {
		thumb = thumbnailURL(e.ID)
	}
	return downloader.ItemDescriptor{
		ID:           e.ID,
		Title:        title,
		ThumbnailURL: thumb,
		Duration:     formatDuration(e.Duration),
		Author:       author,
	}
}

func (s *Server) handleDownloadVideo(w http.ResponseWriter, r *http.Request) {
	var req downloader.TransferRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, err.status, err.message)
		return
	}
	videoID := strings.TrimSpace(req.ItemID)
	if videoID == "" {
		writeJSONError(w, http.StatusOK, "Video ID is required")
		return
	}
	quality, err := downloader.NormalizeQuality(req.Quality)
	if err != nil {
		writeJSONError(w, http.StatusOK, fmt.Sprintf("Error downloading video: %v", err))
		return
	}
	format, err := downloader.NormalizeFormat(req.Format)
	if err != nil {
		writeJSONError(w, http.StatusOK, fmt.Sprintf("Error downloading video: %v", err))
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeJSONError(w, http.StatusTooManyRequests, "Too many download requests, try again shortly")
		return
	}

	log := s.log.With().Str("video", videoID).Str("quality", quality).Str("format", format).Logger()
	if filename, ok := s.cached(r.Context(), videoID, quality, format); ok {
		log.Debug().Str("filename", filename).Msg("serving catalogued product")
		s.progress(videoID, 100)
		writeDownloadReady(w, filename)
		return
	}

	product, err := s.backend.Produce(r.Context(), ProduceRequest{
		VideoID: videoID,
		Quality: quality,
		Format:  format,
		Dir:     s.mediaDir,
	}, func(pct float64) { s.progress(videoID, pct) })
	if err != nil {
		log.Error().Err(err).Msg("download failed")
		writeJSONError(w, http.StatusOK, fmt.Sprintf("Error downloading video: %v", err))
		return
	}
	s.progress(videoID, 100)

	if s.catalog != nil {
		_, err := s.catalog.Upsert(r.Context(), db.Product{
			VideoID:      videoID,
			Quality:      quality,
			Format:       format,
			Filename:     product.Filename,
			Title:        product.Title,
			Author:       product.Author,
			FileSize:     product.Size,
			TagsEmbedded: product.TagsEmbedded,
			TagError:     product.TagError,
		})
		if err != nil {
			log.Warn().Err(err).Msg("catalog update failed")
		}
	}
	log.Info().Str("filename", product.Filename).Int64("bytes", product.Size).Msg("video ready")
	writeDownloadReady(w, product.Filename)
}

// cached reports a catalogued product whose file is still on disk.
func (s *Server) cached(ctx context.Context, videoID, quality, format string) (string, bool) {
	if s.catalog == nil {
		return "", false
	}
	p, err := s.catalog.Lookup(ctx, videoID, quality, format)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.log.Warn().Err(err).Msg("catalog lookup failed")
		}
		return "", false
	}
	info, err := os.Stat(filepath.Join(s.mediaDir, filepath.Base(p.Filename)))
	if err != nil || info.IsDir() {
		return "", false
	}
	return p.Filename, true
}

func (s *Server) progress(videoID string, pct float64) {
	if s.hub != nil {
		s.hub.Progress(videoID, pct)
	}
}

func writeDownloadReady(w http.ResponseWriter, filename string) {
	writeJSON(w, http.StatusOK, downloader.DownloadResponse{
		Status:      downloader.StatusSuccess,
		Message:     "Video ready for download",
		Filename:    filename,
		DownloadURL: "/serve_file/" + url.PathEscape(filename),
	})
}

func (s *Server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	name, err := url.PathUnescape(chi.URLParam(r, "filename"))
	if err != nil || name == "" || strings.ContainsAny(name, `/\`) {
		writeJSONError(w, http.StatusBadRequest, "invalid path")
		return
	}
	fullPath, status, err := resolveMediaPath(s.mediaDir, name)
	if err != nil {
		writeJSONError(w, status, err.Error())
		return
	}
	f, err := os.Open(fullPath)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "File not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeJSONError(w, http.StatusNotFound, "File not found")
		return
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

type statusResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Demo     bool   `json:"demo"`
	Clients  int    `json:"clients"`
	Products int    `json:"products"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	}
	_, resp.Demo = s.backend.(DemoBackend)
	if s.hub != nil {
		resp.Clients = s.hub.Clients()
	}
	if s.catalog != nil {
		if n, err := s.catalog.Count(r.Context()); err == nil {
			resp.Products = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type mediaItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Size     string `json:"size"`
	Date     string `json:"date"`
	Type     string `json:"type"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

type mediaListResponse struct {
	Items      []mediaItem `json:"items"`
	NextOffset *int        `json:"next_offset"`
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := parseMediaListPagination(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.catalog == nil {
		items, err := listMediaFiles(s.mediaDir)
		if err != nil {
			s.log.Error().Err(err).Msg("listing media directory failed")
			writeJSONError(w, http.StatusInternalServerError, "failed to list media")
			return
		}
		page, next := paginateMediaItems(items, offset, limit)
		writeJSON(w, http.StatusOK, mediaListResponse{Items: page, NextOffset: next})
		return
	}

	// One extra row tells us whether another page exists.
	products, err := s.catalog.List(r.Context(), limit+1, offset)
	if err != nil {
		s.log.Error().Err(err).Msg("listing catalog failed")
		writeJSONError(w, http.StatusInternalServerError, "failed to list media")
		return
	}
	var next *int
	if len(products) > limit {
		products = products[:limit]
		n := offset + limit
		next = &n
	}
	items := make([]mediaItem, 0, len(products))
	for _, p := range products {
		items = append(items, mediaItem{
			ID:       p.VideoID,
			Title:    p.Title,
			Artist:   p.Author,
			Size:     formatBytes(p.FileSize),
			Date:     p.CreatedAt.Format("2006-01-02"),
			Type:     p.MediaType,
			Filename: p.Filename,
			URL:      "/serve_file/" + url.PathEscape(p.Filename),
		})
	}
	writeJSON(w, http.StatusOK, mediaListResponse{Items: items, NextOffset: next})
}

// formatBytes formats a byte size into a human-readable string
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

type requestError struct {
	status  int
	message string
}

func (e *requestError) Error() string { return e.message }

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) *requestError {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return &requestError{http.StatusUnsupportedMediaType, "content type must be application/json"}
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return &requestError{http.StatusRequestEntityTooLarge, "request body too large"}
		}
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return &requestError{http.StatusBadRequest, "invalid JSON payload"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, downloader.ErrorResponse{Status: downloader.StatusError, Message: message})
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote", r.RemoteAddr).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("elapsed", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func parseMediaListPagination(r *http.Request) (offset int, limit int, err error) {
	offset = 0
	limit = defaultMediaListLimit

	q := r.URL.Query()
	if rawOffset := q.Get("offset"); rawOffset != "" {
		parsed, parseErr := strconv.Atoi(rawOffset)
		if parseErr != nil || parsed < 0 {
			return 0, 0, fmt.Errorf("invalid offset parameter")
		}
		offset = parsed
	}
	if rawLimit := q.Get("limit"); rawLimit != "" {
		parsed, parseErr := strconv.Atoi(rawLimit)
		if parseErr != nil || parsed <= 0 {
			return 0, 0, fmt.Errorf("invalid limit parameter")
		}
		if parsed > maxMediaListLimit {
			parsed = maxMediaListLimit
		}
		limit = parsed
	}
	return offset, limit, nil
}

// listMediaFiles scans the media directory, newest first.
func listMediaFiles(mediaDir string) ([]mediaItem, error) {
	entries, err := os.ReadDir(mediaDir)
	if err != nil {
		return nil, err
	}

	type enrichedMediaItem struct {
		item    mediaItem
		modTime time.Time
	}

	items := make([]enrichedMediaItem, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		ext := strings.ToLower(filepath.Ext(info.Name()))
		mediaType := "video"
		if _, ok := audioMediaExtensions[ext]; ok {
			mediaType = "music"
		}
		items = append(items, enrichedMediaItem{
			item: mediaItem{
				ID:       info.Name(),
				Title:    strings.TrimSuffix(info.Name(), filepath.Ext(info.Name())),
				Artist:   "Unknown Artist",
				Size:     formatBytes(info.Size()),
				Date:     info.ModTime().Format("2006-01-02"),
				Type:     mediaType,
				Filename: info.Name(),
				URL:      "/serve_file/" + url.PathEscape(info.Name()),
			},
			modTime: info.ModTime(),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].modTime.Equal(items[j].modTime) {
			return items[i].item.Filename < items[j].item.Filename
		}
		return items[i].modTime.After(items[j].modTime)
	})

	out := make([]mediaItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.item)
	}
	return out, nil
}

func paginateMediaItems(items []mediaItem, offset int, limit int) ([]mediaItem, *int) {
	total := len(items)
	if offset >= total {
		return []mediaItem{}, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := append([]mediaItem(nil), items[offset:end]...)
	if end >= total {
		return page, nil
	}
	next := end
	return page, &next
}

func resolveMediaPath(mediaDir, name string) (string, int, error) {
	cleaned := filepath.Clean(name)
	if cleaned == "." || cleaned == "" {
		return "", http.StatusBadRequest, fmt.Errorf("invalid path")
	}
	if strings.Contains(cleaned, "..") || filepath.IsAbs(cleaned) {
		return "", http.StatusBadRequest, fmt.Errorf("invalid path")
	}

	fullPath := filepath.Join(mediaDir, cleaned)
	realMediaDir, err := resolveRealPath(mediaDir)
	if err != nil {
		return "", http.StatusInternalServerError, fmt.Errorf("failed to resolve media directory")
	}
	realTargetPath, err := resolveRealPath(fullPath)
	if err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("invalid path")
	}
	rel, err := filepath.Rel(realMediaDir, realTargetPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", http.StatusForbidden, fmt.Errorf("access denied")
	}
	return fullPath, 0, nil
}

func resolveRealPath(path string) (string, error) {
	cleaned := filepath.Clean(path)
	realPath, err := filepath.EvalSymlinks(cleaned)
	if err == nil {
		return realPath, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	parent := filepath.Dir(cleaned)
	if parent == cleaned {
		return "", err
	}
	realParent, parentErr := resolveRealPath(parent)
	if parentErr != nil {
		return "", parentErr
	}
	return filepath.Join(realParent, filepath.Base(cleaned)), nil
}
