package testing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/tunedeck/internal/credentials"
	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/gorilla/websocket"
)

// Backend is an in-process fake of the tunedeck REST and websocket API.
type Backend struct {
	Server *httptest.Server
	// LoginRedirect is where /server/api/login redirects to.
	LoginRedirect string

	mu        sync.Mutex
	token     string
	requests  []*http.Request
	playlists []models.Playlist
	details   map[string]models.PlaylistDetail
	analyses  map[string]models.PlaylistAnalysis
	tracks    []models.Track
	albums    []models.Album
	artists   []models.Artist
	failPaths map[string]int
	onTrigger func(id string, op models.Operation, receipt models.TaskReceipt)

	connMu   sync.Mutex
	conns    []*websocket.Conn
	upgrader websocket.Upgrader
	taskSeq  int
}

// NewBackend starts a fake backend that is closed when t finishes.
func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		token:         "test-token",
		LoginRedirect: "https://accounts.example.com/authorize?client_id=tunedeck",
		details:       make(map[string]models.PlaylistDetail),
		analyses:      make(map[string]models.PlaylistAnalysis),
		failPaths:     make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /server/api/login", b.handleLogin)
	mux.HandleFunc("GET /server/api/validate", b.authed(b.handleValidate))
	mux.HandleFunc("GET /api/playlists", b.authed(listHandler(b, func() []models.Playlist { return b.playlists }, playlistFilter)))
	mux.HandleFunc("GET /api/playlists/{id}", b.authed(b.handlePlaylist))
	mux.HandleFunc("GET /api/playlists/{id}/analysis", b.authed(b.handleAnalysis))
	mux.HandleFunc("PATCH /api/playlists/{id}", b.authed(b.handleTrigger))
	mux.HandleFunc("GET /api/tracks", b.authed(listHandler(b, func() []models.Track { return b.tracks }, nil)))
	mux.HandleFunc("GET /api/albums", b.authed(listHandler(b, func() []models.Album { return b.albums }, nil)))
	mux.HandleFunc("GET /api/artists", b.authed(listHandler(b, func() []models.Artist { return b.artists }, nil)))
	mux.HandleFunc("/ws/notifications", b.handleSocket)

	b.Server = httptest.NewServer(b.record(mux))
	t.Cleanup(b.Close)
	return b
}

// SetToken changes the only bearer token the backend accepts.
func (b *Backend) SetToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token
}

// URL returns the backend origin.
func (b *Backend) URL() string { return b.Server.URL }

// Close disconnects websocket clients and stops the server.
func (b *Backend) Close() {
	b.connMu.Lock()
	for _, c := range b.conns {
		c.Close()
	}
	b.conns = nil
	b.connMu.Unlock()
	b.Server.Close()
}

// AddPlaylist registers a playlist with its tracks.
func (b *Backend) AddPlaylist(p models.Playlist, tracks ...models.Track) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p.TrackCount = len(tracks)
	b.playlists = append(b.playlists, p)
	b.details[p.ID] = models.PlaylistDetail{Playlist: p, Tracks: tracks}
	b.tracks = append(b.tracks, tracks...)
}

// SetAnalysis registers the analysis response for a playlist.
func (b *Backend) SetAnalysis(a models.PlaylistAnalysis) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.analyses[a.PlaylistID] = a
}

// AddAlbums registers albums.
func (b *Backend) AddAlbums(albums ...models.Album) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.albums = append(b.albums, albums...)
}

// AddArtists registers artists.
func (b *Backend) AddArtists(artists ...models.Artist) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.artists = append(b.artists, artists...)
}

// FailPath makes the next n requests to path answer with status 500.
func (b *Backend) FailPath(path string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPaths[path] = n
}

// OnTrigger registers a hook run after every PATCH trigger is acknowledged.
func (b *Backend) OnTrigger(fn func(id string, op models.Operation, receipt models.TaskReceipt)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrigger = fn
}

// Requests returns a copy of every request received so far.
func (b *Backend) Requests() []*http.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*http.Request(nil), b.requests...)
}

// RequestCount counts requests whose path equals path.
func (b *Backend) RequestCount(path string) int {
	n := 0
	for _, r := range b.Requests() {
		if r.URL.Path == path {
			n++
		}
	}
	return n
}

// Clients returns the number of connected websocket clients.
func (b *Backend) Clients() int {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	return len(b.conns)
}

// WaitForClients blocks until n websocket clients are connected.
func (b *Backend) WaitForClients(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for b.Clients() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d websocket clients, have %d", n, b.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Push sends v as JSON to every websocket client.
func (b *Backend) Push(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.PushRaw(string(data))
}

// PushRaw sends a text frame to every websocket client.
func (b *Backend) PushRaw(frame string) error {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	for _, c := range b.conns {
		if err := c.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return err
		}
	}
	return nil
}

// DropClients closes every websocket connection from the server side.
func (b *Backend) DropClients() {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	for _, c := range b.conns {
		c.Close()
	}
	b.conns = nil
}

// Notification builds a notification message for tests.
func Notification(id, taskID, status, taskType, playlistID string) models.Message {
	extras := models.NotificationExtras{}
	if taskType != "" {
		extras["task_type"] = taskType
	}
	if playlistID != "" {
		extras["playlist_id"] = playlistID
	}
	return models.Message{
		Type: "task_update",
		Notification: &models.Notification{
			ID:         id,
			TaskID:     taskID,
			TaskName:   taskType,
			TaskStatus: status,
			Extras:     extras,
		},
	}
}

// NewTokenStore returns an in-memory credential store holding token.
func NewTokenStore(t *testing.T, token string) *credentials.Store {
	t.Helper()
	ctx := context.Background()
	store, err := credentials.NewStore(ctx, credentials.NewMemoryStorage(), "", nil)
	if err != nil {
		t.Fatalf("failed to create token store: %v", err)
	}
	if token != "" {
		if err := store.SetToken(ctx, token); err != nil {
			t.Fatalf("failed to set token: %v", err)
		}
	}
	return store
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.requests = append(b.requests, r.Clone(context.Background()))
		fail := b.failPaths[r.URL.Path]
		if fail > 0 {
			b.failPaths[r.URL.Path] = fail - 1
		}
		b.mu.Unlock()

		if fail > 0 {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		want := "Bearer " + b.token
		b.mu.Unlock()

		if r.Header.Get("Authorization") != want {
			http.Error(w, `{"detail":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("redirect_uri") == "" {
		http.Error(w, "redirect_uri required", http.StatusBadRequest)
		return
	}
	target, _ := url.Parse(b.LoginRedirect)
	q := target.Query()
	q.Set("redirect_uri", r.URL.Query().Get("redirect_uri"))
	q.Set("state", r.URL.Query().Get("state"))
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (b *Backend) handleValidate(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, models.User{ID: "u1", Username: "listener", DisplayName: "Test Listener"})
}

func (b *Backend) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	d, ok := b.details[r.PathValue("id")]
	b.mu.Unlock()
	if !ok {
		http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, d)
}

func (b *Backend) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	a, ok := b.analyses[r.PathValue("id")]
	b.mu.Unlock()
	if !ok {
		http.Error(w, `{"detail":"not analyzed"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, a)
}

func (b *Backend) handleTrigger(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Operation string `json:"operation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	op, err := models.ParseOperation(body.Operation)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	b.mu.Lock()
	_, ok := b.details[id]
	b.taskSeq++
	receipt := models.TaskReceipt{
		TaskID:     "task-" + strconv.Itoa(b.taskSeq),
		TaskName:   op.TaskType(),
		Status:     models.StatusPending,
		PlaylistID: id,
	}
	hook := b.onTrigger
	b.mu.Unlock()

	if !ok {
		http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
		return
	}

	writeJSON(w, receipt)
	if hook != nil {
		go hook(id, op, receipt)
	}
}

func (b *Backend) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	b.connMu.Lock()
	b.conns = append(b.conns, conn)
	b.connMu.Unlock()

	// Drain client frames so close handshakes are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func playlistFilter(p models.Playlist, q url.Values) bool {
	if s := strings.ToLower(q.Get("search")); s != "" && !strings.Contains(strings.ToLower(p.Name), s) {
		return false
	}
	if v := q.Get("owned"); v != "" && strconv.FormatBool(p.Owned) != v {
		return false
	}
	if v := q.Get("analyzed"); v != "" && strconv.FormatBool(p.Analyzed) != v {
		return false
	}
	return true
}

func listHandler[T any](b *Backend, items func() []T, filter func(T, url.Values) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		if page < 1 {
			page = 1
		}
		size, _ := strconv.Atoi(q.Get("page_size"))
		if size < 1 {
			size = 20
		}

		b.mu.Lock()
		all := append([]T(nil), items()...)
		b.mu.Unlock()

		var matched []T
		for _, it := range all {
			if filter == nil || filter(it, q) {
				matched = append(matched, it)
			}
		}

		start := min((page-1)*size, len(matched))
		end := min(start+size, len(matched))
		out := models.Page[T]{Items: matched[start:end], Total: len(matched), Page: page, PageSize: size}
		if out.Items == nil {
			out.Items = []T{}
		}
		writeJSON(w, out)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
