// Package library binds the backend client to the query cache.
//
// Each resource has a cache key builder, a [querycache.Query] constructor and
// a Fetch helper. Queries check their preconditions (a stored token, a
// non-empty id) before any network call and record failures on the entry.
package library

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/tunedeck/internal/listview"
	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/notify"
	"github.com/desertthunder/tunedeck/internal/querycache"
	"github.com/desertthunder/tunedeck/internal/shared"
)

// API is the subset of the backend client used here. [services.Client] implements it.
type API interface {
	Validate(ctx context.Context) (*models.User, error)
	ListPlaylists(ctx context.Context, params url.Values) (*models.Page[models.Playlist], error)
	ListTracks(ctx context.Context, params url.Values) (*models.Page[models.Track], error)
	ListAlbums(ctx context.Context, params url.Values) (*models.Page[models.Album], error)
	ListArtists(ctx context.Context, params url.Values) (*models.Page[models.Artist], error)
	GetPlaylist(ctx context.Context, id string) (*models.PlaylistDetail, error)
	GetPlaylistAnalysis(ctx context.Context, id string) (*models.PlaylistAnalysis, error)
	TriggerPlaylistTask(ctx context.Context, id string, op models.Operation) (*models.TaskReceipt, error)
}

// Session is the credential state queries depend on. [credentials.Store] implements it.
type Session interface {
	Current() (string, bool)
	Clear(ctx context.Context) error
}

// Resource names a paginated listing.
type Resource string

const (
	Playlists Resource = "playlists"
	Tracks    Resource = "tracks"
	Albums    Resource = "albums"
	Artists   Resource = "artists"
)

// ParseResource validates a resource name.
func ParseResource(s string) (Resource, error) {
	switch r := Resource(s); r {
	case Playlists, Tracks, Albums, Artists:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown resource %q", shared.ErrInvalidArgument, s)
}

// ListKey is the cache key of one page of a listing.
func ListKey(r Resource, state *listview.State) querycache.Key {
	return state.Key("browser", string(r))
}

// PlaylistKey is the cache key of a playlist detail.
func PlaylistKey(id string) querycache.Key {
	return notify.PlaylistKey(id)
}

// AnalysisKey is the cache key of a playlist's analysis. It sits under
// [PlaylistKey] so a completed analysis invalidates both.
func AnalysisKey(id string) querycache.Key {
	return notify.PlaylistKey(id).With("analysis")
}

// TaskKey is the cache key of a task receipt.
func TaskKey(taskID string) querycache.Key {
	return querycache.NewKey("tasks", taskID)
}

// UserKey is the cache key of the validated account.
var UserKey = querycache.NewKey("session", "user")

// Queries builds and runs cached queries.
type Queries struct {
	api     API
	cache   *querycache.Cache
	session Session
	logger  *log.Logger
}

// New creates Queries.
func New(api API, cache *querycache.Cache, session Session, logger *log.Logger) *Queries {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Queries{api: api, cache: cache, session: session, logger: logger}
}

// Cache returns the underlying cache.
func (q *Queries) Cache() *querycache.Cache { return q.cache }

func (q *Queries) authenticated() error {
	if _, ok := q.session.Current(); !ok {
		return shared.ErrNotAuthenticated
	}
	return nil
}

func requireID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}
	return nil
}

// PlaylistsQuery lists playlists for the state's current parameters.
func (q *Queries) PlaylistsQuery(state *listview.State) querycache.Query {
	return listQuery(q, Playlists, state, q.api.ListPlaylists)
}

// TracksQuery lists tracks for the state's current parameters.
func (q *Queries) TracksQuery(state *listview.State) querycache.Query {
	return listQuery(q, Tracks, state, q.api.ListTracks)
}

// AlbumsQuery lists albums for the state's current parameters.
func (q *Queries) AlbumsQuery(state *listview.State) querycache.Query {
	return listQuery(q, Albums, state, q.api.ListAlbums)
}

// ArtistsQuery lists artists for the state's current parameters.
func (q *Queries) ArtistsQuery(state *listview.State) querycache.Query {
	return listQuery(q, Artists, state, q.api.ListArtists)
}

func listQuery[T any](q *Queries, r Resource, state *listview.State, fn func(context.Context, url.Values) (*models.Page[T], error)) querycache.Query {
	params := state.Params()
	return querycache.Query{
		Key:     ListKey(r, state),
		Enabled: true,
		Fn: func(ctx context.Context) (any, error) {
			if err := q.authenticated(); err != nil {
				return nil, err
			}
			return fn(ctx, params)
		},
	}
}

// PlaylistQuery loads a playlist with its tracks.
func (q *Queries) PlaylistQuery(id string) querycache.Query {
	return querycache.Query{
		Key:     PlaylistKey(id),
		Enabled: true,
		Fn: func(ctx context.Context) (any, error) {
			if err := requireID(id); err != nil {
				return nil, err
			}
			if err := q.authenticated(); err != nil {
				return nil, err
			}
			return q.api.GetPlaylist(ctx, id)
		},
	}
}

// AnalysisQuery loads the audio features of a playlist.
func (q *Queries) AnalysisQuery(id string) querycache.Query {
	return querycache.Query{
		Key:     AnalysisKey(id),
		Enabled: true,
		Fn: func(ctx context.Context) (any, error) {
			if err := requireID(id); err != nil {
				return nil, err
			}
			if err := q.authenticated(); err != nil {
				return nil, err
			}
			return q.api.GetPlaylistAnalysis(ctx, id)
		},
	}
}

// FetchList runs the list query for r and reflects the total and loading flag into state.
func (q *Queries) FetchList(ctx context.Context, r Resource, state *listview.State) (any, error) {
	var query querycache.Query
	switch r {
	case Playlists:
		query = q.PlaylistsQuery(state)
	case Tracks:
		query = q.TracksQuery(state)
	case Albums:
		query = q.AlbumsQuery(state)
	case Artists:
		query = q.ArtistsQuery(state)
	default:
		return nil, fmt.Errorf("%w: unknown resource %q", shared.ErrInvalidArgument, r)
	}

	state.SetLoading(true)
	defer state.SetLoading(false)

	v, err := q.cache.Fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	if t, ok := pageTotal(v); ok {
		state.SetTotal(t)
	}
	return v, nil
}

func pageTotal(v any) (int, bool) {
	switch p := v.(type) {
	case *models.Page[models.Playlist]:
		return p.Total, true
	case *models.Page[models.Track]:
		return p.Total, true
	case *models.Page[models.Album]:
		return p.Total, true
	case *models.Page[models.Artist]:
		return p.Total, true
	}
	return 0, false
}

// FetchPlaylists is FetchList for playlists with a typed result.
func (q *Queries) FetchPlaylists(ctx context.Context, state *listview.State) (*models.Page[models.Playlist], error) {
	return fetchTyped[*models.Page[models.Playlist]](ctx, q, Playlists, state)
}

// FetchTracks is FetchList for tracks with a typed result.
func (q *Queries) FetchTracks(ctx context.Context, state *listview.State) (*models.Page[models.Track], error) {
	return fetchTyped[*models.Page[models.Track]](ctx, q, Tracks, state)
}

// FetchAlbums is FetchList for albums with a typed result.
func (q *Queries) FetchAlbums(ctx context.Context, state *listview.State) (*models.Page[models.Album], error) {
	return fetchTyped[*models.Page[models.Album]](ctx, q, Albums, state)
}

// FetchArtists is FetchList for artists with a typed result.
func (q *Queries) FetchArtists(ctx context.Context, state *listview.State) (*models.Page[models.Artist], error) {
	return fetchTyped[*models.Page[models.Artist]](ctx, q, Artists, state)
}

func fetchTyped[T any](ctx context.Context, q *Queries, r Resource, state *listview.State) (T, error) {
	var zero T
	v, err := q.FetchList(ctx, r, state)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: cached %s page has type %T", shared.ErrInvalidResponse, r, v)
	}
	return t, nil
}

// FetchPlaylist loads a playlist detail through the cache.
func (q *Queries) FetchPlaylist(ctx context.Context, id string) (*models.PlaylistDetail, error) {
	return querycache.FetchAs[*models.PlaylistDetail](ctx, q.cache, q.PlaylistQuery(id))
}

// FetchAnalysis loads a playlist analysis through the cache.
func (q *Queries) FetchAnalysis(ctx context.Context, id string) (*models.PlaylistAnalysis, error) {
	return querycache.FetchAs[*models.PlaylistAnalysis](ctx, q.cache, q.AnalysisQuery(id))
}

// Trigger starts a sync or analyze task. The receipt is cached under
// [TaskKey]; the playlist itself is refreshed when the notification arrives.
func (q *Queries) Trigger(ctx context.Context, id string, op models.Operation) (*models.TaskReceipt, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if err := q.authenticated(); err != nil {
		return nil, err
	}

	receipt, err := q.api.TriggerPlaylistTask(ctx, id, op)
	if err != nil {
		return nil, err
	}

	q.cache.Set(TaskKey(receipt.TaskID), receipt)
	q.logger.Info("task triggered", "playlist_id", id, "operation", op, "task_id", receipt.TaskID)
	return receipt, nil
}

// ValidateSession asks the backend whether the stored token is still good.
// A rejected token is cleared from the session.
func (q *Queries) ValidateSession(ctx context.Context) (*models.User, error) {
	if err := q.authenticated(); err != nil {
		return nil, err
	}

	user, err := q.api.Validate(ctx)
	if errors.Is(err, shared.ErrInvalidToken) {
		q.logger.Warn("stored token rejected, clearing session")
		if clearErr := q.session.Clear(ctx); clearErr != nil {
			return nil, errors.Join(err, clearErr)
		}
		q.cache.Reset()
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	q.cache.Set(UserKey, user)
	return user, nil
}
