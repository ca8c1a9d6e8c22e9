package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/shared"
)

// LoginURL asks the backend where to send the browser to connect an account.
// The backend answers with a redirect; a JSON body {"url": ...} is also accepted.
func (c *Client) LoginURL(ctx context.Context, redirectURI, state string) (string, error) {
	query := url.Values{}
	query.Set("redirect_uri", redirectURI)
	if state != "" {
		query.Set("state", state)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolve(loginPath, query), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.anonClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc, err := resp.Location()
		if err != nil {
			return "", fmt.Errorf("%w: redirect without location", shared.ErrAuthFailed)
		}
		return loc.String(), nil
	case resp.StatusCode == http.StatusOK:
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.URL == "" {
			return "", fmt.Errorf("%w: login response has no url", shared.ErrInvalidResponse)
		}
		return body.URL, nil
	default:
		return "", httpError(resp, http.MethodGet, loginPath)
	}
}

// Validate checks the stored token. A rejected token yields an error matching
// [shared.ErrInvalidToken].
func (c *Client) Validate(ctx context.Context) (*models.User, error) {
	var user models.User
	if err := c.do(ctx, http.MethodGet, validatePath, nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListPlaylists fetches one page of playlists filtered by params.
func (c *Client) ListPlaylists(ctx context.Context, params url.Values) (*models.Page[models.Playlist], error) {
	return list[models.Playlist](ctx, c, playlistsPath, params)
}

// ListTracks fetches one page of tracks filtered by params.
func (c *Client) ListTracks(ctx context.Context, params url.Values) (*models.Page[models.Track], error) {
	return list[models.Track](ctx, c, tracksPath, params)
}

// ListAlbums fetches one page of albums filtered by params.
func (c *Client) ListAlbums(ctx context.Context, params url.Values) (*models.Page[models.Album], error) {
	return list[models.Album](ctx, c, albumsPath, params)
}

// ListArtists fetches one page of artists filtered by params.
func (c *Client) ListArtists(ctx context.Context, params url.Values) (*models.Page[models.Artist], error) {
	return list[models.Artist](ctx, c, artistsPath, params)
}

// GetPlaylist fetches a playlist and its tracks.
func (c *Client) GetPlaylist(ctx context.Context, id string) (*models.PlaylistDetail, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	var detail models.PlaylistDetail
	if err := c.do(ctx, http.MethodGet, playlistPath(id), nil, nil, &detail); err != nil {
		return nil, notFound(err, id)
	}
	return &detail, nil
}

// GetPlaylistAnalysis fetches the audio features computed for a playlist.
func (c *Client) GetPlaylistAnalysis(ctx context.Context, id string) (*models.PlaylistAnalysis, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}

	var analysis models.PlaylistAnalysis
	if err := c.do(ctx, http.MethodGet, playlistPath(id)+"/analysis", nil, nil, &analysis); err != nil {
		return nil, notFound(err, id)
	}
	return &analysis, nil
}

// TriggerPlaylistTask starts a sync or analyze task for a playlist. The work
// completes asynchronously; progress arrives on the notification channel.
func (c *Client) TriggerPlaylistTask(ctx context.Context, id string, op models.Operation) (*models.TaskReceipt, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: playlist id", shared.ErrMissingArgument)
	}
	if _, err := models.ParseOperation(string(op)); err != nil {
		return nil, err
	}

	body := map[string]string{"operation": string(op)}
	var receipt models.TaskReceipt
	if err := c.do(ctx, http.MethodPatch, playlistPath(id), nil, body, &receipt); err != nil {
		return nil, notFound(err, id)
	}

	if receipt.PlaylistID == "" {
		receipt.PlaylistID = id
	}
	return &receipt, nil
}

func playlistPath(id string) string {
	return playlistsPath + "/" + url.PathEscape(id)
}

func list[T any](ctx context.Context, c *Client, path string, params url.Values) (*models.Page[T], error) {
	var page models.Page[T]
	if err := c.do(ctx, http.MethodGet, path, params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// do performs an authenticated JSON request and validates the decoded result.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result any) error {
	if err := c.requireToken(); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path, query), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("api request", "method", method, "path", path, "query", query.Encode())

	resp, err := c.authClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpError(resp, method, path)
	}

	if result == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", shared.ErrInvalidResponse, path, err)
	}
	return models.Validate(result)
}

func httpError(resp *http.Response, method, path string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &HTTPError{
		Method: method,
		Path:   path,
		Code:   resp.StatusCode,
		Status: resp.Status,
		Body:   bytes.TrimSpace(body),
	}
}

// notFound turns a 404 into [shared.ErrPlaylistNotFound].
func notFound(err error, id string) error {
	if he, ok := AsHTTPError(err); ok && he.Code == http.StatusNotFound {
		return fmt.Errorf("%w: %s: %v", shared.ErrPlaylistNotFound, id, strings.TrimSpace(he.Error()))
	}
	return err
}
