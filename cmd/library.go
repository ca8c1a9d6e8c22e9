package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/desertthunder/tunedeck/internal/analysis"
	"github.com/desertthunder/tunedeck/internal/formatter"
	"github.com/desertthunder/tunedeck/internal/listview"
	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/shared"
	"github.com/urfave/cli/v3"
)

// listState builds the list parameters from the shared listing flags.
// Filters and sorting reset the page, so the page is applied last.
func (r *Runner) listState(cmd *cli.Command, filters func(*listview.State)) *listview.State {
	size := cmd.Int("page-size")
	if size <= 0 {
		size = r.config.List.PageSize
	}
	state := listview.New(size)

	if key := cmd.String("sort"); key != "" {
		dir := listview.Asc
		if cmd.Bool("desc") {
			dir = listview.Desc
		}
		state.SetSort(key, dir)
	}
	if q := shared.NormalizeQuery(cmd.String("search")); q != "" {
		state.SetString("search", q)
	}
	if filters != nil {
		filters(state)
	}

	state.SetPage(cmd.Int("page"))
	return state
}

// writeList renders one page; table output gets a page footer.
func (r *Runner) writeList(cmd *cli.Command, tbl formatter.Table, page any, state *listview.State) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	out, err := formatter.Render(format, tbl, page)
	if err != nil {
		return err
	}
	if err := r.writeBytes(out); err != nil {
		return err
	}

	if format == formatter.FormatTable {
		return r.writePlain("Page %d of %d (%d total)\n", state.Page(), state.PageCount(), state.Total())
	}
	return nil
}

// PlaylistsList prints one page of playlists.
func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx); err != nil {
		return err
	}

	state := r.listState(cmd, func(s *listview.State) {
		if cmd.Bool("owned") {
			s.SetBool("owned", true)
		}
		if cmd.Bool("analyzed") {
			s.SetBool("analyzed", true)
		}
		if n := cmd.Int("min-tracks"); n > 0 {
			s.SetNumber("min_tracks", float64(n))
		}
	})

	page, err := r.queries.FetchPlaylists(ctx, state)
	if err != nil {
		return r.describeError(err)
	}
	return r.writeList(cmd, formatter.PlaylistTable(page.Items), page, state)
}

// TracksList prints one page of tracks.
func (r *Runner) TracksList(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx); err != nil {
		return err
	}

	state := r.listState(cmd, func(s *listview.State) {
		if n := cmd.Int("min-popularity"); n > 0 {
			s.SetNumber("min_popularity", float64(n))
		}
		if cmd.Bool("explicit") {
			s.SetBool("explicit", true)
		}
	})

	page, err := r.queries.FetchTracks(ctx, state)
	if err != nil {
		return r.describeError(err)
	}
	return r.writeList(cmd, formatter.TrackTable(page.Items), page, state)
}

// AlbumsList prints one page of albums.
func (r *Runner) AlbumsList(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx); err != nil {
		return err
	}

	state := r.listState(cmd, func(s *listview.State) {
		if g := strings.TrimSpace(cmd.String("genre")); g != "" {
			s.SetString("genre", g)
		}
	})

	page, err := r.queries.FetchAlbums(ctx, state)
	if err != nil {
		return r.describeError(err)
	}
	return r.writeList(cmd, formatter.AlbumTable(page.Items), page, state)
}

// ArtistsList prints one page of artists.
func (r *Runner) ArtistsList(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx); err != nil {
		return err
	}

	state := r.listState(cmd, func(s *listview.State) {
		if n := cmd.Int("min-popularity"); n > 0 {
			s.SetNumber("min_popularity", float64(n))
		}
		if g := strings.TrimSpace(cmd.String("genre")); g != "" {
			s.SetString("genre", g)
		}
	})

	page, err := r.queries.FetchArtists(ctx, state)
	if err != nil {
		return r.describeError(err)
	}
	return r.writeList(cmd, formatter.ArtistTable(page.Items), page, state)
}

func playlistID(cmd *cli.Command) (string, error) {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return "", fmt.Errorf("%w: playlist ID", shared.ErrMissingArgument)
	}
	return id, nil
}

// PlaylistsShow prints a playlist and its tracks.
func (r *Runner) PlaylistsShow(ctx context.Context, cmd *cli.Command) error {
	id, err := playlistID(cmd)
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.setup(ctx); err != nil {
		return err
	}

	detail, err := r.queries.FetchPlaylist(ctx, id)
	if err != nil {
		return r.describeError(err)
	}

	if format == formatter.FormatTable {
		r.writePlainHeader(detail.Name)
		r.writePlain("ID: %s\n", detail.ID)
		if detail.Owner != "" {
			r.writePlain("Owner: %s\n", detail.Owner)
		}
		if detail.Description != "" {
			r.writePlain("Description: %s\n", detail.Description)
		}
		r.writePlain("Visibility: %s\n", shared.VisibilityString(detail.Public))
		if detail.LastSyncedAt != nil {
			r.writePlain("Last synced: %s\n", detail.LastSyncedAt.Format("2006-01-02 15:04"))
		}
		r.writePlain("Tracks: %d\n\n", len(detail.Tracks))
	}

	out, err := formatter.Render(format, formatter.TrackTable(detail.Tracks), detail)
	if err != nil {
		return err
	}
	return r.writeBytes(out)
}

// PlaylistsExport writes a playlist to disk in the requested format.
func (r *Runner) PlaylistsExport(ctx context.Context, cmd *cli.Command) error {
	id, err := playlistID(cmd)
	if err != nil {
		return err
	}
	if err := r.setup(ctx); err != nil {
		return err
	}

	detail, err := r.queries.FetchPlaylist(ctx, id)
	if err != nil {
		return r.describeError(err)
	}

	outDir := cmd.String("output")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	base := filepath.Join(outDir, detail.ID)

	switch format := strings.ToLower(cmd.String("format")); format {
	case "csv":
		result, err := formatter.WriteCSVExport(detail, base)
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %d tracks\n", len(detail.Tracks))
		r.writePlain("  %s\n  %s\n", result.TracksFile, result.MetadataFile)
	case "markdown", "md":
		result, err := formatter.WriteMarkdownExport(ctx, formatter.MarkdownExport{
			Detail:   detail,
			Summary:  r.optionalSummary(ctx, detail.Playlist),
			ImageURL: detail.ImageURL,
			Client:   r.httpClient,
		}, base)
		if err != nil {
			return err
		}
		for _, w := range result.Warnings {
			r.logger.Warn("export warning", "playlist_id", detail.ID, "warning", w)
		}
		r.writePlain("✓ Exported %d tracks to %s\n", len(detail.Tracks), result.Directory)
		for _, f := range result.Files {
			r.writePlain("  %s\n", f)
		}
	case "text", "txt":
		path, err := formatter.WriteTextExport(detail, base+"_tracks.txt")
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %d tracks to %s\n", len(detail.Tracks), path)
	case "json":
		path, err := formatter.WriteJSONExport(detail, base+".json")
		if err != nil {
			return err
		}
		r.writePlain("✓ Exported %d tracks to %s\n", len(detail.Tracks), path)
	default:
		return fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidFlag, format)
	}
	return nil
}

// optionalSummary returns the analysis summary of an analyzed playlist, or nil.
func (r *Runner) optionalSummary(ctx context.Context, p models.Playlist) *analysis.Summary {
	if !p.Analyzed {
		return nil
	}

	a, err := r.queries.FetchAnalysis(ctx, p.ID)
	if err != nil {
		r.logger.Warn("analysis unavailable", "playlist_id", p.ID, "error", err)
		return nil
	}

	summary, err := analysis.Summarize(a, analysis.DefaultBuckets)
	if err != nil {
		r.logger.Warn("failed to summarize analysis", "playlist_id", p.ID, "error", err)
		return nil
	}
	return summary
}

// PlaylistsStats prints per-feature statistics of a playlist's analysis.
func (r *Runner) PlaylistsStats(ctx context.Context, cmd *cli.Command) error {
	id, err := playlistID(cmd)
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}
	if err := r.setup(ctx); err != nil {
		return err
	}

	a, err := r.queries.FetchAnalysis(ctx, id)
	if err != nil {
		return r.describeError(err)
	}

	summary, err := analysis.Summarize(a, cmd.Int("buckets"))
	if err != nil {
		return err
	}

	if format == formatter.FormatTable {
		r.writePlainHeader(fmt.Sprintf("Audio features of %s", id))
		r.writePlain("Tracks: %d\n", summary.Tracks)
		r.writePlain("Total duration: %s\n", shared.FormatDuration(summary.TotalDurationMS))
		r.writePlain("Major key: %.0f%%\n", summary.MajorRatio*100)
		if len(summary.Keys) > 0 {
			r.writePlain("Keys: %s\n", formatKeys(summary.Keys))
		}
		r.writePlain("\n")
	}

	out, err := formatter.Render(format, formatter.StatsTable(summary), summary)
	if err != nil {
		return err
	}
	return r.writeBytes(out)
}

// formatKeys lists key counts, most frequent first.
func formatKeys(keys map[string]int) string {
	type kc struct {
		key   string
		count int
	}
	counts := make([]kc, 0, len(keys))
	for k, c := range keys {
		counts = append(counts, kc{k, c})
	}
	slices.SortFunc(counts, func(a, b kc) int {
		if a.count != b.count {
			return b.count - a.count
		}
		return strings.Compare(a.key, b.key)
	})

	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s (%d)", c.key, c.count)
	}
	return strings.Join(parts, ", ")
}
