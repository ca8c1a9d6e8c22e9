package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/tunedeck/internal/analysis"
	"github.com/desertthunder/tunedeck/internal/models"
	"github.com/desertthunder/tunedeck/internal/shared"
)

// Format selects how list output is rendered.
type Format string

const (
	FormatTable    Format = "table"
	FormatMarkdown Format = "markdown"
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
)

// ParseFormat validates an output format name. Empty means [FormatTable].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (table, markdown, csv, json)", shared.ErrInvalidFlag, s)
	}
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Table is rendered output in rows and columns.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Text draws the table with box borders for a terminal.
func (t Table) Text() string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(t.Headers...).
		Rows(t.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return tbl.String()
}

// Markdown renders a GitHub flavored pipe table.
func (t Table) Markdown() []byte {
	var buf bytes.Buffer
	writeRow := func(cells []string) {
		buf.WriteString("|")
		for _, c := range cells {
			buf.WriteString(" ")
			buf.WriteString(strings.ReplaceAll(c, "|", `\|`))
			buf.WriteString(" |")
		}
		buf.WriteString("\n")
	}

	writeRow(t.Headers)
	sep := make([]string, len(t.Headers))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, r := range t.Rows {
		writeRow(r)
	}
	return buf.Bytes()
}

// CSV renders the table with a header record.
func (t Table) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("failed to write CSV records: %w", err)
	}
	return buf.Bytes(), nil
}

// Render produces t in format f. JSON output encodes v instead of the table.
func Render(f Format, t Table, v any) ([]byte, error) {
	switch f {
	case FormatJSON:
		data, err := shared.MarshalJSON(v, true)
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatCSV:
		return t.CSV()
	case FormatMarkdown:
		return t.Markdown(), nil
	default:
		return []byte(t.Text() + "\n"), nil
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// PlaylistTable lists playlists.
func PlaylistTable(items []models.Playlist) Table {
	t := Table{Headers: []string{"ID", "Name", "Owner", "Tracks", "Visibility", "Analyzed"}}
	for _, p := range items {
		t.Rows = append(t.Rows, []string{
			p.ID, p.Name, p.Owner, strconv.Itoa(p.TrackCount), shared.VisibilityString(p.Public), yesNo(p.Analyzed),
		})
	}
	return t
}

// TrackTable lists tracks.
func TrackTable(items []models.Track) Table {
	t := Table{Headers: []string{"ID", "Name", "Artist", "Album", "Duration", "Popularity", "Explicit"}}
	for _, tr := range items {
		t.Rows = append(t.Rows, []string{
			tr.ID, tr.Name, tr.Artist, tr.Album, shared.FormatDuration(tr.DurationMS), strconv.Itoa(tr.Popularity), yesNo(tr.Explicit),
		})
	}
	return t
}

// AlbumTable lists albums.
func AlbumTable(items []models.Album) Table {
	t := Table{Headers: []string{"ID", "Name", "Artist", "Released", "Tracks", "Genres"}}
	for _, a := range items {
		t.Rows = append(t.Rows, []string{
			a.ID, a.Name, a.Artist, a.ReleaseDate, strconv.Itoa(a.TotalTracks), strings.Join(a.Genres, ", "),
		})
	}
	return t
}

// ArtistTable lists artists.
func ArtistTable(items []models.Artist) Table {
	t := Table{Headers: []string{"ID", "Name", "Genres", "Popularity", "Followers"}}
	for _, a := range items {
		t.Rows = append(t.Rows, []string{
			a.ID, a.Name, strings.Join(a.Genres, ", "), strconv.Itoa(a.Popularity), strconv.Itoa(a.Followers),
		})
	}
	return t
}

// NotificationTable lists recorded notifications.
func NotificationTable(items []models.NotificationRecord) Table {
	t := Table{Headers: []string{"Received", "Task", "Type", "Status", "Playlist"}}
	for _, n := range items {
		t.Rows = append(t.Rows, []string{
			n.ReceivedAt.Local().Format("2006-01-02 15:04:05"), n.TaskID, n.TaskType, n.TaskStatus, n.PlaylistID,
		})
	}
	return t
}

// StatsTable lists per-feature statistics with a histogram sparkline.
func StatsTable(s *analysis.Summary) Table {
	t := Table{Headers: []string{"Feature", "Mean", "Median", "Min", "Max", "Std Dev", "Distribution"}}
	for _, st := range s.Features {
		t.Rows = append(t.Rows, []string{
			string(st.Feature),
			formatFloat(st.Mean),
			formatFloat(st.Median),
			formatFloat(st.Min),
			formatFloat(st.Max),
			formatFloat(st.StdDev),
			Sparkline(st.Histogram),
		})
	}
	return t
}

// BulkTable lists the outcome of each task in a bulk run.
func BulkTable(r *models.BulkResult) Table {
	t := Table{Headers: []string{"Playlist", "Task", "Status", "Result"}}
	for _, o := range r.Results {
		result := "ok"
		if !o.Success {
			result = o.Error
		}
		t.Rows = append(t.Rows, []string{o.PlaylistID, o.TaskID, o.Status, result})
	}
	return t
}

var sparks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws histogram counts as block characters scaled to the tallest bucket.
func Sparkline(buckets []analysis.Bucket) string {
	peak := 0
	for _, b := range buckets {
		peak = max(peak, b.Count)
	}
	if peak == 0 {
		return ""
	}

	var sb strings.Builder
	for _, b := range buckets {
		i := b.Count * (len(sparks) - 1) / peak
		sb.WriteRune(sparks[i])
	}
	return sb.String()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}
