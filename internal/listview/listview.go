// Package listview holds the per-feature pagination, sort and filter state of
// a list screen and turns it into request parameters and cache keys.
package listview

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"

	"github.com/desertthunder/tunedeck/internal/querycache"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// DefaultPageSize is used when a State is created with a non-positive size.
const DefaultPageSize = 20

type filterKind int

const (
	filterBool filterKind = iota
	filterString
	filterNumber
)

type filter struct {
	kind filterKind
	b    bool
	s    string
	n    float64
}

func (f filter) encode() string {
	switch f.kind {
	case filterBool:
		return strconv.FormatBool(f.b)
	case filterNumber:
		return strconv.FormatFloat(f.n, 'f', -1, 64)
	default:
		return f.s
	}
}

// State is the list state of one screen. It is not safe for concurrent use;
// each view owns its own State.
type State struct {
	defaultPageSize int

	page     int
	pageSize int
	total    int
	loading  bool
	sortKey  string
	sortDir  Direction
	filters  map[string]filter
}

// New returns a State on page 1 with the given default page size.
func New(pageSize int) *State {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	s := &State{defaultPageSize: pageSize}
	s.Reset()
	return s
}

// Reset restores defaults, as when the user navigates away.
func (s *State) Reset() {
	s.page = 1
	s.pageSize = s.defaultPageSize
	s.total = 0
	s.loading = false
	s.sortKey = ""
	s.sortDir = Asc
	s.filters = make(map[string]filter)
}

func (s *State) Page() int { return s.page }
func (s *State) PageSize() int { return s.pageSize }
func (s *State) Total() int { return s.total }
func (s *State) Loading() bool { return s.loading }
func (s *State) Sort() (string, Direction) { return s.sortKey, s.sortDir }

// SetPage moves to page; values below 1 become 1.
func (s *State) SetPage(page int) {
	s.page = max(page, 1)
}

// NextPage advances one page when another is known to exist.
func (s *State) NextPage() bool {
	if !s.HasNext() {
		return false
	}
	s.page++
	return true
}

// PrevPage moves back one page.
func (s *State) PrevPage() bool {
	if !s.HasPrev() {
		return false
	}
	s.page--
	return true
}

// SetPageSize changes the page size. The current page is kept even when it
// falls past the end; [State.SetTotal] repairs it once the server answers.
func (s *State) SetPageSize(size int) error {
	if size < 1 {
		return fmt.Errorf("page size must be positive, got %d", size)
	}
	s.pageSize = size
	return nil
}

// SetSort sorts by key; an empty key clears sorting. Changing the sort
// returns to page 1.
func (s *State) SetSort(key string, dir Direction) {
	if dir != Desc {
		dir = Asc
	}
	if key != s.sortKey || dir != s.sortDir {
		s.page = 1
	}
	s.sortKey = key
	s.sortDir = dir
}

// SetBool sets a boolean filter and returns to page 1.
func (s *State) SetBool(name string, v bool) {
	s.setFilter(name, filter{kind: filterBool, b: v})
}

// SetString sets a string filter; an empty value clears it.
func (s *State) SetString(name, v string) {
	if v == "" {
		s.ClearFilter(name)
		return
	}
	s.setFilter(name, filter{kind: filterString, s: v})
}

// SetNumber sets a numeric filter and returns to page 1.
func (s *State) SetNumber(name string, v float64) {
	s.setFilter(name, filter{kind: filterNumber, n: v})
}

// ClearFilter removes a filter.
func (s *State) ClearFilter(name string) {
	if _, ok := s.filters[name]; ok {
		delete(s.filters, name)
		s.page = 1
	}
}

// Filter returns the encoded value of a filter.
func (s *State) Filter(name string) (string, bool) {
	f, ok := s.filters[name]
	if !ok {
		return "", false
	}
	return f.encode(), true
}

func (s *State) setFilter(name string, f filter) {
	if old, ok := s.filters[name]; !ok || old != f {
		s.page = 1
	}
	s.filters[name] = f
}

// SetTotal records the server-reported total and clamps the page to the
// last one that exists.
func (s *State) SetTotal(total int) {
	s.total = max(total, 0)
	if last := s.PageCount(); s.page > last {
		s.page = last
	}
}

// SetLoading flags an in-flight request.
func (s *State) SetLoading(v bool) { s.loading = v }

// PageCount is the number of pages for the current total, at least 1.
func (s *State) PageCount() int {
	if s.total == 0 {
		return 1
	}
	return (s.total + s.pageSize - 1) / s.pageSize
}

// Offset is the zero-based index of the first item on the page.
func (s *State) Offset() int {
	return (s.page - 1) * s.pageSize
}

func (s *State) HasNext() bool { return s.page < s.PageCount() }
func (s *State) HasPrev() bool { return s.page > 1 }

// Params encodes every active parameter for the list endpoint.
func (s *State) Params() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(s.page))
	v.Set("page_size", strconv.Itoa(s.pageSize))
	if s.sortKey != "" {
		v.Set("sort", s.sortKey)
		v.Set("order", string(s.sortDir))
	}
	for name, f := range s.filters {
		v.Set(name, f.encode())
	}
	return v
}

// Key is prefix followed by every parameter as name=value in name order.
// Two states produce the same key exactly when they request the same data.
func (s *State) Key(prefix ...string) querycache.Key {
	params := s.Params()
	key := querycache.NewKey(prefix...)
	for _, name := range slices.Sorted(maps.Keys(params)) {
		key = append(key, name+"="+params.Get(name))
	}
	return key
}
