package listview

import (
	"testing"

	"github.com/desertthunder/tunedeck/internal/querycache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s := New(0)
		assert.Equal(t, 1, s.Page())
		assert.Equal(t, DefaultPageSize, s.PageSize())
		assert.Equal(t, 1, s.PageCount())
		assert.False(t, s.HasNext())
		assert.False(t, s.HasPrev())
	})

	t.Run("navigation follows total", func(t *testing.T) {
		s := New(10)
		s.SetTotal(25)
		assert.Equal(t, 3, s.PageCount())

		assert.True(t, s.NextPage())
		assert.True(t, s.NextPage())
		assert.False(t, s.NextPage())
		assert.Equal(t, 3, s.Page())
		assert.Equal(t, 20, s.Offset())

		assert.True(t, s.PrevPage())
		assert.Equal(t, 2, s.Page())

		s.SetPage(-4)
		assert.Equal(t, 1, s.Page())
		assert.False(t, s.PrevPage())
	})

	t.Run("page size change does not clamp until total arrives", func(t *testing.T) {
		s := New(10)
		s.SetTotal(50)
		s.SetPage(5)

		require.NoError(t, s.SetPageSize(25))
		assert.Equal(t, 5, s.Page())

		s.SetTotal(50)
		assert.Equal(t, 2, s.Page())

		assert.Error(t, s.SetPageSize(0))
	})

	t.Run("empty total clamps to first page", func(t *testing.T) {
		s := New(10)
		s.SetPage(4)
		s.SetTotal(0)
		assert.Equal(t, 1, s.Page())
	})

	t.Run("filters and sort reset the page", func(t *testing.T) {
		s := New(10)
		s.SetTotal(100)

		s.SetPage(3)
		s.SetBool("owned", true)
		assert.Equal(t, 1, s.Page())

		s.SetPage(3)
		s.SetBool("owned", true)
		assert.Equal(t, 3, s.Page(), "unchanged filter keeps the page")

		s.SetString("search", "chill")
		s.SetNumber("min_tracks", 5)
		s.SetSort("name", Desc)

		params := s.Params()
		assert.Equal(t, "1", params.Get("page"))
		assert.Equal(t, "10", params.Get("page_size"))
		assert.Equal(t, "true", params.Get("owned"))
		assert.Equal(t, "chill", params.Get("search"))
		assert.Equal(t, "5", params.Get("min_tracks"))
		assert.Equal(t, "name", params.Get("sort"))
		assert.Equal(t, "desc", params.Get("order"))

		s.SetString("search", "")
		_, ok := s.Filter("search")
		assert.False(t, ok)

		s.ClearFilter("owned")
		assert.Empty(t, s.Params().Get("owned"))
	})

	t.Run("Reset", func(t *testing.T) {
		s := New(15)
		s.SetTotal(100)
		s.SetPage(4)
		s.SetSort("name", Asc)
		s.SetBool("analyzed", false)
		s.SetLoading(true)
		require.NoError(t, s.SetPageSize(50))

		s.Reset()
		assert.Equal(t, 1, s.Page())
		assert.Equal(t, 15, s.PageSize())
		assert.Zero(t, s.Total())
		assert.False(t, s.Loading())
		key, _ := s.Sort()
		assert.Empty(t, key)
		assert.Len(t, s.Params(), 2)
	})
}

func TestKey(t *testing.T) {
	t.Run("keys differing only by page are distinct", func(t *testing.T) {
		s := New(10)
		s.SetTotal(100)

		s.SetPage(1)
		k1 := s.Key("browser", "playlists")
		s.SetPage(2)
		k2 := s.Key("browser", "playlists")

		assert.NotEqual(t, k1.String(), k2.String())

		cache := querycache.New()
		cache.Set(k1, "page one")
		cache.Set(k2, "page two")

		got, _ := querycache.GetAs[string](cache, k1)
		assert.Equal(t, "page one", got)
		got, _ = querycache.GetAs[string](cache, k2)
		assert.Equal(t, "page two", got)
	})

	t.Run("identical parameters share a key", func(t *testing.T) {
		a := New(10)
		a.SetBool("owned", true)
		a.SetString("search", "x")

		b := New(10)
		b.SetString("search", "x")
		b.SetBool("owned", true)

		assert.Equal(t, a.Key("tracks").String(), b.Key("tracks").String())
	})

	t.Run("key keeps prefix", func(t *testing.T) {
		k := New(10).Key("browser", "playlists")
		assert.True(t, k.HasPrefix(querycache.NewKey("browser", "playlists")))
		assert.Equal(t, querycache.NewKey("browser", "playlists", "page=1", "page_size=10"), k)
	})
}
