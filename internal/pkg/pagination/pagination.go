package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage = 1
	DefaultSize = 10
	MaxSize     = 50
)

// Query holds parsed pagination parameters.
type Query struct {
	Page int
	Size int
}

// Offset is the number of items skipped before this page.
func (q Query) Offset() int { return (q.Page - 1) * q.Size }

// Meta is the pagination block returned next to a page of data.
type Meta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"currentPage"`
	TotalPage   int   `json:"totalPage"`
	Size        int   `json:"size"`
	HasNextPage bool  `json:"hasNextPage"`
}

// FromContext extracts and clamps pagination params from the request.
func FromContext(c *gin.Context) Query {
	return Normalize(Query{
		Page: parseIntOr(c.Query("page"), DefaultPage),
		Size: parseIntOr(c.Query("size"), DefaultSize),
	})
}

// Normalize clamps out-of-range values to the defaults.
func Normalize(q Query) Query {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Size < 1 {
		q.Size = DefaultSize
	}
	if q.Size > MaxSize {
		q.Size = MaxSize
	}
	return q
}

func NewMeta(q Query, total int64) Meta {
	totalPage := int((total + int64(q.Size) - 1) / int64(q.Size))
	return Meta{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPage,
		Size:        q.Size,
		HasNextPage: q.Page < totalPage,
	}
}

func parseIntOr(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
