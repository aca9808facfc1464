package pagination

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func queryFor(target string) Query {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", target, nil)
	return FromContext(c)
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, Query{Page: 1, Size: DefaultSize}, queryFor("/"))
	assert.Equal(t, Query{Page: 3, Size: 5}, queryFor("/?page=3&size=5"))
	assert.Equal(t, Query{Page: 1, Size: MaxSize}, queryFor("/?page=-2&size=1000"))
	assert.Equal(t, Query{Page: 1, Size: DefaultSize}, queryFor("/?page=x&size=0"))
}

func TestNewMeta(t *testing.T) {
	q := Query{Page: 2, Size: 10}
	assert.Equal(t, 10, q.Offset())

	m := NewMeta(q, 25)
	assert.Equal(t, 3, m.TotalPage)
	assert.True(t, m.HasNextPage)

	m = NewMeta(Query{Page: 1, Size: 10}, 0)
	assert.Zero(t, m.TotalPage)
	assert.False(t, m.HasNextPage)
}
