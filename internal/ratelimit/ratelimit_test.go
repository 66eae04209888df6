package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := New(db, Config{Limit: 2, Window: time.Minute}, nil)
	ctx := context.Background()
	key := "ratelimit:register:1.2.3.4"

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)
	mock.ExpectIncr(key).SetVal(2)
	mock.ExpectIncr(key).SetVal(3)

	for _, want := range []bool{true, true, false} {
		ok, err := l.Allow(ctx, "register", "1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAllow_RedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	l := New(db, Config{Limit: 2, Window: time.Minute}, nil)

	mock.ExpectIncr("ratelimit:scan:ip").SetErr(errors.New("connection refused"))

	_, err := l.Allow(context.Background(), "scan", "ip")
	assert.Error(t, err)
}

func newRouter(l *Limiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", l.Middleware("x"), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestMiddleware(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := newRouter(New(db, Config{Limit: 1, Window: time.Minute}, nil))
	key := "ratelimit:x:192.0.2.1"

	mock.ExpectIncr(key).SetVal(1)
	mock.ExpectExpire(key, time.Minute).SetVal(true)
	mock.ExpectIncr(key).SetVal(2)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_FailsOpen(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := newRouter(New(db, Config{Limit: 1, Window: time.Minute}, nil))
	mock.ExpectIncr("ratelimit:x:192.0.2.1").SetErr(errors.New("down"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
