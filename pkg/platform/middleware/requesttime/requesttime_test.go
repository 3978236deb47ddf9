package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"compliance/pkg/requestcontext"
)

func TestWithClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	var first, second time.Time

	handler := WithClock(func() time.Time { return fixed })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, first, second)
	assert.True(t, first.Equal(fixed))
	assert.Equal(t, time.UTC, first.Location())
}

func TestNowFallsBackWithoutMiddleware(t *testing.T) {
	before := time.Now()
	got := requestcontext.Now(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, got.Before(before))
}
