package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestLimiterLocalBucket(t *testing.T) {
	l := NewLimiter(2, nil)

	if !l.allowLocal("a") || !l.allowLocal("a") {
		t.Fatal("requests within budget denied")
	}
	if l.allowLocal("a") {
		t.Error("request over budget allowed")
	}
	if !l.allowLocal("b") {
		t.Error("separate client throttled by another client's budget")
	}
}

func TestLimiterGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewLimiter(1, nil).GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	statuses := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		statuses = append(statuses, w.Code)
	}
	if statuses[0] != http.StatusOK {
		t.Errorf("first request status = %d, want 200", statuses[0])
	}
	if statuses[1] != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", statuses[1])
	}
}
