package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/purity/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestRequestLoggerLevels(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	r := gin.New()
	r.Use(RequestLogger(logger), RequestMetricsMiddleware("sess-a"))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	for _, path := range []string{"/ok", "/metrics", "/bad", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("log lines=%d want 4: %s", len(lines), buf.String())
	}
	want := []string{`"level":"info"`, `"level":"debug"`, `"level":"warn"`, `"path":"unmatched"`}
	for i, w := range want {
		if !strings.Contains(lines[i], w) {
			t.Fatalf("line %d missing %s: %s", i, w, lines[i])
		}
	}
}
