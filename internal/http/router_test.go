package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/twola/internal/config"
	"github.com/tbourn/twola/internal/importer"
	"github.com/tbourn/twola/internal/search"
	"github.com/tbourn/twola/internal/testutil"
)

func testConfig() config.Config {
	return config.Config{
		APIBasePath: "/api/v1",
		Keywords:    search.DefaultKeywords,
		RateRPS:     100,
		RateBurst:   100,
		OTEL:        config.OTELConfig{ServiceName: "twola-test"},
	}
}

// seededDB imports the canonical three source responses.
func seededDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutil.NewDB(t)
	if _, err := importer.New(db).Import(context.Background(), importer.FromStrings(testutil.SourceResponses...)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

func newRouter(t *testing.T, db *gorm.DB, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, db, cfg)
	return r
}

func get(r http.Handler, target string, hdr map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterRoutes_Pages(t *testing.T) {
	r := newRouter(t, seededDB(t), testConfig())

	w := get(r, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET / = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Coke is it!") || strings.Contains(body, "Pepsi") || strings.Contains(body, "Vimto") {
		t.Fatalf("home page should list only keyword matches:\n%s", body)
	}
	if csp := w.Header().Get("Content-Security-Policy"); csp == "" {
		t.Fatalf("pages should carry a CSP")
	}

	w = get(r, "/?all=1", nil)
	body = w.Body.String()
	i3, i13, i7 := strings.Index(body, "/tweet/3/"), strings.Index(body, "/tweet/13/"), strings.Index(body, "/tweet/7/")
	if i3 < 0 || !(i3 < i13 && i13 < i7) {
		t.Fatalf("unfiltered list should be ordered by score desc:\n%s", body)
	}

	w = get(r, "/tweet/3/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /tweet/3/ = %d", w.Code)
	}
	for _, want := range []string{"Coke is it!", ": 1.0<", ": 24<"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Fatalf("detail page missing %q", want)
		}
	}

	if w := get(r, "/tweet/12345/", nil); w.Code != http.StatusNotFound {
		t.Fatalf("unknown tweet = %d", w.Code)
	}
}

func TestRegisterRoutes_API(t *testing.T) {
	r := newRouter(t, seededDB(t), testConfig())

	w := get(r, "/api/v1/tweets?filter=false", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/tweets = %d", w.Code)
	}
	var resp struct {
		Tweets []struct {
			ID int64 `json:"id"`
		} `json:"tweets"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if resp.Count != 3 || resp.Tweets[0].ID != 3 || resp.Tweets[1].ID != 13 || resp.Tweets[2].ID != 7 {
		t.Fatalf("unexpected listing: %+v", resp)
	}
	if etag := w.Header().Get("ETag"); etag != `W/"tweets:false:3:13"` {
		t.Fatalf("ETag = %q", etag)
	}

	if w := get(r, "/api/v1/tweets/13", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"author":"@tasteless"`) {
		t.Fatalf("GET tweet 13 = %d %s", w.Code, w.Body.String())
	}
	if w := get(r, "/api/v1/tweets/99", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET tweet 99 = %d", w.Code)
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	r := newRouter(t, testutil.NewDB(t), testConfig())

	w := get(r, "/health", map[string]string{"Origin": "http://anywhere.test"})
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}

	w = get(r, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "twola_http_requests_total") {
		t.Fatalf("GET /metrics bad: code=%d", w.Code)
	}

	if w := get(r, "/nope", nil); w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.CORS.AllowedOrigins = []string{"http://app.example.org"}
	r := newRouter(t, testutil.NewDB(t), cfg)

	w := get(r, "/health", map[string]string{"Origin": "http://app.example.org"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example.org" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
	w = get(r, "/health", map[string]string{"Origin": "http://evil.test"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("origin outside allowlist must not be echoed, got %q", got)
	}
}

func TestRegisterRoutes_Gzip(t *testing.T) {
	r := newRouter(t, seededDB(t), testConfig())

	w := get(r, "/?all=1", map[string]string{"Accept-Encoding": "gzip"})
	if w.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip encoding, headers=%v", w.Header())
	}
	if w := get(r, "/?all=1", nil); w.Header().Get("Content-Encoding") != "" || !strings.Contains(w.Body.String(), "Vimto") {
		t.Fatalf("clients without gzip support get plain bodies")
	}
}

func TestRegisterRoutes_Swagger(t *testing.T) {
	cfg := testConfig()
	if w := get(newRouter(t, testutil.NewDB(t), cfg), "/swagger/doc.json", nil); w.Code != http.StatusNotFound {
		t.Fatalf("swagger disabled: expected 404, got %d", w.Code)
	}

	cfg.SwaggerEnabled = true
	w := get(newRouter(t, testutil.NewDB(t), cfg), "/swagger/doc.json", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/tweets/{id}") {
		t.Fatalf("swagger doc: %d %s", w.Code, w.Body.String())
	}
}

func TestRegisterRoutes_RateLimitExemptsHealth(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS, cfg.RateBurst = 0.001, 1
	r := newRouter(t, testutil.NewDB(t), cfg)

	if w := get(r, "/", nil); w.Code != http.StatusOK {
		t.Fatalf("first page request = %d", w.Code)
	}
	if w := get(r, "/", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second page request = %d; want 429", w.Code)
	}
	for i := 0; i < 3; i++ {
		if w := get(r, "/health", nil); w.Code != http.StatusOK {
			t.Fatalf("health must not be limited, got %d", w.Code)
		}
	}
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		if _, err := io.ReadAll(c.Request.Body); err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	groupWithPrefix(r, "/").GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	groupWithPrefix(r, "").GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })
	groupWithPrefix(r, "/api").GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for target, want := range map[string]string{"/one": "one", "/two": "two", "/api/ping": "pong"} {
		w := get(r, target, nil)
		if w.Code != http.StatusOK || w.Body.String() != want {
			t.Fatalf("GET %s got %d %q", target, w.Code, w.Body.String())
		}
	}
}

func TestPipeline_HSTSOverHTTPSProxy(t *testing.T) {
	cfg := testConfig()
	cfg.Security = config.SecurityConfig{EnableHSTS: true, HSTSMaxAge: time.Hour}
	r := newRouter(t, testutil.NewDB(t), cfg)

	w := get(r, "/health", map[string]string{"X-Forwarded-Proto": "https"})
	if got := w.Header().Get("Strict-Transport-Security"); !strings.HasPrefix(got, "max-age=3600") {
		t.Fatalf("HSTS = %q", got)
	}
}
