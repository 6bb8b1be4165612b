package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"composer/backend/internal/collab"
	"composer/backend/internal/httpapi/handlers"
	"composer/backend/internal/httpapi/middleware"
)

var secret = []byte("router-secret")

type client struct {
	t     *testing.T
	r     *gin.Engine
	token string
}

func newClient(t *testing.T) *client {
	gin.SetMode(gin.TestMode)
	svc := collab.NewInMemoryService(collab.Options{})
	r := NewRouter(handlers.NewDocumentHandler(svc, nil, time.Minute, nil), RouterOptions{
		Secret:       secret,
		AllowOrigins: []string{"http://localhost:5173"},
	})
	tok, err := middleware.SignAccessToken(secret, 1, "alice", time.Minute)
	if err != nil {
		t.Fatalf("SignAccessToken() error = %v", err)
	}
	return &client{t: t, r: r, token: tok}
}

func (c *client) do(method, path string, body any) (int, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			c.t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	w := httptest.NewRecorder()
	c.r.ServeHTTP(w, req)
	out := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func caret(offset int) map[string]any {
	return map[string]any{"startOffset": offset, "endOffset": offset, "collapsed": true}
}

func TestRouter_EditFlow(t *testing.T) {
	c := newClient(t)

	code, resp := c.do(http.MethodPost, "/v1/docs/d1/commands/insert-text", map[string]any{"selection": caret(0), "text": "hello"})
	if code != http.StatusOK || resp["revision"].(float64) != 1 {
		t.Fatalf("insert-text = %d %v", code, resp)
	}

	code, resp = c.do(http.MethodPost, "/v1/docs/d1/commands/add-range", map[string]any{
		"selection":  map[string]any{"startOffset": 0, "endOffset": 5},
		"rangeId":    "c1",
		"rangeType":  3,
		"properties": map[string]any{"commentId": "thread-1"},
	})
	if code != http.StatusOK {
		t.Fatalf("add-range = %d %v", code, resp)
	}

	code, resp = c.do(http.MethodPost, "/v1/docs/d1/commands/delete-range", map[string]any{"rangeId": "c1", "cursor": 7})
	if code != http.StatusOK || resp["cursor"].(float64) != 5 {
		t.Fatalf("delete-range = %d %v", code, resp)
	}

	code, resp = c.do(http.MethodPost, "/v1/docs/d1/commands/delete", map[string]any{"selection": caret(5), "direction": "left"})
	if code != http.StatusOK {
		t.Fatalf("delete = %d %v", code, resp)
	}

	code, resp = c.do(http.MethodPost, "/v1/docs/d1/ime/start", map[string]any{"selection": caret(4)})
	if code != http.StatusOK {
		t.Fatalf("ime/start = %d %v", code, resp)
	}
	code, resp = c.do(http.MethodPost, "/v1/docs/d1/ime/input", map[string]any{"newText": "p!", "isCompositionStart": true, "isCompositionEnd": true})
	if code != http.StatusOK || resp["noHistory"].(bool) {
		t.Fatalf("ime/input = %d %v", code, resp)
	}

	code, resp = c.do(http.MethodGet, "/v1/docs/d1", nil)
	if code != http.StatusOK {
		t.Fatalf("get = %d %v", code, resp)
	}
	body := resp["document"].(map[string]any)["body"].(map[string]any)
	if body["dataStream"] != "hellp!\r\n" || resp["revision"].(float64) != 5 {
		t.Fatalf("document = %v rev %v", body["dataStream"], resp["revision"])
	}

	code, resp = c.do(http.MethodGet, "/v1/docs/d1/mutations?since=3", nil)
	if code != http.StatusOK || len(resp["mutations"].([]any)) != 2 {
		t.Fatalf("mutations = %d %v", code, resp)
	}
}

func TestRouter_Errors(t *testing.T) {
	c := newClient(t)
	cases := []struct {
		name string
		path string
		body any
		want int
	}{
		{"bad json", "/v1/docs/d1/commands/insert-text", "nope", http.StatusBadRequest},
		{"missing segment", "/v1/docs/d1/commands/insert-text", map[string]any{"selection": map[string]any{"segmentId": "h1", "collapsed": true}, "text": "x"}, http.StatusNotFound},
		{"rejected", "/v1/docs/d1/commands/delete-range", map[string]any{"rangeId": "nope"}, http.StatusUnprocessableEntity},
		{"bad direction", "/v1/docs/d1/commands/delete", map[string]any{"selection": caret(0), "direction": "up"}, http.StatusBadRequest},
		{"no composition", "/v1/docs/d1/ime/input", map[string]any{"newText": "x"}, http.StatusConflict},
		{"no snapshot store", "/v1/docs/d1/snapshot", nil, http.StatusNotImplemented},
		{"no document store", "/v1/docs", map[string]any{"title": "t"}, http.StatusNotImplemented},
	}
	// load d1 first so the snapshot case reaches the store check
	c.do(http.MethodGet, "/v1/docs/d1", nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c.t = t
			if code, resp := c.do(http.MethodPost, tc.path, tc.body); code != tc.want {
				t.Fatalf("status = %d, want %d (%v)", code, tc.want, resp)
			}
		})
	}

	c.token = ""
	c.t = t
	if code, _ := c.do(http.MethodGet, "/v1/docs/d1", nil); code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", code)
	}
	if code, _ := c.do(http.MethodGet, "/healthz", nil); code != http.StatusOK {
		t.Fatalf("healthz status = %d", code)
	}
}
