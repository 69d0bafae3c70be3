package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/planloop/internal/bus"
	"github.com/roasbeef/planloop/internal/review"
	"github.com/roasbeef/planloop/internal/store"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	fileStore, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	eventBus := bus.New(nil)
	engine := review.NewEngine(fileStore, eventBus, nil, nil)
	svc := review.NewService(engine, nil)

	cfg := DefaultConfig()
	cfg.IdleTimeout = 0

	srv := NewServer(cfg, svc, eventBus, nil, nil)
	ts := httptest.NewServer(srv.router)
	t.Cleanup(ts.Close)

	return srv, ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	return resp, buf.Bytes()
}

func createReview(t *testing.T, ts *httptest.Server, plan string) review.Review {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/reviews",
		map[string]string{"plan": plan})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var r review.Review
	require.NoError(t, json.Unmarshal(body, &r))
	return r
}

func TestAPI_DirectApproval(t *testing.T) {
	_, ts := newTestServer(t)

	r := createReview(t, ts, "# Step 1\nDo X")
	require.Equal(t, review.StatusOpen, r.Status)
	require.Len(t, r.DocumentVersions, 1)

	resp, body := doJSON(t, http.MethodPost,
		ts.URL+"/api/reviews/"+r.ID+"/approve",
		map[string]string{"note": "ship it"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var approved review.Review
	require.NoError(t, json.Unmarshal(body, &approved))
	require.Equal(t, review.StatusApproved, approved.Status)
	require.Len(t, approved.DocumentVersions, 1)
	require.Equal(t, "ship it", approved.ApprovalNote)
}

func TestAPI_InvalidTransition(t *testing.T) {
	_, ts := newTestServer(t)

	r := createReview(t, ts, "plan")

	resp, _ := doJSON(t, http.MethodPost,
		ts.URL+"/api/reviews/"+r.ID+"/approve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost,
		ts.URL+"/api/reviews/"+r.ID+"/request-changes", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errBody map[string]string
	require.NoError(t, json.Unmarshal(body, &errBody))
	require.Contains(t, errBody["error"], "invalid transition")

	// State unchanged.
	resp, body = doJSON(t, http.MethodGet,
		ts.URL+"/api/reviews/"+r.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var after review.Review
	require.NoError(t, json.Unmarshal(body, &after))
	require.Equal(t, review.StatusApproved, after.Status)
}

func TestAPI_NotFound(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet,
		ts.URL+"/api/reviews/no-such-review", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errBody map[string]string
	require.NoError(t, json.Unmarshal(body, &errBody))
	require.NotEmpty(t, errBody["error"])
}

func TestAPI_CommentLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	r := createReview(t, ts, "line one\nline two")

	resp, body := doJSON(t, http.MethodPost,
		ts.URL+"/api/reviews/"+r.ID+"/comments",
		map[string]any{
			"quote":   "line one",
			"comment": "rename",
			"position": map[string]int{
				"startOffset": 0,
				"endOffset":   8,
			},
		})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var c review.Comment
	require.NoError(t, json.Unmarshal(body, &c))
	require.Equal(t, "rename", c.Text)
	require.Equal(t, review.PositionValid, c.PositionStatus)

	resp, body = doJSON(t, http.MethodPut,
		ts.URL+"/api/reviews/"+r.ID+"/comments/"+c.ID,
		map[string]string{"comment": "rename to LINE_ONE"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var after review.Review
	require.NoError(t, json.Unmarshal(body, &after))
	require.Equal(t, "rename to LINE_ONE",
		after.CommentByID(c.ID).Text)

	resp, _ = doJSON(t, http.MethodDelete,
		ts.URL+"/api/reviews/"+r.ID+"/comments/"+c.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete,
		ts.URL+"/api/reviews/"+r.ID+"/comments/"+c.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_PlanUpdateAndDiff(t *testing.T) {
	_, ts := newTestServer(t)

	r := createReview(t, ts, "a\nb\nc")
	v1 := r.CurrentVersion

	_, body := doJSON(t, http.MethodPost,
		ts.URL+"/api/reviews/"+r.ID+"/comments",
		map[string]any{
			"comment":  "swap b for X",
			"position": map[string]int{"startOffset": 2, "endOffset": 3},
		})
	_ = body

	resp, _ := doJSON(t, http.MethodPost,
		ts.URL+"/api/reviews/"+r.ID+"/request-changes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPut,
		ts.URL+"/api/reviews/"+r.ID+"/plan",
		map[string]string{
			"content": "a\nX\nc",
			"author":  "agent",
		})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var updated review.Review
	require.NoError(t, json.Unmarshal(body, &updated))
	require.Equal(t, review.StatusUpdated, updated.Status)
	require.Len(t, updated.DocumentVersions, 2)

	url := fmt.Sprintf("%s/api/reviews/%s/diff?from=%s&to=%s",
		ts.URL, r.ID, v1, updated.CurrentVersion)
	resp, body = doJSON(t, http.MethodGet, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var diff review.Diff
	require.NoError(t, json.Unmarshal(body, &diff))
	require.Equal(t, review.DiffStats{
		Additions: 1,
		Deletions: 1,
		Unchanged: 2,
	}, diff.Stats)

	// Version summaries list both versions, newest flagged current.
	resp, body = doJSON(t, http.MethodGet,
		ts.URL+"/api/reviews/"+r.ID+"/versions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var versions []versionSummary
	require.NoError(t, json.Unmarshal(body, &versions))
	require.Len(t, versions, 2)
	require.False(t, versions[0].Current)
	require.True(t, versions[1].Current)
}

func TestAPI_ValidationErrors(t *testing.T) {
	_, ts := newTestServer(t)

	// Missing plan content.
	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/reviews",
		map[string]string{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	r := createReview(t, ts, "short")

	// Out-of-range comment position.
	resp, _ = doJSON(t, http.MethodPost,
		ts.URL+"/api/reviews/"+r.ID+"/comments",
		map[string]any{
			"comment":  "x",
			"position": map[string]int{"startOffset": 0, "endOffset": 99},
		})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Malformed JSON body.
	req, err := http.NewRequest(http.MethodPost,
		ts.URL+"/api/reviews", strings.NewReader("{broken"))
	require.NoError(t, err)
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	require.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestAPI_EventStreamFirstFrame(t *testing.T) {
	srv, ts := newTestServer(t)

	r := createReview(t, ts, "streamed plan")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		ts.URL+"/api/reviews/"+r.ID+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream",
		resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	eventLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: connected", strings.TrimSpace(eventLine))

	idLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(idLine, "id: "))

	dataLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(dataLine, "data: "))

	var frame struct {
		Review review.Review `json:"review"`
	}
	require.NoError(t, json.Unmarshal(
		[]byte(strings.TrimPrefix(strings.TrimSpace(dataLine), "data: ")),
		&frame,
	))
	require.Equal(t, r.ID, frame.Review.ID)
	require.Equal(t, "streamed plan", frame.Review.PlanContent)

	// A state change shows up as the next frame.
	go func() {
		// Give the stream loop a moment to enter its select.
		time.Sleep(50 * time.Millisecond)
		resp, err := http.Post(
			ts.URL+"/api/reviews/"+r.ID+"/approve",
			"application/json", nil,
		)
		if err == nil {
			resp.Body.Close()
		}
	}()

	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimSpace(line) == "event: status_changed" {
			break
		}
	}

	require.Equal(t, int64(1), srv.activeStreams.Load())
}

func TestAPI_ShutdownClosesStreams(t *testing.T) {
	fileStore, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	eventBus := bus.New(nil)
	engine := review.NewEngine(fileStore, eventBus, nil, nil)
	svc := review.NewService(engine, nil)

	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.IdleTimeout = 0

	srv := NewServer(cfg, svc, eventBus, nil, nil)
	require.NoError(t, srv.Start())

	r, err := engine.Create(context.Background(), "plan", "")
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf(
		"http://127.0.0.1:%d/api/reviews/%s/events", srv.Port(), r.ID,
	))
	require.NoError(t, err)
	defer resp.Body.Close()

	// Consume the connected frame so the handler has entered its event
	// loop before shutdown begins.
	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: connected", strings.TrimSpace(line))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Shutdown must not wait on the open stream: the handler watches the
	// quit signal and returns, so the deadline is never hit.
	done := make(chan error, 1)
	go func() { done <- srv.Shutdown(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown blocked on an open event stream")
	}

	// The stream terminates once the handler returns.
	_, _ = io.Copy(io.Discard, reader)
}

func TestAPI_EventStreamUnknownReview(t *testing.T) {
	_, ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet,
		ts.URL+"/api/reviews/missing/events", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
