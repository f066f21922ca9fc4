package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointapp/waypoint-server/internal/sse"
)

type streamFrame struct {
	event string
	data  string
}

// readFrames parses "event:/data:" frames from an SSE response body.
func readFrames(body *bufio.Reader, frames chan<- streamFrame) {
	defer close(frames)
	var cur streamFrame
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "":
			frames <- cur
			cur = streamFrame{}
		}
	}
}

func openStream(t *testing.T, srv *httptest.Server, token string) (*http.Response, <-chan streamFrame) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/v1/trips/"+testTripID+"/stream?access_token="+token, nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	frames := make(chan streamFrame, 64)
	if resp.StatusCode == http.StatusOK {
		go readFrames(bufio.NewReader(resp.Body), frames)
	}
	return resp, frames
}

func nextFrame(t *testing.T, frames <-chan streamFrame, event string) streamFrame {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case f, ok := <-frames:
			require.True(t, ok, "stream closed before %s", event)
			if f.event == event {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func TestStream_SendsStateAndUpdates(t *testing.T) {
	ts := setupTestServer(t, Options{})
	srv := httptest.NewServer(ts.Server)
	t.Cleanup(srv.Close)

	resp, frames := openStream(t, srv, ts.token(t, grace))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	nextFrame(t, frames, string(sse.EventConnected))
	mode := nextFrame(t, frames, string(sse.EventCalendarMode))
	assert.Contains(t, mode.data, `"mode":"view"`)
	nextFrame(t, frames, string(sse.EventCalendarShared))

	added := ts.addEvent(t, ts.bearer(t, ada), map[string]any{
		"activity":         "Fado in Alfama",
		"time":             "21:00",
		"day_index":        2,
		"duration_minutes": 120,
	})

	deadline := time.After(3 * time.Second)
	for {
		select {
		case f := <-frames:
			if f.event != string(sse.EventCalendarShared) {
				continue
			}
			var ev struct {
				Data sse.SharedEventData `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(f.data), &ev))
			if len(ev.Data.Days) == 3 && len(ev.Data.Days[2].Events) == 1 {
				assert.Equal(t, added.EventID, ev.Data.Days[2].Events[0].ID)
				return
			}
		case <-deadline:
			t.Fatal("shared update never reached the stream")
		}
	}
}

func TestStream_RejectsUnauthorized(t *testing.T) {
	ts := setupTestServer(t, Options{})
	srv := httptest.NewServer(ts.Server)
	t.Cleanup(srv.Close)

	resp, _ := openStream(t, srv, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = openStream(t, srv, ts.token(t, linus))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var env testEnvelope[any]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.Equal(t, "FORBIDDEN", env.Code)
}
