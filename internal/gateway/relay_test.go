package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRelay(t *testing.T) (*Relay, *Hub) {
	t.Helper()
	h := startHub(t)
	return NewRelay(nil, h, slog.New(slog.NewTextHandler(io.Discard, nil))), h
}

func TestRouteForwardsToUserAndAdminRooms(t *testing.T) {
	r, h := testRelay(t)

	owner := newTestClient(h, 8)
	watcher := newTestClient(h, 8)
	stranger := newTestClient(h, 8)
	h.Join(owner, UserRoom("user-7"))
	h.Join(watcher, AdminRoom)
	h.Join(stranger, UserRoom("user-8"))

	r.route([]byte(`{"event":"jobs:progress","userId":"user-7","data":{"jobId":"j1","progress":40}}`))

	var frame struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(recv(t, owner), &frame))
	assert.Equal(t, "jobs:progress", frame.Event)
	assert.JSONEq(t, `{"jobId":"j1","progress":40}`, string(frame.Data))

	require.NoError(t, json.Unmarshal(recv(t, watcher), &frame))
	assert.Equal(t, "jobs:progress", frame.Event)

	assertNothingQueued(t, stranger)
}

func TestRouteDoesNotEchoRoutingUserID(t *testing.T) {
	r, h := testRelay(t)

	watcher := newTestClient(h, 8)
	h.Join(watcher, AdminRoom)

	r.route([]byte(`{"event":"jobs:created","userId":"user-7","data":{"jobId":"j1"}}`))

	payload := recv(t, watcher)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &raw))
	assert.Contains(t, raw, "event")
	assert.Contains(t, raw, "data")
	assert.NotContains(t, raw, "userId")
}

func TestRouteSkipsMalformedEnvelopes(t *testing.T) {
	r, h := testRelay(t)

	watcher := newTestClient(h, 8)
	h.Join(watcher, AdminRoom)

	r.route([]byte(`not json`))
	r.route([]byte(`{"userId":"user-7","data":{}}`))

	assertNothingQueued(t, watcher)
}

func TestRouteWithoutUserGoesToAdminOnly(t *testing.T) {
	r, h := testRelay(t)

	watcher := newTestClient(h, 8)
	h.Join(watcher, AdminRoom)

	r.route([]byte(`{"event":"jobs:failed","data":{"jobId":"j2"}}`))

	var frame struct {
		Event string `json:"event"`
	}
	require.NoError(t, json.Unmarshal(recv(t, watcher), &frame))
	assert.Equal(t, "jobs:failed", frame.Event)
}
