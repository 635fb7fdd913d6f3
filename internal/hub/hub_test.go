package hub

import (
	"fmt"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/studiolink/studiolink/internal/conn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain reads every currently pending frame from a connection.
func drain(c *conn.Conn) [][]byte {
	var out [][]byte
	for {
		select {
		case msg := <-c.Outbox():
			out = append(out, msg)
		default:
			return out
		}
	}
}

func decode(t *testing.T, data []byte) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func payload(t *testing.T, n int) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{"n": n})
	require.NoError(t, err)
	return data
}

func mustSubscribe(t *testing.T, h *Hub, class string, c *conn.Conn) string {
	t.Helper()
	id, err := h.Subscribe(class, c)
	require.NoError(t, err)
	return id
}

func TestSubscribeConnectedFrameFirst(t *testing.T) {
	h := New(0)
	c := conn.New("t1", 64)

	id := mustSubscribe(t, h, "studio", c)
	require.NotEmpty(t, id)

	frames := drain(c)
	require.NotEmpty(t, frames)
	first := decode(t, frames[0])
	assert.Equal(t, "CONNECTED", first["type"])
	assert.Equal(t, id, first["connectionId"])
}

func TestSubscriberIDsUnique(t *testing.T) {
	h := New(0)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := mustSubscribe(t, h, "companion", conn.New(fmt.Sprintf("t%d", i), 64))
		require.False(t, seen[id], "duplicate subscriber id %s", id)
		seen[id] = true
	}
}

func TestBacklogReplayFiltersAndOrders(t *testing.T) {
	h := New(0)

	h.Publish("companion", payload(t, 0))
	h.Publish("studio", payload(t, 100))
	h.Publish("companion", payload(t, 1))
	h.Publish("all", payload(t, 2))

	c := conn.New("t1", 64)
	mustSubscribe(t, h, "companion", c)

	frames := drain(c)
	require.Len(t, frames, 4) // CONNECTED + three matching events

	var got []float64
	for _, f := range frames[1:] {
		m := decode(t, f)
		require.NotContains(t, m, "type", "replayed frame should be the raw payload")
		assert.Contains(t, m, "timestamp")
		got = append(got, m["n"].(float64))
	}
	assert.Equal(t, []float64{0, 1, 2}, got)
}

func TestBacklogCapacityEvictsOldest(t *testing.T) {
	h := New(5)

	for i := 0; i < 8; i++ {
		h.Publish("companion", payload(t, i))
	}

	c := conn.New("t1", 64)
	mustSubscribe(t, h, "companion", c)

	frames := drain(c)
	require.Len(t, frames, 6) // CONNECTED + last five events

	var got []float64
	for _, f := range frames[1:] {
		got = append(got, decode(t, f)["n"].(float64))
	}
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, got)
}

func TestSubscribeRejectedWhenReplayOverflowsOutbox(t *testing.T) {
	h := New(5)
	for i := 0; i < 5; i++ {
		h.Publish("companion", payload(t, i))
	}

	// Outbox of three cannot hold CONNECTED plus five replayed events.
	c := conn.New("t1", 3)
	id, err := h.Subscribe("companion", c)
	require.ErrorIs(t, err, conn.ErrOutboxFull)
	assert.Empty(t, id)
	assert.True(t, c.Closed())

	counts, _ := h.Stats()
	assert.Zero(t, counts["companion"])

	// A partially filled outbox is never registered, so later publishes
	// reach nobody.
	assert.Zero(t, h.Publish("companion", payload(t, 9)))
}

func TestSubscribeRejectedWhenConnClosed(t *testing.T) {
	h := New(0)

	c := conn.New("t1", 64)
	require.NoError(t, c.Close())

	id, err := h.Subscribe("studio", c)
	require.ErrorIs(t, err, conn.ErrClosed)
	assert.Empty(t, id)

	counts, _ := h.Stats()
	assert.Zero(t, counts["studio"])
}

func TestPublishFanOutByClass(t *testing.T) {
	h := New(0)

	web := conn.New("web1", 64)
	mobile := conn.New("mobile1", 64)
	mustSubscribe(t, h, "web", web)
	mustSubscribe(t, h, "mobile", mobile)
	drain(web)
	drain(mobile)

	delivered := h.Publish("web", payload(t, 1))
	assert.Equal(t, 1, delivered)

	webFrames := drain(web)
	require.Len(t, webFrames, 1)
	assert.Equal(t, float64(1), decode(t, webFrames[0])["n"])
	assert.Empty(t, drain(mobile))
}

func TestPublishAllReachesEveryClass(t *testing.T) {
	h := New(0)

	web := conn.New("web1", 64)
	mobile := conn.New("mobile1", 64)
	mustSubscribe(t, h, "web", web)
	mustSubscribe(t, h, "mobile", mobile)
	drain(web)
	drain(mobile)

	delivered := h.Publish("all", payload(t, 7))
	assert.Equal(t, 2, delivered)
	assert.Len(t, drain(web), 1)
	assert.Len(t, drain(mobile), 1)

	// Empty target defaults to all.
	delivered = h.Publish("", payload(t, 8))
	assert.Equal(t, 2, delivered)
}

func TestDeadSubscriberIsolation(t *testing.T) {
	h := New(0)

	// A one-slot outbox is filled by the CONNECTED frame; every push
	// after that fails, simulating a connection that stopped draining.
	dead := conn.New("dead1", 1)
	mustSubscribe(t, h, "web", dead)

	live := conn.New("mobile1", 64)
	mustSubscribe(t, h, "mobile", live)
	drain(live)

	h.Publish("web", payload(t, 1))

	delivered := h.Publish("mobile", payload(t, 2))
	assert.Equal(t, 1, delivered)

	frames := drain(live)
	require.NotEmpty(t, frames)
	last := decode(t, frames[len(frames)-1])
	assert.Equal(t, float64(2), last["n"])

	counts, _ := h.Stats()
	assert.Zero(t, counts["web"])
	assert.Equal(t, 1, counts["mobile"])
	assert.True(t, dead.Closed())
}

func TestPresenceAnnouncements(t *testing.T) {
	h := New(0)

	studio := conn.New("studio1", 64)
	mustSubscribe(t, h, "studio", studio)
	drain(studio)

	companion := conn.New("companion1", 64)
	companionID := mustSubscribe(t, h, "companion", companion)

	frames := drain(studio)
	require.Len(t, frames, 1)
	m := decode(t, frames[0])
	assert.Equal(t, "COMPANION_CONNECTED", m["type"])
	assert.Equal(t, companionID, m["connectionId"])

	require.True(t, h.Unsubscribe(companionID))

	frames = drain(studio)
	require.Len(t, frames, 1)
	m = decode(t, frames[0])
	assert.Equal(t, "COMPANION_DISCONNECTED", m["type"])
	assert.Equal(t, companionID, m["connectionId"])
}

func TestPresenceOrderUnderChurn(t *testing.T) {
	const churners = 50

	h := New(0)

	observer := conn.New("obs", churners*2+8)
	mustSubscribe(t, h, "studio", observer)
	drain(observer)

	// Each churner subscribes and immediately unsubscribes; the observer
	// must never see a departure before the matching arrival.
	var wg sync.WaitGroup
	errs := make([]error, churners)
	for i := 0; i < churners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := conn.New(fmt.Sprintf("t%d", i), 8)
			id, err := h.Subscribe("companion", c)
			if err != nil {
				errs[i] = err
				return
			}
			h.Unsubscribe(id)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "churner %d", i)
	}

	state := make(map[string]string)
	for _, f := range drain(observer) {
		m := decode(t, f)
		id := m["connectionId"].(string)
		switch m["type"] {
		case "COMPANION_CONNECTED":
			require.Empty(t, state[id], "duplicate arrival for %s", id)
			state[id] = "up"
		case "COMPANION_DISCONNECTED":
			require.Equal(t, "up", state[id], "departure before arrival for %s", id)
			state[id] = "down"
		default:
			t.Fatalf("unexpected frame type %v", m["type"])
		}
	}
	require.Len(t, state, churners)
	for id, s := range state {
		assert.Equal(t, "down", s, "ghost presence left for %s", id)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := New(0)

	id := mustSubscribe(t, h, "studio", conn.New("t1", 64))
	assert.True(t, h.Unsubscribe(id))
	assert.False(t, h.Unsubscribe(id))
}

func TestConcurrentSubscribeSeesEachEventOnce(t *testing.T) {
	const events = 100
	const subscribers = 10

	h := New(events * 2)

	payloads := make([]json.RawMessage, events)
	for i := range payloads {
		payloads[i] = payload(t, i)
	}

	var wg sync.WaitGroup
	conns := make([]*conn.Conn, subscribers)
	errs := make([]error, subscribers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < events; i++ {
			h.Publish("all", payloads[i])
		}
	}()

	for i := 0; i < subscribers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Same class everywhere so no presence frames interleave.
			c := conn.New(fmt.Sprintf("t%d", i), events+8)
			_, errs[i] = h.Subscribe("studio", c)
			conns[i] = c
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "subscriber %d", i)
	}

	for i, c := range conns {
		var got []int
		for _, f := range drain(c) {
			m := decode(t, f)
			if _, ok := m["type"]; ok {
				continue // CONNECTED frame
			}
			got = append(got, int(m["n"].(float64)))
		}
		require.Len(t, got, events, "subscriber %d missed or duplicated events", i)
		for j, n := range got {
			require.Equal(t, j, n, "subscriber %d saw events out of order", i)
		}
	}
}

func TestStats(t *testing.T) {
	h := New(0)

	mustSubscribe(t, h, "studio", conn.New("t1", 64))
	mustSubscribe(t, h, "studio", conn.New("t2", 64))
	mustSubscribe(t, h, "companion", conn.New("t3", 64))
	h.Publish("all", payload(t, 1))

	counts, retained := h.Stats()
	assert.Equal(t, 2, counts["studio"])
	assert.Equal(t, 1, counts["companion"])
	assert.Equal(t, 1, retained)
}
