package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/hexarena/internal/broadcast"
	"github.com/nfrund/hexarena/internal/domain"
)

type fakeStream struct {
	detached chan string
}

func (f *fakeStream) Attach(_ context.Context, obs broadcast.Observer) error {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = obs.Send(ctx, broadcast.Event{BattleID: "b1", Seq: 4, Type: broadcast.StateSnapshot})
	}()
	return nil
}

func (f *fakeStream) Detach(id string) { f.detached <- id }

func newServer(t *testing.T, stream *fakeStream) *httptest.Server {
	t.Helper()
	e := echo.New()
	h := NewHandler(func(_ context.Context, id string) (Stream, error) {
		if id != "b1" {
			return nil, domain.ErrNotFound
		}
		return stream, nil
	})
	h.Register(e.Group(""))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandler_StreamsEvents(t *testing.T) {
	stream := &fakeStream{detached: make(chan string, 1)}
	srv := newServer(t, stream)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/battles/b1/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev broadcast.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, broadcast.StateSnapshot, ev.Type)
	assert.Equal(t, uint64(4), ev.Seq)

	conn.Close(websocket.StatusNormalClosure, "bye")
	select {
	case id := <-stream.detached:
		assert.True(t, strings.HasPrefix(id, "ws:"))
	case <-time.After(3 * time.Second):
		t.Fatal("observer was not detached after disconnect")
	}
}

func TestHandler_UnknownBattle(t *testing.T) {
	srv := newServer(t, &fakeStream{detached: make(chan string, 1)})

	resp, err := http.Get(srv.URL + "/battles/missing/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
