package inspector

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/quarrygate/engine/internal/component"
	"github.com/quarrygate/engine/internal/config"
	"github.com/quarrygate/engine/internal/core/ecs"
	"github.com/quarrygate/engine/internal/core/system"
	"github.com/quarrygate/engine/internal/logging"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type fakeScenes struct {
	next  string
	saved int
}

func (f *fakeScenes) ActiveScene() string       { return "main" }
func (f *fakeScenes) Snapshot() ([]byte, error) { return []byte(`{"Name":"main","Entities":[]}`), nil }
func (f *fakeScenes) SetNextScene(name string)  { f.next = name }

func (f *fakeScenes) SaveScene(context.Context) error {
	f.saved++
	return nil
}

type fixture struct {
	world  *ecs.World
	reg    *system.Registry
	debug  *DebugSystem
	scenes *fakeScenes
	logs   *logging.Buffer
	queue  chan *Request
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logs := logging.NewBuffer(8, zapcore.WarnLevel)
	w := ecs.NewWorld(zap.New(logs))
	reg := system.NewRegistry(w.Log())
	queue := make(chan *Request, 4)
	scenes := &fakeScenes{}
	d := NewDebugSystem(w, reg, queue, scenes, logs)
	reg.MustRegister(system.NewPauseSystem(w), d)
	reg.Init(w)

	tr := component.NewTransform()
	tr.SetTranslation(mgl32.Vec2{1, 2})
	tower := ecs.NewEntity("tower").MustAdd(tr, component.NewHealth())
	tower.AddChild(ecs.NewEntity("turret").MustAdd(component.NewTransform()))
	require.NoError(t, w.Entities().Add(tower))
	return &fixture{world: w, reg: reg, debug: d, scenes: scenes, logs: logs, queue: queue}
}

func (f *fixture) call(req *Request) Response {
	req.reply = make(chan Response, 1)
	f.debug.Serve(req)
	return <-req.reply
}

func encode(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestEntityRequests(t *testing.T) {
	f := newFixture(t)

	resp := f.call(&Request{Kind: "entities"})
	require.True(t, resp.OK, resp.Error)
	assert.JSONEq(t, `[
		{"id":`+encode(t, uint64(f.world.Entities().GetEntity("tower").ID()))+`,"name":"tower","components":["Transform","Health"]},
		{"id":`+encode(t, uint64(f.world.Entities().GetEntity("turret").ID()))+`,"name":"turret","parent":"tower","components":["Transform"]}
	]`, encode(t, resp.Data))

	resp = f.call(&Request{Kind: "entity", Entity: "tower"})
	require.True(t, resp.OK, resp.Error)
	body := encode(t, resp.Data)
	assert.Contains(t, body, `"name":"tower"`)
	assert.Contains(t, body, `"Children"`)

	resp = f.call(&Request{Kind: "entity", Entity: "ghost"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "no such entity")

	resp = f.call(&Request{Kind: "bogus"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "unknown request kind")
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)
	pause, ok := system.Lookup[*system.PauseSystem](f.reg)
	require.True(t, ok)

	resp := f.call(&Request{Kind: "pause"})
	require.True(t, resp.OK)
	assert.False(t, pause.IsRunning())
	assert.True(t, pause.OptedOut(f.debug.Name()))

	f.call(&Request{Kind: "resume"})
	assert.True(t, pause.IsRunning())
}

func TestCopyPasteComponent(t *testing.T) {
	f := newFixture(t)

	resp := f.call(&Request{Kind: "copy", Entity: "tower", Component: "Transform"})
	require.True(t, resp.OK, resp.Error)
	assert.Contains(t, encode(t, resp.Data), `"translation":[1,2]`)

	resp = f.call(&Request{Kind: "paste", Entity: "turret", Component: "Transform"})
	require.True(t, resp.OK, resp.Error)
	turret := f.world.Entities().GetEntity("turret")
	assert.Equal(t, mgl32.Vec2{1, 2}, ecs.Get[*component.Transform](turret).Translation())
	assert.Contains(t, encode(t, resp.Data), `"/translation/0"`)

	resp = f.call(&Request{Kind: "paste", Entity: "turret", Component: "Transform",
		Data: json.RawMessage(`{"translation":[5,5],"bogus":1}`)})
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, mgl32.Vec2{5, 5}, ecs.Get[*component.Transform](turret).Translation())
	assert.Contains(t, encode(t, resp.Data), "bogus")

	resp = f.call(&Request{Kind: "paste", Entity: "turret"})
	assert.False(t, resp.OK)
	resp = f.call(&Request{Kind: "copy", Entity: "turret", Component: "Health"})
	assert.False(t, resp.OK)
}

func TestSceneLogAndSystemRequests(t *testing.T) {
	f := newFixture(t)

	resp := f.call(&Request{Kind: "scene"})
	require.True(t, resp.OK)
	assert.JSONEq(t, `{"Name":"main","Entities":[]}`, encode(t, resp.Data))

	f.call(&Request{Kind: "load", Scene: "arena"})
	assert.Equal(t, "arena", f.scenes.next)
	f.call(&Request{Kind: "save"})
	assert.Equal(t, 1, f.scenes.saved)

	f.world.Log().Warn("overlay me")
	resp = f.call(&Request{Kind: "log"})
	require.True(t, resp.OK)
	assert.Contains(t, encode(t, resp.Data), "overlay me")

	resp = f.call(&Request{Kind: "systems"})
	require.True(t, resp.OK)
	body := encode(t, resp.Data)
	assert.Contains(t, body, `"name":"PauseSystem"`)
	assert.Contains(t, body, `"name":"DebugSystem"`)

	resp = f.call(&Request{Kind: "types"})
	require.True(t, resp.OK)
	assert.Contains(t, resp.Data, "Transform")
}

func TestUpdateDrainsQueue(t *testing.T) {
	f := newFixture(t)
	reqs := []*Request{{Kind: "types"}, {Kind: "entities"}}
	for _, r := range reqs {
		r.reply = make(chan Response, 1)
		f.queue <- r
	}
	f.debug.Update(0)
	for _, r := range reqs {
		select {
		case resp := <-r.reply:
			assert.True(t, resp.OK)
		default:
			t.Fatalf("request %q not served", r.Kind)
		}
	}
}

func TestSubmitRefusesWhenQueueFull(t *testing.T) {
	srv := NewServer(config.InspectorConfig{QueueSize: 1, RequestTimeout: 20 * time.Millisecond}, nil)

	_, err := srv.Submit(context.Background(), &Request{Kind: "types"})
	assert.True(t, eris.Is(err, ErrTimeout))
	_, err = srv.Submit(context.Background(), &Request{Kind: "types"})
	assert.True(t, eris.Is(err, ErrQueueFull))

	srv.Shutdown()
	_, err = srv.Submit(context.Background(), &Request{Kind: "types"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWebSocketRoundTrip(t *testing.T) {
	f := newFixture(t)
	srv := NewServer(config.InspectorConfig{QueueSize: 4, RequestTimeout: time.Second}, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case req := <-srv.Requests():
				f.debug.Serve(req)
			case <-done:
				return
			}
		}
	}()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"kind":"entity","entity":"turret"}`)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var resp struct {
		ID   uint64          `json:"id"`
		Kind string          `json:"kind"`
		OK   bool            `json:"ok"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(msg, &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "entity", resp.Kind)
	assert.NotZero(t, resp.ID)
	assert.Contains(t, string(resp.Data), `"turret"`)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), "malformed request")
}
