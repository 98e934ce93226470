package webcap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/ocfu/espconsole/internal/capability"
	"github.com/ocfu/espconsole/internal/command"
	"github.com/ocfu/espconsole/internal/infrastructure/config"
	"github.com/ocfu/espconsole/internal/infrastructure/logging"
	"github.com/ocfu/espconsole/internal/platform"
	"github.com/ocfu/espconsole/internal/vars"
)

type harness struct {
	ctx    *capability.Context
	reg    *capability.Registry
	d      *command.Dispatcher
	cap    *Capability
	client *http.Client
}

func newHarness(t *testing.T, configure func(*config.Config)) *harness {
	t.Helper()
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })

	sim := platform.NewSim()
	sim.SetFreeHeap(40000)
	store := vars.New()
	_ = store.Set(vars.Hostname, "esp01")
	d := command.New(store)
	d.SetOutput(&bytes.Buffer{})
	cfg := config.Default()
	cfg.Web.Listen = "127.0.0.1:0"
	if configure != nil {
		configure(cfg)
	}
	ctx := &capability.Context{
		Platform:   sim,
		Config:     cfg,
		Logger:     logging.Discard(),
		Vars:       store,
		Dispatcher: d,
		Started:    sim.Now(),
	}
	reg := capability.NewRegistry(ctx)
	d.AddSource(reg)
	if err := reg.Register(Name, New); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Load(Name); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	c, ok := reg.Get(Name)
	if !ok {
		t.Fatal("capability not loaded")
	}
	transport := &http.Transport{}
	h := &harness{
		ctx:    ctx,
		reg:    reg,
		d:      d,
		cap:    c.(*Capability),
		client: &http.Client{Transport: transport, Timeout: 10 * time.Second},
	}
	t.Cleanup(func() {
		transport.CloseIdleConnections()
		_ = reg.Shutdown(Name)
	})
	return h
}

func (h *harness) url(path string) string {
	return "http://" + h.cap.srv.Addr() + path
}

// await runs fn in the background and pumps the console loop until it
// returns.
func await[T any](t *testing.T, h *harness, fn func() T) T {
	t.Helper()
	done := make(chan T, 1)
	go func() { done <- fn() }()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case v := <-done:
			return v
		case <-deadline:
			t.Fatal("request did not complete")
		default:
			h.reg.Loop()
			time.Sleep(time.Millisecond)
		}
	}
}

type response struct {
	status int
	body   []byte
	err    error
}

func (h *harness) post(line string) response {
	body := fmt.Sprintf(`{"line":%q}`, line)
	resp, err := h.client.Post(h.url("/api/v1/cmd"), "application/json", strings.NewReader(body))
	return readResponse(resp, err)
}

func (h *harness) get(path string) response {
	resp, err := h.client.Get(h.url(path))
	return readResponse(resp, err)
}

func readResponse(resp *http.Response, err error) response {
	if err != nil {
		return response{err: err}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return response{status: resp.StatusCode, body: b, err: err}
}

func decode[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	if r.err != nil {
		t.Fatalf("request error = %v", r.err)
	}
	if err := json.Unmarshal(r.body, &v); err != nil {
		t.Fatalf("decoding %q: %v", r.body, err)
	}
	return v
}

func TestCommandOverHTTP(t *testing.T) {
	h := newHarness(t, nil)

	r := await(t, h, func() response { return h.post("set A 5") })
	if r.status != http.StatusOK {
		t.Fatalf("status = %d, body %s", r.status, r.body)
	}
	got := decode[Result](t, r)
	if diff := cmp.Diff(Result{Line: "set A 5", Exit: 0}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if v := h.ctx.Vars.Value("A"); v != "5" {
		t.Errorf("A = %q, want 5", v)
	}

	r = await(t, h, func() response { return h.post("frobnicate") })
	got = decode[Result](t, r)
	if got.Exit != int(command.Failure) || !strings.Contains(got.Output, "unknown command 'frobnicate'") {
		t.Errorf("unknown verb result = %+v", got)
	}

	r = await(t, h, func() response { return h.get("/api/v1/vars") })
	vs := decode[map[string]string](t, r)
	if vs["A"] != "5" || vs[vars.Hostname] != "esp01" {
		t.Errorf("vars = %v", vs)
	}
}

func TestBadRequests(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Web.MaxMessageSize = 64 })

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"empty line", `{"line":""}`},
		{"too large", `{"line":"` + strings.Repeat("x", 100) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := await(t, h, func() response {
				resp, err := h.client.Post(h.url("/api/v1/cmd"), "application/json", strings.NewReader(tt.body))
				return readResponse(resp, err)
			})
			if r.status != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", r.status, http.StatusBadRequest)
			}
			if e := decode[Error](t, r); e.Code != ErrCodeBadRequest {
				t.Errorf("code = %q, want %q", e.Code, ErrCodeBadRequest)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t, nil)
	r := await(t, h, func() response { return h.get("/api/v1/health") })
	got := decode[Health](t, r)
	want := Health{Status: "ok", Hostname: "esp01", FreeHeap: 40000}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("health mismatch (-want +got):\n%s", diff)
	}
}

func TestLoopTimeout(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Web.CommandTimeout = 1 })
	// The loop is not pumped, so the request times out.
	r := h.get("/api/v1/health")
	if r.err != nil {
		t.Fatal(r.err)
	}
	if r.status != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d", r.status, http.StatusGatewayTimeout)
	}
}

func TestWebSocketConsole(t *testing.T) {
	h := newHarness(t, nil)
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+h.cap.srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	for _, line := range []string{"set B 7", "set C $B"} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			t.Fatal(err)
		}
		res := await(t, h, func() Result {
			var r Result
			_ = conn.ReadJSON(&r)
			return r
		})
		if res.Line != line || res.Exit != 0 {
			t.Errorf("result = %+v", res)
		}
	}
	if v := h.ctx.Vars.Value("C"); v != "7" {
		t.Errorf("C = %q, want 7", v)
	}
}

func TestVerbs(t *testing.T) {
	h := newHarness(t, nil)
	run := func(line string) (command.Exit, string) {
		var out bytes.Buffer
		rc := h.d.Dispatch(line, &out, 0, nil)
		return rc, out.String()
	}

	if rc, out := run("web"); rc != command.Success || !strings.Contains(out, "listening on 127.0.0.1:") {
		t.Errorf("web = %v %q", rc, out)
	}
	if rc, _ := run("web start"); rc != command.Failure {
		t.Errorf("second start exit = %v, want Failure", rc)
	}
	if rc, _ := run("web stop"); rc != command.Success {
		t.Errorf("web stop exit = %v", rc)
	}
	if _, out := run("web status"); !strings.Contains(out, "web stopped") {
		t.Errorf("web status = %q", out)
	}
	if v := h.ctx.Vars.Value(vars.Output); v != "0" {
		t.Errorf("> = %q, want 0", v)
	}
	if rc, _ := run("web start 127.0.0.1:0"); rc != command.Success {
		t.Errorf("web start exit = %v", rc)
	}
	r := await(t, h, func() response { return h.get("/api/v1/health") })
	if r.status != http.StatusOK {
		t.Errorf("health after restart = %d", r.status)
	}
}
