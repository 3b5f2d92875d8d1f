package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/emr/types"
	"nhooyr.io/websocket"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/cluster"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/engine"
	"github.com/emrlift/emrlift/internal/host"
	"github.com/emrlift/emrlift/internal/logging"
	"github.com/emrlift/emrlift/internal/remote"
	"github.com/emrlift/emrlift/internal/state"
	"github.com/emrlift/emrlift/internal/ws"
)

// testServer creates a Server whose engine talks to a mock EMR and keeps
// records in a temp file.
func testServer(t *testing.T, opts ...Option) (*Server, *engine.Engine, *awsapi.MockEMR) {
	t.Helper()
	return testServerWith(t, nil, opts...)
}

func testServerWith(t *testing.T, adjust func(*host.Deps), opts ...Option) (*Server, *engine.Engine, *awsapi.MockEMR) {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "clusters.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	emr := awsapi.NewMockEMR("j-1")
	emr.Instances[types.InstanceGroupTypeMaster] = []types.Instance{
		awsapi.MockInstance("m1", "10.0.0.5", types.InstanceStateRunning),
	}

	deps := host.MockDeps(emr, &remote.MockRunner{})
	if adjust != nil {
		adjust(&deps)
	}
	logger := logging.Discard()
	eng := engine.New(config.Default(), store, deps, logger)
	t.Cleanup(eng.Shutdown)
	return New(eng, logger, ":0", opts...), eng, emr
}

// serveMux creates an http.ServeMux with the server's routes registered.
func serveMux(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

func startBody() []byte {
	body, _ := json.Marshal(StartClusterRequest{
		Type: "create",
		Config: map[string]any{
			"release":      "6.15.0",
			"nodes_role":   "EMR_EC2_DefaultRole",
			"service_role": "EMR_DefaultRole",
			"master":       map[string]any{"instance_type": "m5.xlarge"},
			"core":         map[string]any{"instance_type": "m5.2xlarge", "instance_count": 2},
		},
	})
	return body
}

func do(mux http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := testServer(t)
	w := do(serveMux(s), "GET", "/api/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]string
	json.NewDecoder(w.Body).Decode(&resp)
	if resp["status"] != "ok" {
		t.Errorf("status = %q, want %q", resp["status"], "ok")
	}
}

func TestListClusters_Empty(t *testing.T) {
	s, _, _ := testServer(t)
	w := do(serveMux(s), "GET", "/api/clusters", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestStartAndStop_Wait(t *testing.T) {
	s, _, emr := testServer(t)
	mux := serveMux(s)

	w := do(mux, "POST", "/api/clusters/analytics/start?wait=true", startBody())
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}

	w = do(mux, "GET", "/api/clusters/analytics", nil)
	var c ClusterResponse
	json.NewDecoder(w.Body).Decode(&c)
	if c.EMRClusterID != "j-1" || c.Type != "create" || c.Busy {
		t.Errorf("cluster = %+v", c)
	}

	w = do(mux, "POST", "/api/clusters/analytics/stop?wait=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", w.Code, w.Body.String())
	}
	if len(emr.TerminateInputs) != 1 {
		t.Errorf("terminate calls = %d", len(emr.TerminateInputs))
	}

	w = do(mux, "GET", "/api/clusters/analytics", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("after stop status = %d", w.Code)
	}
}

func TestStart_Async(t *testing.T) {
	s, eng, _ := testServer(t)
	mux := serveMux(s)

	w := do(mux, "POST", "/api/clusters/analytics/start", startBody())
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp AcceptedResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Operation != "start" || resp.ClusterID != "analytics" {
		t.Errorf("response = %+v", resp)
	}

	deadline := time.Now().Add(2 * time.Second)
	for eng.Running("analytics") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := eng.Get("analytics"); err != nil {
		t.Errorf("record not written: %v", err)
	}
}

func TestStart_BadRequests(t *testing.T) {
	s, _, emr := testServer(t)
	mux := serveMux(s)

	w := do(mux, "POST", "/api/clusters/analytics/start?wait=true", []byte("not json"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid body status = %d", w.Code)
	}

	body, _ := json.Marshal(StartClusterRequest{Type: "clone"})
	w = do(mux, "POST", "/api/clusters/analytics/start?wait=true", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad type status = %d", w.Code)
	}
	var resp ErrorResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Kind != "config" {
		t.Errorf("kind = %q", resp.Kind)
	}
	if emr.MutatingCalls() != 0 {
		t.Errorf("mutating calls = %d", emr.MutatingCalls())
	}
}

func TestStart_WaitConcurrentSameID(t *testing.T) {
	s, _, emr := testServerWith(t, func(d *host.Deps) {
		connect := d.Connect
		d.Connect = func(ctx context.Context, cc *config.ClusterConfig) (cluster.Services, error) {
			time.Sleep(100 * time.Millisecond)
			return connect(ctx, cc)
		}
	})
	mux := serveMux(s)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes[i] = do(mux, "POST", "/api/clusters/analytics/start?wait=true", startBody()).Code
		}()
	}
	wg.Wait()

	slices.Sort(codes)
	if codes[0] != http.StatusOK || codes[1] != http.StatusConflict {
		t.Errorf("codes = %v, want [200 409]", codes)
	}
	if len(emr.RunInputs) != 1 {
		t.Errorf("RunJobFlow calls = %d, want 1", len(emr.RunInputs))
	}
}

func TestStop_Busy(t *testing.T) {
	s, eng, _ := testServer(t)
	mux := serveMux(s)

	release := make(chan struct{})
	if err := eng.Go("analytics", func(context.Context) error {
		<-release
		return nil
	}, nil); err != nil {
		t.Fatal(err)
	}
	defer close(release)

	w := do(mux, "POST", "/api/clusters/analytics/stop?wait=true", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d", w.Code)
	}
	w = do(mux, "POST", "/api/clusters/analytics/stop", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("async status = %d", w.Code)
	}
}

func TestInfoAndScale(t *testing.T) {
	s, _, emr := testServer(t)
	mux := serveMux(s)

	if w := do(mux, "POST", "/api/clusters/analytics/start?wait=true", startBody()); w.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", w.Code, w.Body.String())
	}
	emr.GroupSnapshots = [][]types.InstanceGroup{{
		awsapi.MockGroup("ig-M", types.InstanceGroupTypeMaster, "m5.xlarge", 1, 1, types.InstanceGroupStateRunning),
		awsapi.MockGroup("ig-C", types.InstanceGroupTypeCore, "m5.2xlarge", 2, 2, types.InstanceGroupStateRunning),
	}}

	w := do(mux, "GET", "/api/clusters/analytics/info", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("info status = %d: %s", w.Code, w.Body.String())
	}
	var info map[string]any
	json.NewDecoder(w.Body).Decode(&info)
	if info["clusterId"] != "j-1" {
		t.Errorf("info = %v", info)
	}

	body, _ := json.Marshal(map[string]any{"core_group_target_instances": 4})
	w = do(mux, "POST", "/api/clusters/analytics/scale?wait=true", body)
	if w.Code != http.StatusOK {
		t.Fatalf("scale status = %d: %s", w.Code, w.Body.String())
	}
	var out map[string]any
	json.NewDecoder(w.Body).Decode(&out)
	if out["status"] != "Done" {
		t.Errorf("scale = %v", out)
	}
	if len(emr.ModifyInputs) != 1 {
		t.Errorf("modify calls = %d", len(emr.ModifyInputs))
	}
}

func TestInfo_Unknown(t *testing.T) {
	s, _, _ := testServer(t)
	w := do(serveMux(s), "GET", "/api/clusters/nope/info", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestCancel_NothingRunning(t *testing.T) {
	s, _, _ := testServer(t)
	w := do(serveMux(s), "POST", "/api/clusters/analytics/cancel", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d", w.Code)
	}
}

func TestCORS_DevMode(t *testing.T) {
	s, _, _ := testServer(t, WithDevMode(true))
	w := do(s.Handler(), "OPTIONS", "/api/clusters", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}

func TestWebSocket_FullStateAndProgress(t *testing.T) {
	hub := ws.NewHub(logging.Discard())
	go hub.Run()
	defer hub.Close()

	s, _, _ := testServer(t, WithHub(hub))
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var msg ws.Message
	json.Unmarshal(data, &msg)
	if msg.Type != ws.MsgFullState {
		t.Fatalf("first message = %s", data)
	}

	resp, err := http.Post(srv.URL+"/api/clusters/analytics/start?wait=true", "application/json", bytes.NewReader(startBody()))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	seen := map[ws.MessageType]bool{}
	for !seen[ws.MsgResult] {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		json.Unmarshal(data, &msg)
		seen[msg.Type] = true
	}
	if !seen[ws.MsgProgress] {
		t.Errorf("no progress before result: %v", seen)
	}
}
