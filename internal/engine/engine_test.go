package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/emr/types"

	awsapi "github.com/emrlift/emrlift/internal/aws"
	"github.com/emrlift/emrlift/internal/cluster"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
	"github.com/emrlift/emrlift/internal/host"
	"github.com/emrlift/emrlift/internal/logging"
	"github.com/emrlift/emrlift/internal/remote"
	"github.com/emrlift/emrlift/internal/state"
)

func testEngine(t *testing.T) (*Engine, *awsapi.MockEMR) {
	t.Helper()
	return testEngineWith(t, nil)
}

// testEngineWith lets a test adjust the mock dependencies before the engine
// takes them.
func testEngineWith(t *testing.T, adjust func(*host.Deps)) (*Engine, *awsapi.MockEMR) {
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
	return New(config.Default(), store, deps, logging.Discard()), emr
}

func createRequest(id string) StartRequest {
	return StartRequest{
		ID:   id,
		Type: "create",
		Config: map[string]any{
			"release":      "6.15.0",
			"nodes_role":   "EMR_EC2_DefaultRole",
			"service_role": "EMR_DefaultRole",
			"master":       map[string]any{"instance_type": "m5.xlarge"},
			"core":         map[string]any{"instance_type": "m5.2xlarge", "instance_count": 2},
		},
	}
}

func TestStartStop(t *testing.T) {
	e, emr := testEngine(t)
	ctx := context.Background()

	var steps []string
	rec, err := e.Start(ctx, createRequest("analytics"), func(s string) { steps = append(steps, s) })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if rec.Data["emrClusterId"] != "j-1" {
		t.Errorf("data = %v", rec.Data)
	}
	hive, _ := rec.Metadata["hive"].(map[string]any)
	if hive["hiveServer2Host"] != "10.0.0.5" {
		t.Errorf("metadata hive = %v", hive)
	}
	if len(steps) != 2 {
		t.Errorf("progress steps = %v", steps)
	}
	if len(e.Records()) != 1 {
		t.Fatalf("records = %d", len(e.Records()))
	}

	if err := e.Stop(ctx, "analytics", nil); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(emr.TerminateInputs) != 1 {
		t.Errorf("terminate calls = %d", len(emr.TerminateInputs))
	}
	if _, err := e.Get("analytics"); !errdefs.IsNotFound(err) {
		t.Errorf("record should be gone, got %v", err)
	}
}

func TestStart_AlreadyStarted(t *testing.T) {
	e, emr := testEngine(t)
	ctx := context.Background()
	if _, err := e.Start(ctx, createRequest("analytics"), nil); err != nil {
		t.Fatal(err)
	}
	_, err := e.Start(ctx, createRequest("analytics"), nil)
	if !errdefs.IsPolicy(err) {
		t.Fatalf("expected PolicyError, got %v", err)
	}
	if len(emr.RunInputs) != 1 {
		t.Errorf("RunJobFlow calls = %d", len(emr.RunInputs))
	}
}

func slowConnect(d *host.Deps) {
	connect := d.Connect
	d.Connect = func(ctx context.Context, cc *config.ClusterConfig) (cluster.Services, error) {
		time.Sleep(50 * time.Millisecond)
		return connect(ctx, cc)
	}
}

func TestStart_ConcurrentSameID(t *testing.T) {
	e, emr := testEngineWith(t, slowConnect)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = e.Start(context.Background(), createRequest("analytics"), nil)
		}()
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrBusy), errdefs.IsPolicy(err):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || rejected != 1 {
		t.Errorf("ok=%d rejected=%d (%v)", ok, rejected, errs)
	}
	if len(emr.RunInputs) != 1 {
		t.Errorf("RunJobFlow calls = %d, want 1", len(emr.RunInputs))
	}
}

func TestAcquire(t *testing.T) {
	e, _ := testEngine(t)

	ctx, release, err := e.Acquire(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Acquire(context.Background(), "a"); !errors.Is(err, ErrBusy) {
		t.Errorf("second Acquire: expected ErrBusy, got %v", err)
	}
	if err := e.Go("a", func(context.Context) error { return nil }, nil); !errors.Is(err, ErrBusy) {
		t.Errorf("Go while acquired: expected ErrBusy, got %v", err)
	}

	if err := e.Cancel("a"); err != nil {
		t.Fatal(err)
	}
	if ctx.Err() == nil {
		t.Error("Cancel did not cancel the acquired context")
	}
	release()
	release()
	if e.Running("a") {
		t.Error("a still registered after release")
	}
	if _, release, err := e.Acquire(context.Background(), "a"); err != nil {
		t.Errorf("Acquire after release: %v", err)
	} else {
		release()
	}
}

func TestStart_RecordsClusterOnLateFailure(t *testing.T) {
	e, emr := testEngine(t)
	emr.Clusters = []types.Cluster{awsapi.MockCluster("j-1", types.ClusterStateTerminatedWithErrors)}

	rec, err := e.Start(context.Background(), createRequest("analytics"), nil)
	if !errdefs.IsProvider(err) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if rec == nil || rec.Data["emrClusterId"] != "j-1" {
		t.Fatalf("record = %+v", rec)
	}
	if _, err := e.Get("analytics"); err != nil {
		t.Errorf("record not persisted: %v", err)
	}
}

func TestStart_Validation(t *testing.T) {
	e, emr := testEngine(t)
	ctx := context.Background()

	if _, err := e.Start(ctx, StartRequest{Type: "create"}, nil); !errdefs.IsConfig(err) {
		t.Errorf("missing id: %v", err)
	}
	if _, err := e.Start(ctx, StartRequest{ID: "x", Type: "clone"}, nil); !errdefs.IsConfig(err) {
		t.Errorf("bad type: %v", err)
	}
	if emr.MutatingCalls() != 0 {
		t.Errorf("mutating calls = %d", emr.MutatingCalls())
	}
}

func TestStop_Unknown(t *testing.T) {
	e, _ := testEngine(t)
	if err := e.Stop(context.Background(), "nope", nil); !errdefs.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestRunMacro_Info(t *testing.T) {
	e, emr := testEngine(t)
	ctx := context.Background()
	if _, err := e.Start(ctx, createRequest("analytics"), nil); err != nil {
		t.Fatal(err)
	}
	emr.GroupSnapshots = [][]types.InstanceGroup{{
		awsapi.MockGroup("ig-M", types.InstanceGroupTypeMaster, "m5.xlarge", 1, 1, types.InstanceGroupStateRunning),
	}}

	out, err := e.RunMacro(ctx, "analytics", "info", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out["clusterId"] != "j-1" {
		t.Errorf("info = %v", out)
	}

	if _, err := e.RunMacro(ctx, "other", "info", nil, nil); !errdefs.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

func TestGo_OneOperationPerCluster(t *testing.T) {
	e, _ := testEngine(t)

	release := make(chan struct{})
	done := make(chan error, 1)
	err := e.Go("a", func(ctx context.Context) error {
		<-release
		return errors.New("boom")
	}, func(err error) { done <- err })
	if err != nil {
		t.Fatal(err)
	}
	if !e.Running("a") {
		t.Error("expected a to be running")
	}
	if err := e.Go("a", func(context.Context) error { return nil }, nil); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	close(release)
	select {
	case err := <-done:
		if err == nil || err.Error() != "boom" {
			t.Errorf("done got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("operation did not finish")
	}
	if e.Running("a") {
		t.Error("a should no longer be running")
	}
}

func TestCancelAndShutdown(t *testing.T) {
	e, _ := testEngine(t)

	if err := e.Cancel("a"); !errdefs.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}

	done := make(chan error, 1)
	_ = e.Go("a", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, func(err error) { done <- err })

	if err := e.Cancel("a"); err != nil {
		t.Fatal(err)
	}
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	_ = e.Go("b", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	}, nil)
	e.Shutdown()
	if e.Running("b") {
		t.Error("b still running after Shutdown")
	}
}
