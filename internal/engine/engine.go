package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/emrlift/emrlift/internal/cluster"
	"github.com/emrlift/emrlift/internal/config"
	"github.com/emrlift/emrlift/internal/errdefs"
	"github.com/emrlift/emrlift/internal/host"
	"github.com/emrlift/emrlift/internal/state"
)

// ErrBusy is returned when an operation is already running for a cluster.
var ErrBusy = errors.New("an operation is already running for this cluster")

// Engine drives the host contract against the persisted cluster records.
// It is shared by the CLI and the HTTP adapter.
type Engine struct {
	Config *config.Config
	Logger *slog.Logger

	store *state.Store
	deps  host.Deps

	// mu guards store and claims; the record file is rewritten on every change.
	mu sync.Mutex
	// claims holds the ids whose records a Start or Stop is about to change.
	claims map[string]struct{}

	// Background operations, keyed by cluster id.
	opsMu sync.Mutex
	ops   map[string]context.CancelFunc
	wg    sync.WaitGroup
}

// New creates an Engine. deps.Records is replaced by the engine so that
// lifecycles and macros read records through the same lock.
func New(cfg *config.Config, store *state.Store, deps host.Deps, logger *slog.Logger) *Engine {
	e := &Engine{
		Config: cfg,
		Logger: logger,
		store:  store,
		claims: make(map[string]struct{}),
		ops:    make(map[string]context.CancelFunc),
	}
	deps.Records = e
	e.deps = deps
	return e
}

// StartRequest is what the host sends to start a cluster.
type StartRequest struct {
	ID     string         `json:"id"`
	Name   string         `json:"name,omitempty"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// Get returns the record for id.
func (e *Engine) Get(id string) (*state.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Get(id)
}

// Records lists every managed cluster.
func (e *Engine) Records() []*state.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.List()
}

func (e *Engine) put(r *state.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Put(r)
}

func (e *Engine) remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Delete(id)
}

// claim reserves id until the returned func is called, so the record cannot
// change between reading it and writing it back.
func (e *Engine) claim(id string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.claims[id]; ok {
		return nil, ErrBusy
	}
	e.claims[id] = struct{}{}
	return func() {
		e.mu.Lock()
		delete(e.claims, id)
		e.mu.Unlock()
	}, nil
}

// Start runs the lifecycle for req and records the result. When a cluster was
// created but startup failed afterwards, the record is still written so the
// cluster can be stopped, and the error is returned alongside it.
func (e *Engine) Start(ctx context.Context, req StartRequest, progress host.Progress) (*state.Record, error) {
	progress = orNoop(progress)
	if req.ID == "" {
		return nil, errdefs.Configf("id", "required")
	}
	kind, err := host.ParseKind(req.Type)
	if err != nil {
		return nil, err
	}
	unclaim, err := e.claim(req.ID)
	if err != nil {
		return nil, err
	}
	defer unclaim()
	if existing, err := e.Get(req.ID); err == nil && len(existing.Data) > 0 {
		return nil, &errdefs.PolicyError{Reason: fmt.Sprintf("cluster %s is already started; stop it first", req.ID)}
	}

	name := req.Name
	if name == "" {
		name = req.ID
	}
	lc, err := host.NewLifecycle(kind, req.ID, name, req.Config, e.Config.Plugin, e.deps)
	if err != nil {
		return nil, err
	}

	progress(fmt.Sprintf("starting %s cluster %s", kind, req.ID))
	meta, data, startErr := lc.Start(ctx)
	if data == nil {
		return nil, startErr
	}

	rec := &state.Record{
		ID:     req.ID,
		Name:   name,
		Type:   string(kind),
		Config: req.Config,
		Data:   data.Map(),
	}
	if meta != nil {
		m, err := metadataMap(meta)
		if err != nil {
			return nil, errors.Join(startErr, err)
		}
		rec.Metadata = m
	}
	if err := e.put(rec); err != nil {
		return rec, errors.Join(startErr, fmt.Errorf("saving record %s: %w", req.ID, err))
	}

	if startErr == nil {
		progress(fmt.Sprintf("cluster %s started as %s", req.ID, data.EMRClusterID))
		e.Logger.Info("cluster started", "cluster", req.ID, "emr_cluster_id", data.EMRClusterID)
	}
	return rec, startErr
}

// Stop runs the lifecycle's stop for id and forgets the record.
func (e *Engine) Stop(ctx context.Context, id string, progress host.Progress) error {
	progress = orNoop(progress)
	unclaim, err := e.claim(id)
	if err != nil {
		return err
	}
	defer unclaim()
	rec, err := e.Get(id)
	if err != nil {
		return err
	}
	kind, err := host.ParseKind(rec.Type)
	if err != nil {
		return err
	}
	lc, err := host.NewLifecycle(kind, rec.ID, rec.Name, rec.Config, e.Config.Plugin, e.deps)
	if err != nil {
		return err
	}

	var data *host.Data
	if len(rec.Data) > 0 {
		if data, err = host.DataFromMap(rec.Data); err != nil {
			return err
		}
	}

	progress(fmt.Sprintf("stopping %s cluster %s", kind, id))
	if err := lc.Stop(ctx, data); err != nil {
		return err
	}
	if err := e.remove(id); err != nil {
		return fmt.Errorf("removing record %s: %w", id, err)
	}
	progress(fmt.Sprintf("cluster %s stopped", id))
	e.Logger.Info("cluster stopped", "cluster", id)
	return nil
}

// RunMacro runs the named macro against the managed cluster id.
func (e *Engine) RunMacro(ctx context.Context, id, name string, form map[string]any, progress host.Progress) (map[string]any, error) {
	if _, err := e.Get(id); err != nil {
		return nil, err
	}
	m, err := host.NewMacro(name, id, form, e.Config.Plugin, e.deps)
	if err != nil {
		return nil, err
	}
	e.Logger.Info("running macro", "macro", name, "cluster", id)
	return m.Run(ctx, progress)
}

// Acquire registers an operation on id and returns its context and a
// release func. Only one operation may be registered per cluster; the
// context is cancelled by Cancel, Shutdown or release.
func (e *Engine) Acquire(parent context.Context, id string) (context.Context, func(), error) {
	e.opsMu.Lock()
	defer e.opsMu.Unlock()
	if _, ok := e.ops[id]; ok {
		return nil, nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(parent)
	e.ops[id] = cancel

	var once sync.Once
	release := func() {
		once.Do(func() {
			e.opsMu.Lock()
			delete(e.ops, id)
			e.opsMu.Unlock()
			cancel()
		})
	}
	return ctx, release, nil
}

// Go runs fn in the background for cluster id under the same reservation
// as Acquire.
func (e *Engine) Go(id string, fn func(ctx context.Context) error, done func(error)) error {
	ctx, release, err := e.Acquire(context.Background(), id)
	if err != nil {
		return err
	}
	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		err := fn(ctx)
		release()

		if err != nil {
			e.Logger.Error("background operation failed", "cluster", id, "error", err)
		}
		if done != nil {
			done(err)
		}
	}()
	return nil
}

// Cancel stops the operation registered for id.
func (e *Engine) Cancel(id string) error {
	e.opsMu.Lock()
	defer e.opsMu.Unlock()
	cancel, ok := e.ops[id]
	if !ok {
		return &errdefs.NotFoundError{Kind: "running operation", ID: id}
	}
	cancel()
	return nil
}

// Running reports whether an operation is registered for id.
func (e *Engine) Running(id string) bool {
	e.opsMu.Lock()
	defer e.opsMu.Unlock()
	_, ok := e.ops[id]
	return ok
}

// Shutdown cancels every registered operation and waits for the background
// ones to return.
func (e *Engine) Shutdown() {
	e.opsMu.Lock()
	for _, cancel := range e.ops {
		cancel()
	}
	e.opsMu.Unlock()
	e.wg.Wait()
}

func metadataMap(meta *cluster.ConnectionMetadata) (map[string]any, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encoding connection metadata: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding connection metadata: %w", err)
	}
	return out, nil
}

func orNoop(p host.Progress) host.Progress {
	if p == nil {
		return func(string) {}
	}
	return p
}
