package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/emrlift/emrlift/internal/engine"
)

func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, s.clusters())
}

func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.engine.Get(id)
	if err != nil {
		failure(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, clusterResponse(rec, s.engine.Running(id)))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var body StartClusterRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req := engine.StartRequest{ID: id, Name: body.Name, Type: body.Type, Config: body.Config}

	s.run(w, r, id, "start", func(ctx context.Context) (map[string]any, error) {
		rec, err := s.engine.Start(ctx, req, s.progress(id, "start"))
		if rec == nil {
			return nil, err
		}
		return map[string]any{"cluster": clusterResponse(rec, false)}, err
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.run(w, r, id, "stop", func(ctx context.Context) (map[string]any, error) {
		return nil, s.engine.Stop(ctx, id, s.progress(id, "stop"))
	})
}

func (s *Server) handleScale(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var form map[string]any
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.run(w, r, id, "scale", func(ctx context.Context) (map[string]any, error) {
		return s.engine.RunMacro(ctx, id, "scale", form, s.progress(id, "scale"))
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	out, err := s.engine.RunMacro(r.Context(), id, "info", nil, s.progress(id, "info"))
	if err != nil {
		failure(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, out)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.engine.Cancel(id); err != nil {
		failure(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// run executes op. With ?wait=true it blocks and answers with the result;
// otherwise it answers 202 and reports the outcome on the websocket.
func (s *Server) run(w http.ResponseWriter, r *http.Request, id, op string, fn func(ctx context.Context) (map[string]any, error)) {
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		ctx, release, err := s.engine.Acquire(r.Context(), id)
		if err != nil {
			failure(w, err)
			return
		}
		out, err := fn(ctx)
		release()
		s.finish(id, op, out, err)
		if err != nil {
			failure(w, err)
			return
		}
		if out == nil {
			out = map[string]any{"status": "done"}
		}
		jsonResponse(w, http.StatusOK, out)
		return
	}

	var out map[string]any
	err := s.engine.Go(id, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	}, func(err error) {
		s.finish(id, op, out, err)
	})
	if err != nil {
		failure(w, err)
		return
	}
	jsonResponse(w, http.StatusAccepted, AcceptedResponse{Status: "accepted", ClusterID: id, Operation: op})
}
