package api

import (
	"time"

	"github.com/emrlift/emrlift/internal/state"
)

// ClusterResponse is the API view of a managed cluster.
type ClusterResponse struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	EMRClusterID string         `json:"emr_cluster_id,omitempty"`
	Busy         bool           `json:"busy"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	UpdatedAt    string         `json:"updated_at"`
}

func clusterResponse(r *state.Record, busy bool) ClusterResponse {
	id, _ := r.Data["emrClusterId"].(string)
	return ClusterResponse{
		ID:           r.ID,
		Name:         r.Name,
		Type:         r.Type,
		EMRClusterID: id,
		Busy:         busy,
		Metadata:     r.Metadata,
		UpdatedAt:    r.UpdatedAt.Format(time.RFC3339),
	}
}

// StartClusterRequest is the request body for POST /api/clusters/{id}/start.
type StartClusterRequest struct {
	Name   string         `json:"name,omitempty"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// AcceptedResponse is returned when an operation continues in the
// background; its outcome arrives on the websocket as a result message.
type AcceptedResponse struct {
	Status    string `json:"status"`
	ClusterID string `json:"cluster_id"`
	Operation string `json:"operation"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
