package httpapi

import (
	"net/http"
	"strings"

	"github.com/Newrona-pi/textgame-chatapp/internal/observability"
)

type perfResponse struct {
	Success bool `json:"success"`
	observability.StageSnapshot
}

// handlePerfLatency reports rolling per-stage latency. ?stage=a,b narrows the
// report to the named stages.
func (s *Server) handlePerfLatency(w http.ResponseWriter, r *http.Request) {
	var only []string
	for _, name := range strings.Split(r.URL.Query().Get("stage"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			only = append(only, name)
		}
	}
	respondJSON(w, http.StatusOK, perfResponse{Success: true, StageSnapshot: s.metrics.SnapshotStages(only...)})
}
