package health

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/colinapp/mqregistry"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// ConnectionLister is the part of mqregistry.Registry a report reads.
type ConnectionLister interface {
	Connections() []mqregistry.ConnectionInfo
}

// ConnectionStatus summarises one named connection.
type ConnectionStatus struct {
	Name             string `json:"name"`
	Open             bool   `json:"open"`
	Consumers        int    `json:"consumers"`
	StoppedConsumers int    `json:"stopped_consumers"`
	Acked            int64  `json:"acked"`
	Nacked           int64  `json:"nacked"`
}

// Report is the state of every connection in a registry at one instant.
type Report struct {
	Status      Status             `json:"status"`
	Message     string             `json:"message"`
	Timestamp   time.Time          `json:"timestamp"`
	Connections []ConnectionStatus `json:"connections"`
}

// Closed returns the names of connections that are no longer open.
func (r Report) Closed() []string {
	var names []string
	for _, c := range r.Connections {
		if !c.Open {
			names = append(names, c.Name)
		}
	}
	return names
}

// Check reports healthy when every connection is open (or there are none),
// degraded when some are closed and unhealthy when all are.
func Check(registry ConnectionLister) Report {
	infos := registry.Connections()
	report := Report{
		Timestamp:   time.Now(),
		Connections: make([]ConnectionStatus, 0, len(infos)),
	}

	for _, info := range infos {
		cs := ConnectionStatus{Name: info.Name, Open: info.Open, Consumers: len(info.Consumers)}
		for _, ci := range info.Consumers {
			if ci.Stopped {
				cs.StoppedConsumers++
			}
			cs.Acked += ci.Acked
			cs.Nacked += ci.Nacked
		}
		report.Connections = append(report.Connections, cs)
	}

	closed := len(report.Closed())
	switch {
	case closed == 0:
		report.Status = StatusHealthy
		report.Message = fmt.Sprintf("%d connections open", len(infos))
	case closed == len(infos):
		report.Status = StatusUnhealthy
		report.Message = "All connections are closed"
	default:
		report.Status = StatusDegraded
		report.Message = fmt.Sprintf("%d of %d connections are closed", closed, len(infos))
	}
	return report
}

// Handler serves a registry's Report as JSON
type Handler struct {
	registry ConnectionLister
}

// NewHandler creates a new health HTTP handler
func NewHandler(registry ConnectionLister) *Handler {
	return &Handler{registry: registry}
}

// ServeHTTP implements http.Handler. Unhealthy reports are served with 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	report := Check(h.registry)

	statusCode := http.StatusOK
	if report.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(report)
}
