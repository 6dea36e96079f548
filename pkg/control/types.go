package control

import (
	"time"

	"mercator-hq/apiflow/pkg/gateway"
	"mercator-hq/apiflow/pkg/netinfo"
	"mercator-hq/apiflow/pkg/routing"
)

// StatusResponse is the body of GET /api/status and of lifecycle calls.
type StatusResponse struct {
	gateway.Status
	Tray gateway.Tray `json:"tray"`
}

// StopRequest is the optional body of POST /api/proxy/stop. A zero port
// stops whatever is running.
type StopRequest struct {
	ListenPort int `json:"listenPort,omitempty"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Upstreams     []routing.UpstreamStats `json:"upstreams"`
	LastResetTime time.Time               `json:"lastResetTime"`
}

// NetworkResponse is the body of GET /api/network. URLs are set while the
// gateway is running.
type NetworkResponse struct {
	netinfo.Info
	URLs []string `json:"urls,omitempty"`
}

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

// FieldError is one config validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func statusResponse(st gateway.Status) StatusResponse {
	return StatusResponse{Status: st, Tray: gateway.TrayStatus(st)}
}
