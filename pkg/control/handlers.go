package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"mercator-hq/apiflow/pkg/archive"
	"mercator-hq/apiflow/pkg/archive/export"
	"mercator-hq/apiflow/pkg/config"
	"mercator-hq/apiflow/pkg/netinfo"
	"mercator-hq/apiflow/pkg/routing"
)

// maxConfigBody bounds request bodies of settings and lifecycle calls.
const maxConfigBody = 4 << 20

func (a *API) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if a.opts.Metrics == nil {
		writeError(w, http.StatusNotFound, "metrics disabled")
		return
	}
	a.opts.Metrics.ServeHTTP(w, r)
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse(a.gateway.Status()))
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.proxyConfig(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.gateway.Start(r.Context(), cfg); err != nil {
		a.logger.Warn("start failed", "error", err)
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(a.gateway.Status()))
}

// handleReload swaps the snapshot of a running gateway. A new listen port
// cannot be applied in place, so it restarts the listener instead.
func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.proxyConfig(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	st := a.gateway.Status()
	if st.Running && cfg.ListenPort != 0 && cfg.ListenPort != st.ListenPort {
		err = a.gateway.Restart(r.Context(), cfg)
	} else {
		err = a.gateway.Reload(r.Context(), cfg)
	}
	if err != nil {
		a.logger.Warn("reload failed", "error", err)
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(a.gateway.Status()))
}

// handleStop is idempotent: stopping a gateway that is not running, or not
// on the named port, answers with the current status.
func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.gateway.StopPort(r.Context(), req.ListenPort); err != nil {
		if statusFor(err) != http.StatusConflict {
			writeErr(w, err)
			return
		}
		a.logger.Debug("stop ignored", "listen_port", req.ListenPort, "reason", err)
	}
	writeJSON(w, http.StatusOK, statusResponse(a.gateway.Status()))
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", DefaultLogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	port, err := intParam(r, "port", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	logs := a.gateway.Logs()
	if port != 0 {
		writeJSON(w, http.StatusOK, logs.QueryPort(port, limit))
		return
	}
	writeJSON(w, http.StatusOK, logs.Query(limit))
}

func (a *API) handleClearLogs(w http.ResponseWriter, r *http.Request) {
	a.gateway.Logs().Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := a.gateway.Stats()
	resp := StatsResponse{
		Upstreams:     stats.Snapshot(),
		LastResetTime: stats.LastResetTime(),
	}
	if resp.Upstreams == nil {
		resp.Upstreams = []routing.UpstreamStats{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleResetStats(w http.ResponseWriter, r *http.Request) {
	a.gateway.Stats().Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.settings.Load()
	if err != nil {
		writeErr(w, err)
		return
	}
	if cfg == nil {
		writeErr(w, ErrNoSettings)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handlePutSettings validates and saves the routing config without applying
// it.
func (a *API) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var cfg config.ProxyConfig
	if err := decodeRequired(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	normalized, err := config.PrepareProxyConfig(&cfg)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := a.settings.Save(normalized); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, normalized)
}

func (a *API) handleNetwork(w http.ResponseWriter, r *http.Request) {
	resp := NetworkResponse{Info: a.opts.NetworkInfo()}
	if st := a.gateway.Status(); st.Running {
		resp.URLs = netinfo.ListenURLs(resp.Info, st.ListenPort)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleArchive(w http.ResponseWriter, r *http.Request) {
	if a.opts.Archive == nil {
		writeError(w, http.StatusNotFound, "archive disabled")
		return
	}

	q, err := archiveQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	exp, err := export.ForFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeErr(w, err)
		return
	}
	entries, err := a.opts.Archive.Query(r.Context(), q)
	if err != nil {
		writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", exp.ContentType())
	if err := exp.Export(r.Context(), entries, w); err != nil {
		// Headers are already sent
		a.logger.Error("archive export failed", "error", err)
	}
}

// proxyConfig returns the request body config, or the saved settings when
// the body is empty.
func (a *API) proxyConfig(r *http.Request) (*config.ProxyConfig, error) {
	var cfg config.ProxyConfig
	present, err := decode(r, &cfg)
	if err != nil {
		return nil, config.ValidationError{Errors: []config.FieldError{{Field: "body", Message: err.Error()}}}
	}
	if present {
		return &cfg, nil
	}

	saved, err := a.settings.Load()
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, ErrNoSettings
	}
	return saved, nil
}

func archiveQuery(r *http.Request) (*archive.Query, error) {
	v := r.URL.Query()
	q := &archive.Query{
		ServiceName: v.Get("service"),
		UpstreamID:  v.Get("upstream"),
		Status:      v.Get("status"),
		SortOrder:   v.Get("sort"),
	}

	var err error
	for name, dst := range map[string]**time.Time{"since": &q.Since, "until": &q.Until} {
		raw := v.Get(name)
		if raw == "" {
			continue
		}
		t, perr := time.Parse(time.RFC3339, raw)
		if perr != nil {
			return nil, fmt.Errorf("invalid %s: %w", name, perr)
		}
		*dst = &t
	}
	if q.ListenPort, err = intParam(r, "port", 0); err != nil {
		return nil, err
	}
	if q.Limit, err = intParam(r, "limit", 0); err != nil {
		return nil, err
	}
	if q.Offset, err = intParam(r, "offset", 0); err != nil {
		return nil, err
	}
	if err := archive.Validate(q); err != nil {
		return nil, err
	}
	return q, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}

// decode reads a JSON body into v and reports whether one was present.
func decode(r *http.Request, v any) (bool, error) {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxConfigBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, fmt.Errorf("invalid JSON body: %w", err)
	}
	return true, nil
}

func decodeOptional(r *http.Request, v any) error {
	_, err := decode(r, v)
	return err
}

func decodeRequired(r *http.Request, v any) error {
	present, err := decode(r, v)
	if err != nil {
		return err
	}
	if !present {
		return errors.New("request body is required")
	}
	return nil
}
