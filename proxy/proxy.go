package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/evalgate/evalgate/eval"
)

// Environment variables exported to judge scripts.
const (
	// EnvProxyURL carries the proxy's base URL, e.g. http://127.0.0.1:49213.
	EnvProxyURL = "EVALGATE_PROXY_URL"

	// EnvProxyToken carries the per-run bearer token.
	EnvProxyToken = "EVALGATE_PROXY_TOKEN"
)

// Error codes returned in structured error responses.
const (
	CodeUnauthorized  = "unauthorized"
	CodeQuotaExceeded = "quota_exceeded"
	CodeShuttingDown  = "shutting_down"
	CodeUnknownTarget = "unknown_target"
	CodeBadRequest    = "bad_request"
	CodeUpstreamError = "upstream_error"
)

// Options configures a proxy Server.
type Options struct {
	// Targets maps target name to implementation. Required.
	Targets map[string]eval.Target

	// DefaultTarget is used when a request names no target. Defaults to
	// the sole entry when Targets has exactly one.
	DefaultTarget string

	// MaxCalls caps total target invocations through the proxy. Zero
	// means unlimited. Batch items count individually.
	MaxCalls int64

	// Timeout bounds each proxied target invocation. Default 60s.
	Timeout time.Duration

	// Logger receives request diagnostics. Nil uses slog.Default.
	Logger *slog.Logger
}

// Server is a loopback-only HTTP server exposing POST /invoke,
// POST /invoke/batch and GET /usage to judge scripts.
type Server struct {
	opts     Options
	token    string
	logger   *slog.Logger
	listener net.Listener
	httpSrv  *http.Server

	calls    atomic.Int64
	draining atomic.Bool
}

// New creates a Server. It binds a listener on an ephemeral loopback port
// immediately so Addr and Env are valid before Serve is called.
func New(opts Options) (*Server, error) {
	if len(opts.Targets) == 0 {
		return nil, fmt.Errorf("at least one target is required")
	}
	if opts.DefaultTarget == "" && len(opts.Targets) == 1 {
		for name := range opts.Targets {
			opts.DefaultTarget = name
		}
	}
	if opts.DefaultTarget != "" {
		if _, ok := opts.Targets[opts.DefaultTarget]; !ok {
			return nil, fmt.Errorf("default target %q is not among configured targets", opts.DefaultTarget)
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// Loopback only. Scripts run on the same host; nothing else should
	// be able to spend the run's model budget.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("bind proxy listener: %w", err)
	}

	s := &Server{
		opts:     opts,
		token:    uuid.NewString(),
		logger:   opts.Logger.With("component", "proxy"),
		listener: listener,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", s.authed(s.handleInvoke))
	mux.HandleFunc("POST /invoke/batch", s.authed(s.handleInvokeBatch))
	mux.HandleFunc("GET /usage", s.authed(s.handleUsage))
	s.httpSrv = &http.Server{Handler: mux}

	return s, nil
}

// Addr returns the proxy's base URL.
func (s *Server) Addr() string {
	return "http://" + s.listener.Addr().String()
}

// Token returns the per-run bearer token.
func (s *Server) Token() string {
	return s.token
}

// Env returns the KEY=VALUE pairs judge scripts need to reach the proxy,
// in the form expected by exec.Cmd.Env.
func (s *Server) Env() []string {
	return []string{
		EnvProxyURL + "=" + s.Addr(),
		EnvProxyToken + "=" + s.token,
	}
}

// Calls returns how many target invocations the proxy has served.
func (s *Server) Calls() int64 {
	return s.calls.Load()
}

// Serve accepts connections until Shutdown. It always returns a non-nil
// error; after a clean Shutdown that error is http.ErrServerClosed.
func (s *Server) Serve() error {
	s.logger.Info("proxy listening", "addr", s.Addr())
	return s.httpSrv.Serve(s.listener)
}

// Shutdown stops accepting new work and drains in-flight requests. New
// requests received while draining get a shutting_down error.
func (s *Server) Shutdown(ctx context.Context) error {
	s.draining.Store(true)
	return s.httpSrv.Shutdown(ctx)
}

// invokeRequest is the wire form of a single proxied invocation.
type invokeRequest struct {
	Question     string `json:"question"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	CaseID       string `json:"case_id,omitempty"`
	Target       string `json:"target,omitempty"`
}

type invokeResponse struct {
	Text           string         `json:"text"`
	OutputMessages []eval.Message `json:"output_messages,omitempty"`
	Usage          *eval.Usage    `json:"usage,omitempty"`
}

type batchRequest struct {
	Requests []invokeRequest `json:"requests"`
}

type batchResponse struct {
	Responses []batchItem `json:"responses"`
}

// batchItem carries either a response or a per-item error, never both.
type batchItem struct {
	Response *invokeResponse `json:"response,omitempty"`
	Error    *errorBody      `json:"error,omitempty"`
}

type usageResponse struct {
	Calls     int64 `json:"calls"`
	MaxCalls  int64 `json:"max_calls,omitempty"`
	Remaining int64 `json:"remaining,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// authed wraps a handler with bearer-token and drain checks.
func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			writeError(w, http.StatusServiceUnavailable, CodeShuttingDown, "proxy is shutting down")
			return
		}
		auth := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || token != s.token {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing or invalid bearer token")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, code, msg := s.invokeOne(r.Context(), req)
	if code != "" {
		writeError(w, statusFor(code), code, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInvokeBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	// Items execute sequentially and fail independently; one exhausted
	// quota or unknown target does not void the rest of the batch.
	out := batchResponse{Responses: make([]batchItem, 0, len(req.Requests))}
	for _, item := range req.Requests {
		resp, code, msg := s.invokeOne(r.Context(), item)
		if code != "" {
			out.Responses = append(out.Responses, batchItem{Error: &errorBody{Code: code, Message: msg}})
			continue
		}
		out.Responses = append(out.Responses, batchItem{Response: resp})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	resp := usageResponse{Calls: s.calls.Load()}
	if s.opts.MaxCalls > 0 {
		resp.MaxCalls = s.opts.MaxCalls
		remaining := s.opts.MaxCalls - resp.Calls
		if remaining < 0 {
			remaining = 0
		}
		resp.Remaining = remaining
	}
	writeJSON(w, http.StatusOK, resp)
}

// invokeOne resolves the target, reserves quota and performs the
// invocation. On failure it returns an error code and message with a nil
// response.
func (s *Server) invokeOne(ctx context.Context, req invokeRequest) (*invokeResponse, string, string) {
	name := req.Target
	if name == "" {
		name = s.opts.DefaultTarget
	}
	target, ok := s.opts.Targets[name]
	if !ok {
		return nil, CodeUnknownTarget, fmt.Sprintf("unknown target %q", name)
	}

	if s.opts.MaxCalls > 0 {
		// Reserve before invoking; roll back if the reservation overshot
		// so Calls never exceeds the quota.
		if s.calls.Add(1) > s.opts.MaxCalls {
			s.calls.Add(-1)
			return nil, CodeQuotaExceeded, fmt.Sprintf("call quota of %d exhausted", s.opts.MaxCalls)
		}
	} else {
		s.calls.Add(1)
	}

	invokeCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	resp, err := target.Invoke(invokeCtx, eval.InvokeRequest{
		Question:     req.Question,
		SystemPrompt: req.SystemPrompt,
		CaseID:       req.CaseID,
	})
	if err != nil {
		s.logger.Warn("proxied invocation failed", "target", name, "case_id", req.CaseID, "error", err)
		return nil, CodeUpstreamError, err.Error()
	}

	out := &invokeResponse{}
	if resp != nil {
		out.Text = resp.Text
		out.OutputMessages = resp.OutputMessages
		out.Usage = resp.Usage
	}
	return out, "", ""
}

func statusFor(code string) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeShuttingDown:
		return http.StatusServiceUnavailable
	case CodeUnknownTarget:
		return http.StatusNotFound
	case CodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}
