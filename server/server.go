// Package server exposes observer health, metrics and the action RPC endpoint.
package server

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	// Local Packages
	errs "anchor-observer/errors"
	models "anchor-observer/models"

	// External Packages
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
	rpcParseError     = -32700
)

type Observer interface {
	Name() string
	Health() models.ObserverHealth
	Restart(ctx context.Context) error
}

type ActionRouter interface {
	Dispatch(ctx context.Context, method string, params json.RawMessage) (*models.TransactionResponse, error)
	Methods() []string
}

type Server struct {
	address   string
	observers map[string]Observer
	order     []string
	actions   ActionRouter
	logger    *zap.Logger
	// base is the context observers are restarted under.
	base context.Context
}

// New builds the server. actions may be nil, which disables /rpc.
func New(address string, observers []Observer, actions ActionRouter, logger *zap.Logger) *Server {
	s := &Server{
		address:   address,
		observers: make(map[string]Observer, len(observers)),
		actions:   actions,
		logger:    logger.Named("server"),
		base:      context.Background(),
	}
	for _, o := range observers {
		s.observers[o.Name()] = o
		s.order = append(s.order, o.Name())
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/observers/{name}/restart", s.restart).Methods(http.MethodPost)
	if s.actions != nil {
		r.HandleFunc("/rpc", s.rpc).Methods(http.MethodPost)
	}
	return r
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.base = ctx
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown failed", zap.Error(err))
		}
	}()

	s.logger.Info("server listening", zap.String("address", s.address))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type healthResponse struct {
	Status    models.HealthColor      `json:"status"`
	Observers []models.ObserverHealth `json:"observers"`
}

// health reports the worst observer color. RED answers 503.
func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: models.HealthGreen, Observers: make([]models.ObserverHealth, 0, len(s.order))}
	for _, name := range s.order {
		h := s.observers[name].Health()
		resp.Observers = append(resp.Observers, h)
		switch {
		case h.Status == models.HealthRed:
			resp.Status = models.HealthRed
		case h.Status == models.HealthYellow && resp.Status == models.HealthGreen:
			resp.Status = models.HealthYellow
		}
	}

	code := http.StatusOK
	if resp.Status == models.HealthRed {
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, resp)
}

func (s *Server) restart(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	o, ok := s.observers[name]
	if !ok {
		respondWithJSON(w, http.StatusNotFound, map[string]string{"error": "observer not found"})
		return
	}
	if err := o.Restart(s.base); err != nil {
		s.logger.Error("observer restart failed", zap.String("observer", name), zap.Error(err))
		respondWithJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Info("observer restarted", zap.String("observer", name))
	respondWithJSON(w, http.StatusOK, o.Health())
}

// rpc serves one JSON-RPC 2.0 request.
func (s *Server) rpc(w http.ResponseWriter, r *http.Request) {
	var req models.RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithJSON(w, http.StatusOK, rpcFailure(nil, rpcParseError, "parse error"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		respondWithJSON(w, http.StatusOK, rpcFailure(req.ID, rpcInvalidRequest, "invalid request"))
		return
	}
	if !s.routes(req.Method) {
		respondWithJSON(w, http.StatusOK, rpcFailure(req.ID, rpcMethodNotFound, "method not found: "+req.Method))
		return
	}

	tx, err := s.actions.Dispatch(r.Context(), req.Method, req.Params)
	if err != nil {
		respondWithJSON(w, http.StatusOK, rpcFailure(req.ID, rpcCode(err), err.Error()))
		return
	}
	result, err := json.Marshal(tx)
	if err != nil {
		respondWithJSON(w, http.StatusOK, rpcFailure(req.ID, rpcInternalError, "failed to encode result"))
		return
	}
	respondWithJSON(w, http.StatusOK, models.RPCResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (s *Server) routes(method string) bool {
	for _, m := range s.actions.Methods() {
		if m == method {
			return true
		}
	}
	return false
}

func rpcCode(err error) int {
	switch errs.KindOf(err) {
	case errs.Invalid:
		return rpcInvalidParams
	case errs.NotFound, errs.Unsupported, errs.Conflict:
		return rpcInvalidRequest
	default:
		return rpcInternalError
	}
}

func rpcFailure(id json.RawMessage, code int, msg string) models.RPCResponse {
	return models.RPCResponse{JSONRPC: "2.0", ID: id, Error: &models.RPCError{Code: code, Message: msg}}
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
