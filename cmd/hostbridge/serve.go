package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/hostbridge/codec"
	"github.com/caffeineduck/hostbridge/executor"
	"github.com/caffeineduck/hostbridge/registry"
	"github.com/caffeineduck/hostbridge/scripteval"
	"github.com/caffeineduck/hostbridge/stack"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for script evaluation",
	Long: `Start an HTTP server that evaluates scripts against the bridge.

Endpoints:
  POST   /eval             Evaluate a script {"code", "lang", "args", "tx", "caller", "timeout"}
  GET    /drivers          List the driver registry
  GET    /drivers/{name}   Resolve one driver
  GET    /metrics          Prometheus metrics
  GET    /health           Health check`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (default: HOSTBRIDGE_ADDR or :8080)")
	rootCmd.AddCommand(serveCmd)
}

// maxEvalBody leaves room for JSON escaping of a maximum size script.
const maxEvalBody = 2 * scripteval.MaxScriptSize

type evalRequest struct {
	Code    string   `json:"code"`
	Lang    string   `json:"lang,omitempty"`
	Args    []string `json:"args,omitempty"`
	Tx      bool     `json:"tx,omitempty"`
	Caller  string   `json:"caller,omitempty"`
	Timeout string   `json:"timeout,omitempty"`
}

type evalResponse struct {
	Kind       string `json:"kind,omitempty"`
	Value      string `json:"value,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
}

type driverEntry struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")

	s, err := loadStack(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	addr := s.Config.Addr
	if port > 0 {
		addr = fmt.Sprintf(":%d", port)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx := cmd.Context()
	errCh := make(chan error, 1)
	go func() {
		s.Logger.WithField("addr", addr).Info("hostbridge server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func newRouter(s *stack.Stack) http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/eval", handleEval(s)).Methods(http.MethodPost)
	router.HandleFunc("/drivers", handleDrivers(s)).Methods(http.MethodGet)
	router.HandleFunc("/drivers/{name}", handleDriver(s)).Methods(http.MethodGet)
	router.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return router
}

func handleEval(s *stack.Stack) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req evalRequest
		r.Body = http.MaxBytesReader(w, r.Body, maxEvalBody)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Code == "" {
			http.Error(w, "code required", http.StatusBadRequest)
			return
		}

		driver, err := driverFor(req.Lang, "", s.Config.ScriptLang)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		if req.Timeout != "" {
			d, err := time.ParseDuration(req.Timeout)
			if err != nil {
				http.Error(w, "invalid timeout", http.StatusBadRequest)
				return
			}
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}

		caller := req.Caller
		if caller == "" {
			caller = "http"
		}

		start := time.Now()
		v, err := evaluate(ctx, s.Host, registry.AddressFor(caller), modeFor(req.Tx), driver, req.Code, req.Args)

		resp := evalResponse{DurationMs: time.Since(start).Milliseconds()}
		if err != nil {
			resp.Error = err.Error()
			var app *executor.AppError
			if errors.As(err, &app) {
				resp.ErrorCode = app.Code
			}
		} else {
			resp.Kind = v.Kind().String()
			if v.Kind() != codec.KindUndefined {
				resp.Value = formatValue(v)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleDrivers(s *stack.Stack) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := s.Host.Registry().Entries()
		out := make([]driverEntry, len(entries))
		for i, e := range entries {
			out[i] = driverEntry{Name: e.Name, Address: e.Address.String()}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleDriver(s *stack.Stack) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		addr, ok := s.Host.Registry().Resolve(name)
		if !ok {
			http.Error(w, "driver not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(driverEntry{Name: name, Address: addr.String()})
	}
}
