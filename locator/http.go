// CLAUDE:SUMMARY chi HTTP API over the resolver endpoints, with error-to-status mapping, Prometheus /metrics and streamable MCP on /mcp.
package locator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domlocator/horosafe"
	"github.com/hazyhaar/domlocator/kit"
	"github.com/hazyhaar/domlocator/shield"
)

// HTTPOptions configure NewHTTPHandler.
type HTTPOptions struct {
	// MCP, when set, is served over the streamable HTTP transport on /mcp.
	MCP *mcp.Server
	// Metrics, when set, is served on /metrics.
	Metrics *Metrics
	// Timeout bounds each request. Zero means no limit.
	Timeout time.Duration
}

// NewHTTPHandler returns the HTTP API of r:
//
//	POST   /resolve                 resolve a locator or a saved locator
//	POST   /dereference             dereference a handle
//	POST   /describe                explain a locator
//	POST   /candidates              rank all matches
//	GET    /locators                list saved locators
//	POST   /locators                save a locator
//	GET    /locators/{name}         get a saved locator
//	DELETE /locators/{name}         delete a saved locator
//	GET    /locators/{name}/history resolution history
//	GET    /stats                   counters
//	GET    /health                  liveness
func NewHTTPHandler(r *Resolver, opts HTTPOptions) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	router.Use(shield.SecurityHeaders(shield.APIHeaders()), shield.HeadToGet)
	if opts.Timeout > 0 {
		router.Use(middleware.Timeout(opts.Timeout))
	}

	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler())
	}
	if opts.MCP != nil {
		srv := opts.MCP
		router.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}

	router.Post("/resolve", serveJSON[resolveRequest](r.ops.resolve, http.StatusOK))
	router.Post("/dereference", serveJSON[dereferenceRequest](r.ops.dereference, http.StatusOK))
	router.Post("/describe", serveJSON[describeRequest](r.ops.describe, http.StatusOK))
	router.Post("/candidates", serveJSON[candidatesRequest](r.ops.candidates, http.StatusOK))
	router.Get("/stats", serve(r.ops.stats, func(*http.Request) (any, error) { return &statsRequest{}, nil }, http.StatusOK))

	router.Route("/locators", func(lr chi.Router) {
		lr.Get("/", serve(r.ops.list, func(req *http.Request) (any, error) {
			q := req.URL.Query()
			lim, err := queryInt(q.Get("limit"))
			if err != nil {
				return nil, err
			}
			return &listRequest{PageID: q.Get("page_id"), Limit: lim}, nil
		}, http.StatusOK))
		lr.Post("/", serveJSON[saveRequest](r.ops.save, http.StatusCreated))
		lr.Get("/{name}", serve(r.ops.get, nameFromPath, http.StatusOK))
		lr.Delete("/{name}", serve(r.ops.remove, nameFromPath, http.StatusOK))
		lr.Get("/{name}/history", serve(r.ops.history, nameFromPath, http.StatusOK))
	})
	return router
}

// serve adapts an endpoint to HTTP. decode builds the request from the
// incoming HTTP request.
func serve(ep kit.Endpoint, decode func(*http.Request) (any, error), status int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx := kit.WithTransport(req.Context(), "http")
		ctx = kit.WithRequestID(ctx, middleware.GetReqID(ctx))

		in, err := decode(req)
		if err != nil {
			writeError(w, err)
			return
		}
		resp, err := ep(ctx, in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, status, resp)
	}
}

func serveJSON[T any](ep kit.Endpoint, status int) http.HandlerFunc {
	return serve(ep, func(req *http.Request) (any, error) {
		body, err := horosafe.LimitedReadAll(req.Body, horosafe.MaxRequestBody)
		if err != nil {
			return nil, err
		}
		v := new(T)
		if len(body) > 0 {
			if err := json.Unmarshal(body, v); err != nil {
				return nil, badRequest("decode body: %v", err)
			}
		}
		return v, nil
	}, status)
}

func nameFromPath(req *http.Request) (any, error) {
	lim, err := queryInt(req.URL.Query().Get("limit"))
	if err != nil {
		return nil, err
	}
	return &nameRequest{Name: chi.URLParam(req, "name"), Limit: lim}, nil
}

func queryInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, badRequest("invalid integer %q", s)
	}
	return n, nil
}

// errorBody is the JSON shape of every API error.
type errorBody struct {
	Error      string      `json:"error"`
	Kind       string      `json:"kind"`
	Candidates []Candidate `json:"candidates,omitempty"`
}

// statusFor maps an error to its HTTP status and kind label.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrHandleLost):
		return http.StatusGone, "handle-lost"
	case errors.Is(err, ErrElementNotFound):
		return http.StatusNotFound, "not-found"
	case errors.Is(err, ErrAmbiguousMatch):
		return http.StatusConflict, "ambiguous"
	case errors.Is(err, ErrInvalidStrategy):
		return http.StatusUnprocessableEntity, "invalid-strategy"
	case errors.Is(err, ErrUnknownLocator):
		return http.StatusNotFound, "unknown-locator"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad-request"
	case errors.Is(err, horosafe.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "too-large"
	case errors.Is(err, ErrNoRegistry), errors.Is(err, ErrNoProvider):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := statusFor(err)
	body := errorBody{Error: err.Error(), Kind: kind}
	var amb *AmbiguousError
	if errors.As(err, &amb) {
		body.Candidates = amb.Candidates
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
