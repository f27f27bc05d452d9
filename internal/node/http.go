package node

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Iron-Ham/windowbus/internal/logging"
	"github.com/Iron-Ham/windowbus/internal/transport/websocket"
)

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

// Stats is the body served at /stats.
type Stats struct {
	NodeID           string   `json:"node_id"`
	UptimeSeconds    int64    `json:"uptime_seconds"`
	Messengers       []string `json:"messengers"`
	EventsDispatched uint64   `json:"events_dispatched"`
	ListenedEvents   []string `json:"listened_events"`
}

// Router returns the node's HTTP routes. /ws sits outside the logging
// middleware because the upgrade needs the raw connection.
func (n *Node) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(recoverMiddleware(n.logger))

	r.Handle("/ws", websocket.Handler(n.logger, func(c *websocket.Conn) {
		if err := n.attach(c, c); err != nil {
			n.logger.Warn("failed to attach websocket peer", "remote", c.RemoteAddr(), "error", err)
			return
		}
		n.logger.Info("websocket peer accepted", "remote", c.RemoteAddr(), "messenger_id", c.ID())
	}))

	r.Group(func(r chi.Router) {
		r.Use(requestIDMiddleware)
		r.Use(loggingMiddleware(n.logger))
		r.Get("/healthz", n.healthz)
		r.Get("/stats", n.stats)
	})

	return r
}

func (n *Node) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "ok",
	})
}

func (n *Node) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, n.Stats())
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

func recoverMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						"request_id", requestIDFromContext(r.Context()),
						"method", r.Method,
						"path", r.URL.Path,
						"panic", rec,
					)
					writeJSON(w, http.StatusInternalServerError, map[string]any{
						"status":  "error",
						"message": "internal server error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.statusCode == 0 {
		r.statusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func loggingMiddleware(logger *logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			statusCode := recorder.statusCode
			if statusCode == 0 {
				statusCode = http.StatusOK
			}
			logger.Debug("http request",
				"request_id", requestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", statusCode,
				"bytes", recorder.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
