package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"vodpack/internal/metrics"
)

type logformatter struct {
	logger zerolog.Logger
}

func (l *logformatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	req := map[string]string{}
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		req["id"] = reqID
	}
	req["scheme"] = "http"
	if r.TLS != nil {
		req["scheme"] = "https"
	}
	req["proto"] = r.Proto
	req["method"] = r.Method
	req["remote"] = r.RemoteAddr
	req["agent"] = r.UserAgent()
	req["uri"] = r.RequestURI

	return &logentry{
		logger:  l.logger,
		request: req,
		method:  r.Method,
		path:    r.URL.Path,
	}
}

type logentry struct {
	logger  zerolog.Logger
	request map[string]string
	method  string
	path    string
}

func (e *logentry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	metrics.HTTPRequestsTotal.WithLabelValues(e.method, e.path, strconv.Itoa(status)).Inc()

	e.logger.Debug().
		Fields(map[string]interface{}{
			"req":     e.request,
			"status":  status,
			"bytes":   bytes,
			"elapsed": elapsed.String(),
		}).
		Msg("request complete")
}

func (e *logentry) Panic(v interface{}, stack []byte) {
	e.logger.Error().
		Interface("panic", v).
		Bytes("stack", stack).
		Msg("request panicked")
}
