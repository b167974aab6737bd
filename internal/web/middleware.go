package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// userIDHeader carries the authenticated user identity. A reverse proxy in
// front of this service validates credentials and sets the header; requests
// without it are rejected.
const userIDHeader = "X-User-ID"

type userIDCtxKey struct{}

// userIDFromContext retrieves the user identity set by identityMiddleware.
func userIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userIDCtxKey{}).(string)
	return uid, ok && uid != ""
}

// loggingWriter wraps http.ResponseWriter to capture status and size.
// Implements Flusher so SSE streaming works through the middleware stack.
type loggingWriter struct {
	w            http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lw *loggingWriter) Header() http.Header { return lw.w.Header() }

func (lw *loggingWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.w.WriteHeader(code)
}

func (lw *loggingWriter) Write(b []byte) (int, error) {
	if lw.statusCode == 0 {
		lw.statusCode = http.StatusOK
	}
	n, err := lw.w.Write(b)
	lw.bytesWritten += int64(n)
	return n, err
}

func (lw *loggingWriter) Flush() {
	if f, ok := lw.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (lw *loggingWriter) Unwrap() http.ResponseWriter { return lw.w }

func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapper := &loggingWriter{w: w}

			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"headers_sent", wrapper.statusCode != 0,
					)
					if wrapper.statusCode == 0 {
						writeError(w, http.StatusInternalServerError, "internal_error", msgInternal)
					}
				}
			}()
			next.ServeHTTP(wrapper, r)
		})
	}
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapper, ok := w.(*loggingWriter)
			if !ok {
				wrapper = &loggingWriter{w: w}
			}

			next.ServeHTTP(wrapper, r)

			status := wrapper.statusCode
			if status == 0 {
				status = http.StatusOK
			}

			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", wrapper.bytesWritten,
				"duration", time.Since(start),
			)
		})
	}
}

// identityMiddleware requires the user identity header and stores it in the
// request context.
func identityMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(userIDHeader)
			if userID == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Missing user identity.")
				return
			}
			ctx := context.WithValue(r.Context(), userIDCtxKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
