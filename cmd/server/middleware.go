package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/liamcoop/calcengine/internal/logger"
)

// requestLogger logs one line per request and feeds the health counters.
// A zero slow threshold disables slow-request reporting.
func requestLogger(log *zap.Logger, slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", duration),
				zap.String("requestId", middleware.GetReqID(r.Context())),
			}

			switch {
			case status >= 500:
				logger.ErrorHttp5xx()
				log.Error("request", fields...)
			case status >= 400:
				logger.WarnHttp4xx(status)
				log.Warn("request", fields...)
			default:
				log.Info("request", fields...)
			}

			if slow > 0 && duration > slow {
				logger.WarnSlowRequest()
				log.Warn("slow request", fields...)
			}
		})
	}
}
