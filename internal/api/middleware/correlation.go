package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// CorrelationID reads X-Correlation-ID (or X-Request-ID) from the incoming
// request and generates a UUID when neither is present. The value is stored
// on the request context and echoed in the response so callers can trace
// their request, and the notification it may cause, through the logs.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = r.Header.Get("X-Request-ID")
		}
		if id == "" {
			id = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), correlationIDKey, id)
		w.Header().Set("X-Correlation-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetCorrelationID retrieves the correlation ID stored by the middleware.
// Returns an empty string if the middleware was not applied.
func GetCorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// Logger returns base annotated with the request's correlation id and,
// once JWTAuth has run, the caller's user id.
func Logger(ctx context.Context, base *zap.Logger) *zap.Logger {
	fields := []zap.Field{zap.String("correlation_id", GetCorrelationID(ctx))}
	if user := GetUserID(ctx); user != "" {
		fields = append(fields, zap.String("user_id", user))
	}
	return base.With(fields...)
}
