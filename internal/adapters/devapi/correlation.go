package devapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const headerCorrelationID = "X-Correlation-Id"

type correlationKey struct{}

// correlation adopts the caller's X-Correlation-Id, or mints one, and echoes it back.
func correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(headerCorrelationID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerCorrelationID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, id)))
	})
}

func correlationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationKey{}).(string)
	return v
}
