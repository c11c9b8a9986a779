package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/itsatony/emhub/internal/hubservice"
	"github.com/itsatony/emhub/internal/registry"
	nuts "github.com/vaudience/go-nuts"
)

// ClientRoleHeader lets a caller identify itself as device or dashboard.
const ClientRoleHeader = "X-Client-Role"

// RequestIDHeader is echoed or generated for every request.
const RequestIDHeader = "X-Request-ID"

// ClientRoles maps the role header onto field access roles in the request
// context. Unknown or missing roles fall back to dashboard access.
func ClientRoles(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, ok := registry.ParseRole(r.Header.Get(ClientRoleHeader))
		if ok && role == registry.RoleDevice {
			r = r.WithContext(hubservice.WithRoles(r.Context(), hubservice.RoleDevice))
		} else {
			r = r.WithContext(hubservice.WithRoles(r.Context(), hubservice.RoleDashboard))
		}
		next.ServeHTTP(w, r)
	})
}

// RequestID makes sure every response carries a request id.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = nuts.NID("req", 12)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// AccessLog writes an Apache style line per request to the hub log.
func AccessLog(next http.Handler) http.Handler {
	return handlers.LoggingHandler(logWriter{}, next)
}

// Recovery turns handler panics into 500 responses.
func Recovery(next http.Handler) http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{}),
		handlers.PrintRecoveryStack(true),
	)(next)
}

// CORS allows the configured dashboard origins.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", ClientRoleHeader, RequestIDHeader}),
		handlers.ExposedHeaders([]string{"X-Firmware-Version", "X-Firmware-Checksum", "X-Firmware-Size", RequestIDHeader}),
	)
}

// ProxyHeaders trusts X-Forwarded-For and friends for the peer address.
func ProxyHeaders(next http.Handler) http.Handler {
	return handlers.ProxyHeaders(next)
}

type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	nuts.L.Infof("[HTTP] %s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	nuts.L.Errorf("[HTTP] Recovered from panic: %s", strings.TrimSpace(fmt.Sprintln(v...)))
}
