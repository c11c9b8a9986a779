package resources

import (
	"net/http"
	"strings"

	"github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/hubservice"
	"github.com/itsatony/emhub/internal/models"
	"github.com/itsatony/emhub/internal/monitoring"
	nuts "github.com/vaudience/go-nuts"
)

// ReadingHandlers serves the current snapshot and stored history
type ReadingHandlers struct {
	hubservice *hubservice.HubService
}

// @Summary List stored readings
// @Description Returns every stored row; granularity is echoed for the caller's aggregation.
// @Tags readings
// @Produce json
// @Param granularity query string false "hourly or daily" Enums(hourly, daily)
// @Success 200 {object} models.ReadingsResponse
// @Failure 400 {object} errors.APIError
// @Router /readings [get]
func (h *ReadingHandlers) History(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var query models.ReadingsQuery
	if err := decoder.Decode(&query, r.URL.Query()); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	granularity := models.Granularity(strings.ToLower(strings.TrimSpace(query.Granularity)))
	granularity, rows, err := h.hubservice.ReadingHistory(r.Context(), granularity)
	if err != nil {
		respondWithError(w, asAPIError(err, "failed to read history").WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, models.ReadingsResponse{Success: true, Granularity: granularity, Rows: rows})
}

// @Summary Current reading
// @Tags readings
// @Produce json
// @Success 200 {object} models.SnapshotResponse
// @Router /snapshot [get]
func (h *ReadingHandlers) Snapshot(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, models.SnapshotResponse{Success: true, Data: h.hubservice.Snapshot()})
}

// HealthHandlers reports hub health
type HealthHandlers struct {
	monitor *monitoring.Service
}

// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} monitoring.HealthReport
// @Failure 503 {object} monitoring.HealthReport
// @Router /health [get]
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": nuts.GetVersion()})
		return
	}
	report := h.monitor.Health(r.Context())
	code := http.StatusOK
	if report.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, report)
}
