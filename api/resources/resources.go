// FilePath: api/resources/resources.go
package resources

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/hubservice"
	"github.com/itsatony/emhub/internal/monitoring"
	nuts "github.com/vaudience/go-nuts"
)

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// Resources holds all HTTP resource handlers
type Resources struct {
	Device      *DeviceHandlers
	Firmware    *FirmwareHandlers
	Readings    *ReadingHandlers
	HealthCheck func(w http.ResponseWriter, r *http.Request)
}

// NewResources creates a new Resources instance
func NewResources(svc *hubservice.HubService, monitor *monitoring.Service) *Resources {
	res := &Resources{
		Device:   &DeviceHandlers{hubservice: svc},
		Firmware: &FirmwareHandlers{hubservice: svc},
		Readings: &ReadingHandlers{hubservice: svc},
	}
	res.HealthCheck = (&HealthHandlers{monitor: monitor}).Health
	return res
}

// SetHealthCheck sets the health check handler
func (r *Resources) SetHealthCheck(h func(w http.ResponseWriter, r *http.Request)) {
	r.HealthCheck = h
}

// asAPIError passes an *APIError through and wraps anything else as an
// internal error carrying fallback.
func asAPIError(err error, fallback string) *errors.APIError {
	var apiErr *errors.APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	return errors.NewInternalError(fallback, err)
}

func respondWithError(w http.ResponseWriter, err *errors.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
	nuts.L.Errorf("[API] %s", err.Error())
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
