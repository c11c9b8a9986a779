package resources

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/itsatony/emhub/internal/devicectl"
	"github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/hubservice"
	"github.com/itsatony/emhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

const maxBodySize = 1 << 20

// DeviceHandlers encapsulates the one-shot ingest and device control handlers
type DeviceHandlers struct {
	hubservice *hubservice.HubService
}

// @Summary Submit a reading
// @Description One-shot reading submission. Field names follow the device's alias table; an address or ip field registers the device address.
// @Tags device
// @Accept json
// @Produce json
// @Param reading body object true "Raw reading payload"
// @Success 200 {object} models.Ack
// @Failure 400 {object} errors.APIError
// @Router /device/readings [post]
func (h *DeviceHandlers) SubmitReading(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	if _, err := h.hubservice.SubmitReading(r.Context(), payload, r.RemoteAddr); err != nil {
		respondWithError(w, asAPIError(err, "failed to submit reading").WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, models.Ack{Success: true, Message: "reading received"})
}

// @Summary Register the device address
// @Tags device
// @Accept json
// @Accept x-www-form-urlencoded
// @Produce json
// @Param address body models.AddressRequest true "Device address"
// @Success 200 {object} models.Ack
// @Failure 400 {object} errors.APIError
// @Router /device/address [post]
func (h *DeviceHandlers) RegisterAddress(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var req models.AddressRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	if err := h.hubservice.RegisterDeviceAddress(r.Context(), req.Value()); err != nil {
		respondWithError(w, asAPIError(err, "failed to register address").WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, models.Ack{Success: true, Message: "device address registered"})
}

// @Summary Get the device address
// @Tags device
// @Produce json
// @Success 200 {object} models.DeviceConfigResponse
// @Failure 404 {object} errors.APIError
// @Router /device/config [get]
func (h *DeviceHandlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	addr, err := h.hubservice.DeviceAddress()
	if err != nil {
		respondWithError(w, asAPIError(err, "failed to resolve device").WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, models.DeviceConfigResponse{Success: true, DeviceAddress: addr, IP: addr})
}

// @Summary Configure the device's dashboard target
// @Description Forwards the dashboard host and port to the device.
// @Tags device
// @Accept json
// @Produce json
// @Param config body models.DashboardConfigRequest true "Dashboard host and port"
// @Success 200 {object} models.Ack
// @Failure 400 {object} errors.APIError
// @Failure 404 {object} errors.APIError
// @Failure 503 {object} errors.APIError
// @Failure 504 {object} errors.APIError
// @Router /device/config [post]
func (h *DeviceHandlers) SetConfig(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	var req models.DashboardConfigRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	target := devicectl.DashboardTarget{Host: req.Host, Port: req.Port}
	if err := h.hubservice.ConfigureDeviceDashboard(r.Context(), target); err != nil {
		respondWithError(w, asAPIError(err, "failed to configure device").WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, models.Ack{Success: true, Message: "dashboard configuration sent to device"})
}

// @Summary Start sampling on the device
// @Tags device
// @Produce json
// @Success 200 {object} models.Ack
// @Failure 404 {object} errors.APIError
// @Failure 503 {object} errors.APIError
// @Failure 504 {object} errors.APIError
// @Router /device/start-sampling [post]
func (h *DeviceHandlers) StartSampling(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	if err := h.hubservice.StartSampling(r.Context()); err != nil {
		respondWithError(w, asAPIError(err, "failed to start sampling").WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, models.Ack{Success: true, Message: "sampling started"})
}

// @Summary Stop sampling on the device
// @Tags device
// @Produce json
// @Success 200 {object} models.Ack
// @Failure 404 {object} errors.APIError
// @Failure 503 {object} errors.APIError
// @Failure 504 {object} errors.APIError
// @Router /device/stop-sampling [post]
func (h *DeviceHandlers) StopSampling(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	if err := h.hubservice.StopSampling(r.Context()); err != nil {
		respondWithError(w, asAPIError(err, "failed to stop sampling").WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, models.Ack{Success: true, Message: "sampling stopped"})
}

// @Summary Query device status
// @Tags device
// @Produce json
// @Success 200 {object} models.DeviceStatusResponse
// @Failure 404 {object} errors.APIError
// @Failure 503 {object} errors.APIError
// @Failure 504 {object} errors.APIError
// @Router /device/status [get]
func (h *DeviceHandlers) Status(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	status, err := h.hubservice.DeviceStatus(r.Context())
	if err != nil {
		respondWithError(w, asAPIError(err, "failed to query device").WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, models.DeviceStatusResponse{
		Success:  true,
		Sampling: status.Sampling,
		Device:   status.Raw,
	})
}

// decodeBody reads JSON bodies with encoding/json and form bodies with the
// schema decoder.
func decodeBody(r *http.Request, dst interface{}) error {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(maxBodySize); err != nil && err != http.ErrNotMultipart {
			return err
		}
		return decoder.Decode(dst, r.Form)
	default:
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil
		}
		return json.Unmarshal(data, dst)
	}
}
