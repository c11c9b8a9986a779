package resources

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/itsatony/emhub/internal/errors"
	"github.com/itsatony/emhub/internal/hubservice"
	"github.com/itsatony/emhub/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

// multipartOverhead is room for form fields next to the file itself.
const multipartOverhead = 1 << 20

// FirmwareHandlers encapsulates the firmware-related HTTP handlers
type FirmwareHandlers struct {
	hubservice *hubservice.HubService
	maxSize    int64
}

// SetMaxFileSize bounds uploads; the service applies the same limit.
func (h *FirmwareHandlers) SetMaxFileSize(n int64) {
	h.maxSize = n
}

func (h *FirmwareHandlers) maxFileSize() int64 {
	if h.maxSize > 0 {
		return h.maxSize
	}
	return hubservice.DefaultMaxFirmwareSize
}

// @Summary Upload a firmware image
// @Description Stores a .bin image under a new version name
// @Tags firmware
// @Accept multipart/form-data
// @Produce json
// @Param firmwareFile formData file true "Firmware image (.bin)"
// @Param versionName formData string true "Version name"
// @Param description formData string false "Description"
// @Success 200 {object} models.FirmwareUploadResponse
// @Failure 400 {object} errors.APIError
// @Failure 409 {object} errors.APIError
// @Router /firmware/upload [post]
func (h *FirmwareHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	limit := h.maxFileSize()

	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(limit); err != nil {
		respondWithError(w, errors.NewValidationError("file too large or malformed form", err).WithRequestID(requestID))
		return
	}

	var upload models.FirmwareUpload
	if err := decoder.Decode(&upload, r.MultipartForm.Value); err != nil {
		respondWithError(w, errors.NewValidationError("invalid form fields", err).WithRequestID(requestID))
		return
	}

	file, header, err := r.FormFile("firmwareFile")
	if err != nil {
		respondWithError(w, errors.NewValidationError("no firmware file uploaded", err).WithRequestID(requestID))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		respondWithError(w, errors.NewValidationError("failed to read firmware file", err).WithRequestID(requestID))
		return
	}

	summary, err := h.hubservice.UploadFirmware(r.Context(), upload, hubservice.FirmwareFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		respondWithError(w, asAPIError(err, "failed to upload firmware").WithRequestID(requestID))
		return
	}

	respondWithJSON(w, http.StatusOK, models.FirmwareUploadResponse{
		Success:  true,
		Message:  "firmware uploaded",
		Version:  summary.Version,
		FileSize: summary.FileSize,
		Checksum: summary.Checksum,
	})
}

// @Summary List firmware versions
// @Tags firmware
// @Produce json
// @Success 200 {object} models.FirmwareListResponse
// @Failure 500 {object} errors.APIError
// @Router /firmware [get]
func (h *FirmwareHandlers) List(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)

	versions, err := h.hubservice.ListFirmware(r.Context())
	if err != nil {
		respondWithError(w, asAPIError(err, "failed to list firmware").WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, models.FirmwareListResponse{Success: true, Versions: versions})
}

// @Summary Get firmware metadata
// @Tags firmware
// @Produce json
// @Param version path string true "Version name"
// @Param X-Client-Role header string false "device includes the payload"
// @Success 200 {object} models.FirmwareInfoResponse
// @Failure 404 {object} errors.APIError
// @Router /firmware/info/{version} [get]
func (h *FirmwareHandlers) Info(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	version := mux.Vars(r)["version"]

	record, err := h.hubservice.GetFirmwareInfo(r.Context(), version)
	if err != nil {
		respondWithError(w, asAPIError(err, "failed to load firmware").WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, models.FirmwareInfoResponse{Success: true, Firmware: record})
}

// @Summary Download a firmware image
// @Tags firmware
// @Produce application/octet-stream
// @Param version path string true "Version name"
// @Success 200 {file} file
// @Failure 404 {object} errors.APIError
// @Router /firmware/download/{version} [get]
func (h *FirmwareHandlers) Download(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	version := mux.Vars(r)["version"]

	record, data, err := h.hubservice.DownloadFirmware(r.Context(), version)
	if err != nil {
		respondWithError(w, asAPIError(err, "failed to load firmware").WithRequestID(requestID))
		return
	}

	fileName := record.FileName
	if fileName == "" {
		fileName = record.Version + ".bin"
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Firmware-Version", record.Version)
	w.Header().Set("X-Firmware-Checksum", record.Checksum)
	w.Header().Set("X-Firmware-Size", strconv.FormatInt(record.FileSize, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		nuts.L.Errorf("[FirmwareHandler] Failed to stream firmware %s: %v", version, err)
		return
	}
	nuts.L.Infof("[FirmwareHandler] Firmware %s downloaded by %s", version, r.RemoteAddr)
}

// @Summary Delete a firmware version
// @Tags firmware
// @Produce json
// @Param version path string true "Version name"
// @Success 200 {object} models.Ack
// @Failure 404 {object} errors.APIError
// @Router /firmware/{version} [delete]
func (h *FirmwareHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	requestID := nuts.NID("req", 12)
	version := mux.Vars(r)["version"]

	if err := h.hubservice.DeleteFirmware(r.Context(), version); err != nil {
		respondWithError(w, asAPIError(err, "failed to delete firmware").WithRequestID(requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, models.Ack{Success: true, Message: "firmware deleted"})
}
