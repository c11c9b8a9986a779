package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/itsatony/emhub/api/middleware"
	"github.com/itsatony/emhub/api/resources"
	_ "github.com/itsatony/emhub/docs"
	"github.com/itsatony/emhub/internal/hubservice"
	"github.com/itsatony/emhub/internal/monitoring"
	"github.com/swaggo/swag"
	nuts "github.com/vaudience/go-nuts"
)

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins  []string
	MaxFirmwareSize int64
	// Channel serves the persistent channel endpoint; nil leaves /ws unrouted.
	Channel http.Handler
}

type Router struct {
	router    *mux.Router
	handler   http.Handler
	resources *resources.Resources
	opts      Options
}

func NewRouter(svc *hubservice.HubService, monitor *monitoring.Service, opts Options) *Router {
	r := &Router{
		router:    mux.NewRouter(),
		resources: resources.NewResources(svc, monitor),
		opts:      opts,
	}
	r.resources.Firmware.SetMaxFileSize(opts.MaxFirmwareSize)

	r.setupRoutes()
	r.handler = middleware.Recovery(middleware.ProxyHeaders(middleware.CORS(opts.AllowedOrigins)(r.router)))
	return r
}

func (r *Router) setupRoutes() {
	if r.opts.Channel != nil {
		r.router.Handle("/ws", r.opts.Channel).Methods(http.MethodGet)
	}

	api := r.router.PathPrefix("/api").Subrouter()
	api.Use(middleware.RequestID, middleware.AccessLog, middleware.ClientRoles)

	// Public routes
	api.HandleFunc("/health", r.resources.HealthCheck).Methods(http.MethodGet)
	api.HandleFunc("/docs/swagger.json", serveSwagger).Methods(http.MethodGet)
	api.HandleFunc("/snapshot", r.resources.Readings.Snapshot).Methods(http.MethodGet)
	api.HandleFunc("/readings", r.resources.Readings.History).Methods(http.MethodGet)

	// Device
	device := api.PathPrefix("/device").Subrouter()
	device.HandleFunc("/readings", r.resources.Device.SubmitReading).Methods(http.MethodPost)
	device.HandleFunc("/address", r.resources.Device.RegisterAddress).Methods(http.MethodPost)
	device.HandleFunc("/config", r.resources.Device.GetConfig).Methods(http.MethodGet)
	device.HandleFunc("/config", r.resources.Device.SetConfig).Methods(http.MethodPost)
	device.HandleFunc("/start-sampling", r.resources.Device.StartSampling).Methods(http.MethodPost)
	device.HandleFunc("/stop-sampling", r.resources.Device.StopSampling).Methods(http.MethodPost)
	device.HandleFunc("/status", r.resources.Device.Status).Methods(http.MethodGet)

	// Older dashboards address the device as esp32
	legacy := api.PathPrefix("/esp32").Subrouter()
	legacy.HandleFunc("/config", r.resources.Device.GetConfig).Methods(http.MethodGet)
	legacy.HandleFunc("/config", r.resources.Device.SetConfig).Methods(http.MethodPost)
	legacy.HandleFunc("/start-sampling", r.resources.Device.StartSampling).Methods(http.MethodPost)
	legacy.HandleFunc("/stop-sampling", r.resources.Device.StopSampling).Methods(http.MethodPost)

	// Firmware
	firmware := api.PathPrefix("/firmware").Subrouter()
	firmware.HandleFunc("", r.resources.Firmware.List).Methods(http.MethodGet)
	firmware.HandleFunc("/upload", r.resources.Firmware.Upload).Methods(http.MethodPost)
	firmware.HandleFunc("/info/{version}", r.resources.Firmware.Info).Methods(http.MethodGet)
	firmware.HandleFunc("/download/{version}", r.resources.Firmware.Download).Methods(http.MethodGet)
	firmware.HandleFunc("/{version}", r.resources.Firmware.Delete).Methods(http.MethodDelete)
}

func serveSwagger(w http.ResponseWriter, _ *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		nuts.L.Errorf("[API] Failed to read swagger doc: %v", err)
		http.Error(w, "documentation unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}
