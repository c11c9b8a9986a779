package models

// ReadingsQuery holds the query options of the history endpoint
type ReadingsQuery struct {
	Granularity string `schema:"granularity"`
}

// AddressRequest registers the device address out of band.
type AddressRequest struct {
	Address string `json:"address" schema:"address"`
	IP      string `json:"ip" schema:"ip"`
}

// Value returns the address, preferring the address field over ip.
func (a AddressRequest) Value() string {
	if a.Address != "" {
		return a.Address
	}
	return a.IP
}

// DashboardConfigRequest is forwarded to the device.
type DashboardConfigRequest struct {
	Host string `json:"host" schema:"host"`
	Port int    `json:"port" schema:"port"`
}

// DeviceConfigResponse reports the known device address.
type DeviceConfigResponse struct {
	Success       bool   `json:"success"`
	DeviceAddress string `json:"deviceAddress"`
	// IP mirrors DeviceAddress for dashboards that read the older name.
	IP string `json:"ip"`
}

// FirmwareUploadResponse confirms a stored upload.
type FirmwareUploadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Version  string `json:"version"`
	FileSize int64  `json:"fileSize"`
	Checksum string `json:"checksum"`
}

// FirmwareInfoResponse wraps a filtered firmware record.
type FirmwareInfoResponse struct {
	Success  bool            `json:"success"`
	Firmware *FirmwareRecord `json:"firmware"`
}

// FirmwareListResponse is the REST form of the catalog.
type FirmwareListResponse struct {
	Success  bool              `json:"success"`
	Versions []FirmwareSummary `json:"versions"`
}

// ReadingsResponse carries raw history rows.
type ReadingsResponse struct {
	Success     bool         `json:"success"`
	Granularity Granularity  `json:"granularity"`
	Rows        []HistoryRow `json:"rows"`
}

// SnapshotResponse carries the current reading.
type SnapshotResponse struct {
	Success bool    `json:"success"`
	Data    Reading `json:"data"`
}

// DeviceStatusResponse relays the device's status reply.
type DeviceStatusResponse struct {
	Success  bool           `json:"success"`
	Sampling bool           `json:"sampling"`
	Device   map[string]any `json:"device"`
}
