// FilePath: internal/models/models.envelope.go
package models

// Message kinds on the persistent channel.
const (
	KindRegister        = "register"
	KindReading         = "reading"
	KindCatalogRequest  = "catalog-request"
	KindOTAStart        = "ota-start"
	KindOTAStream       = "ota-stream"
	KindSnapshotRequest = "snapshot-request"
	KindHistoryRequest  = "history-request"

	KindSnapshot = "snapshot"
	KindCatalog  = "catalog"
	KindOTAChunk = "ota-chunk"
	KindOTADone  = "ota-done"
	KindHistory  = "history"
)

// Envelope is an inbound channel message after decoding. Fields keeps the
// whole object so handlers can read kind-specific keys.
type Envelope struct {
	Kind        string
	RoleHint    string
	Version     string
	Granularity Granularity
	Fields      map[string]any
}

type SnapshotMessage struct {
	Kind string  `json:"kind"`
	Data Reading `json:"data"`
}

type CatalogMessage struct {
	Kind     string            `json:"kind"`
	Success  bool              `json:"success"`
	Versions []FirmwareSummary `json:"versions"`
	Message  string            `json:"message,omitempty"`
}

type OTAStartMessage struct {
	Kind    string `json:"kind"`
	Version string `json:"version"`
}

type OTAChunkMessage struct {
	Kind    string  `json:"kind"`
	Index   int     `json:"index"`
	Percent float64 `json:"percent"`
	Payload string  `json:"payload"`
}

type OTADoneMessage struct {
	Kind string `json:"kind"`
}

type HistoryMessage struct {
	Kind        string       `json:"kind"`
	Success     bool         `json:"success"`
	Granularity Granularity  `json:"granularity"`
	Rows        []HistoryRow `json:"rows"`
	Message     string       `json:"message,omitempty"`
}

// Ack is the reply body of the one-shot request/response calls.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
