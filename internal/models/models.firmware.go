// FilePath: internal/models/models.firmware.go
package models

import "time"

// FirmwareRecord is a stored firmware image. DataHex holds the uploaded bytes
// hex-encoded; it is only readable by the device and system roles.
type FirmwareRecord struct {
	Version     string    `json:"version" db:"version" readxs:"dashboard,device,system" writexs:"system"`
	DataHex     string    `json:"data_hex,omitempty" db:"data_hex" readxs:"device,system" writexs:"system"`
	Description string    `json:"description" db:"description" readxs:"dashboard,device,system" writexs:"system"`
	FileName    string    `json:"file_name" db:"file_name" readxs:"dashboard,device,system" writexs:"system"`
	FileSize    int64     `json:"file_size" db:"file_size" readxs:"dashboard,device,system" writexs:"system"`
	Checksum    string    `json:"checksum" db:"checksum" readxs:"dashboard,device,system" writexs:"system"`
	UploadDate  time.Time `json:"upload_date" db:"upload_date" readxs:"dashboard,device,system" writexs:"system"`
}

// Summary strips the payload from the record.
func (f *FirmwareRecord) Summary() FirmwareSummary {
	return FirmwareSummary{
		Version:     f.Version,
		Description: f.Description,
		FileName:    f.FileName,
		FileSize:    f.FileSize,
		Checksum:    f.Checksum,
		UploadDate:  f.UploadDate,
	}
}

// FirmwareSummary is the catalog view of a FirmwareRecord.
type FirmwareSummary struct {
	Version     string    `json:"version" db:"version"`
	Description string    `json:"description" db:"description"`
	FileName    string    `json:"file_name" db:"file_name"`
	FileSize    int64     `json:"file_size" db:"file_size"`
	Checksum    string    `json:"checksum" db:"checksum"`
	UploadDate  time.Time `json:"upload_date" db:"upload_date"`
}

// FirmwareUpload is the multipart form of an upload request, minus the file.
type FirmwareUpload struct {
	VersionName string `schema:"versionName"`
	Description string `schema:"description"`
}
