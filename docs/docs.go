// Package docs registers the OpenAPI document for the /api routes with swag.
// It is maintained by hand alongside the @Summary annotations in api/resources.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/device/address": {
            "post": {
                "consumes": ["application/json", "application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["device"],
                "summary": "Register the device address",
                "parameters": [
                    {"description": "Device address", "name": "address", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.AddressRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Ack"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            }
        },
        "/device/config": {
            "get": {
                "produces": ["application/json"],
                "tags": ["device"],
                "summary": "Get the device address",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.DeviceConfigResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            },
            "post": {
                "description": "Forwards the dashboard host and port to the device.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["device"],
                "summary": "Configure the device's dashboard target",
                "parameters": [
                    {"description": "Dashboard host and port", "name": "config", "in": "body", "required": true, "schema": {"$ref": "#/definitions/models.DashboardConfigRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Ack"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.APIError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.APIError"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.APIError"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            }
        },
        "/device/readings": {
            "post": {
                "description": "One-shot reading submission. Field names follow the device's alias table; an address or ip field registers the device address.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["device"],
                "summary": "Submit a reading",
                "parameters": [
                    {"description": "Raw reading payload", "name": "reading", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Ack"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            }
        },
        "/device/start-sampling": {
            "post": {
                "produces": ["application/json"],
                "tags": ["device"],
                "summary": "Start sampling on the device",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Ack"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.APIError"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.APIError"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            }
        },
        "/device/stop-sampling": {
            "post": {
                "produces": ["application/json"],
                "tags": ["device"],
                "summary": "Stop sampling on the device",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Ack"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.APIError"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.APIError"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            }
        },
        "/device/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["device"],
                "summary": "Query device status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.DeviceStatusResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.APIError"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/errors.APIError"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            }
        },
        "/firmware": {
            "get": {
                "produces": ["application/json"],
                "tags": ["firmware"],
                "summary": "List firmware versions",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.FirmwareListResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            }
        },
        "/firmware/download/{version}": {
            "get": {
                "produces": ["application/octet-stream"],
                "tags": ["firmware"],
                "summary": "Download a firmware image",
                "parameters": [
                    {"type": "string", "description": "Version name", "name": "version", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            }
        },
        "/firmware/info/{version}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["firmware"],
                "summary": "Get firmware metadata",
                "parameters": [
                    {"type": "string", "description": "Version name", "name": "version", "in": "path", "required": true},
                    {"type": "string", "description": "device includes the payload", "name": "X-Client-Role", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.FirmwareInfoResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            }
        },
        "/firmware/upload": {
            "post": {
                "description": "Stores a .bin image under a new version name",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["firmware"],
                "summary": "Upload a firmware image",
                "parameters": [
                    {"type": "file", "description": "Firmware image (.bin)", "name": "firmwareFile", "in": "formData", "required": true},
                    {"type": "string", "description": "Version name", "name": "versionName", "in": "formData", "required": true},
                    {"type": "string", "description": "Description", "name": "description", "in": "formData"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.FirmwareUploadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.APIError"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            }
        },
        "/firmware/{version}": {
            "delete": {
                "produces": ["application/json"],
                "tags": ["firmware"],
                "summary": "Delete a firmware version",
                "parameters": [
                    {"type": "string", "description": "Version name", "name": "version", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.Ack"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/monitoring.HealthReport"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/monitoring.HealthReport"}}
                }
            }
        },
        "/readings": {
            "get": {
                "description": "Returns every stored row; granularity is echoed for the caller's aggregation.",
                "produces": ["application/json"],
                "tags": ["readings"],
                "summary": "List stored readings",
                "parameters": [
                    {"enum": ["hourly", "daily"], "type": "string", "description": "hourly or daily", "name": "granularity", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.ReadingsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.APIError"}}
                }
            }
        },
        "/snapshot": {
            "get": {
                "produces": ["application/json"],
                "tags": ["readings"],
                "summary": "Current reading",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.SnapshotResponse"}}
                }
            }
        }
    },
    "definitions": {
        "errors.APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "message": {"type": "string"},
                "request_id": {"type": "string"},
                "success": {"type": "boolean"},
                "type": {"type": "string"}
            }
        },
        "models.Ack": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "models.AddressRequest": {
            "type": "object",
            "properties": {
                "address": {"type": "string"},
                "ip": {"type": "string"}
            }
        },
        "models.DashboardConfigRequest": {
            "type": "object",
            "properties": {
                "host": {"type": "string"},
                "port": {"type": "integer"}
            }
        },
        "models.DeviceConfigResponse": {
            "type": "object",
            "properties": {
                "deviceAddress": {"type": "string"},
                "ip": {"type": "string"},
                "success": {"type": "boolean"}
            }
        },
        "models.DeviceStatusResponse": {
            "type": "object",
            "properties": {
                "device": {"type": "object", "additionalProperties": true},
                "sampling": {"type": "boolean"},
                "success": {"type": "boolean"}
            }
        },
        "models.FirmwareInfoResponse": {
            "type": "object",
            "properties": {
                "firmware": {"$ref": "#/definitions/models.FirmwareRecord"},
                "success": {"type": "boolean"}
            }
        },
        "models.FirmwareListResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "versions": {"type": "array", "items": {"$ref": "#/definitions/models.FirmwareSummary"}}
            }
        },
        "models.FirmwareRecord": {
            "type": "object",
            "properties": {
                "checksum": {"type": "string"},
                "data_hex": {"type": "string"},
                "description": {"type": "string"},
                "file_name": {"type": "string"},
                "file_size": {"type": "integer"},
                "upload_date": {"type": "string"},
                "version": {"type": "string"}
            }
        },
        "models.FirmwareSummary": {
            "type": "object",
            "properties": {
                "checksum": {"type": "string"},
                "description": {"type": "string"},
                "file_name": {"type": "string"},
                "file_size": {"type": "integer"},
                "upload_date": {"type": "string"},
                "version": {"type": "string"}
            }
        },
        "models.FirmwareUploadResponse": {
            "type": "object",
            "properties": {
                "checksum": {"type": "string"},
                "fileSize": {"type": "integer"},
                "message": {"type": "string"},
                "success": {"type": "boolean"},
                "version": {"type": "string"}
            }
        },
        "models.HistoryRow": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "recorded_at": {"type": "string"},
                "time": {"type": "string"},
                "temperature": {"type": "number"},
                "humidity": {"type": "number"},
                "pressure": {"type": "number"},
                "gas1": {"type": "number"},
                "gas2": {"type": "number"},
                "gas3": {"type": "number"},
                "gas4": {"type": "number"}
            }
        },
        "models.Reading": {
            "type": "object",
            "properties": {
                "time": {"type": "string"},
                "temperature": {"type": "number"},
                "humidity": {"type": "number"},
                "pressure": {"type": "number"},
                "gas1": {"type": "number"},
                "gas2": {"type": "number"},
                "gas3": {"type": "number"},
                "gas4": {"type": "number"}
            }
        },
        "models.ReadingsResponse": {
            "type": "object",
            "properties": {
                "granularity": {"type": "string"},
                "rows": {"type": "array", "items": {"$ref": "#/definitions/models.HistoryRow"}},
                "success": {"type": "boolean"}
            }
        },
        "models.SnapshotResponse": {
            "type": "object",
            "properties": {
                "data": {"$ref": "#/definitions/models.Reading"},
                "success": {"type": "boolean"}
            }
        },
        "monitoring.HealthReport": {
            "type": "object",
            "properties": {
                "backends": {"type": "object", "additionalProperties": {"type": "string"}},
                "connections": {"type": "object"},
                "events": {"type": "object", "additionalProperties": {"type": "integer"}},
                "ota": {"type": "object"},
                "status": {"type": "string"},
                "system": {"type": "object"},
                "uptime": {"type": "string"},
                "version": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Environment Monitor Hub API",
	Description:      "Telemetry relay and OTA firmware hub between one sensor device and its dashboards.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
