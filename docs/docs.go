// Package docs is generated by swaggo/swag from the annotations in cmd/api
// and internal/http/handler. Regenerate with `swag init -g cmd/api/main.go`.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/files": {
            "get": {
                "produces": ["application/json"],
                "tags": ["files"],
                "summary": "List files",
                "parameters": [
                    {"type": "integer", "description": "owner id", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "integer", "description": "page, default 1", "name": "page", "in": "query"},
                    {"type": "integer", "description": "page size, default 10, max 100", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/service.FileListResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            },
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["files"],
                "summary": "Upload a file for processing",
                "parameters": [
                    {"type": "integer", "description": "owner id", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "file", "description": "file to process", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handler.uploadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/files/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["files"],
                "summary": "Get file status",
                "parameters": [
                    {"type": "integer", "description": "owner id", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "integer", "description": "file id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.FileStatusView"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/files/{id}/download": {
            "get": {
                "tags": ["files"],
                "summary": "Download an archived file",
                "parameters": [
                    {"type": "integer", "description": "owner id", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "integer", "description": "file id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "307": {"description": "Temporary Redirect"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        },
        "/files/{id}/redispatch": {
            "post": {
                "produces": ["application/json"],
                "tags": ["files"],
                "summary": "Redispatch an undelivered file",
                "parameters": [
                    {"type": "integer", "description": "owner id", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "integer", "description": "file id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/model.Job"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.errorPayload"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handler.errorPayload"}}
                }
            }
        }
    },
    "definitions": {
        "handler.errorEnvelope": {
            "type": "object",
            "properties": {"code": {"type": "string"}, "message": {"type": "string"}}
        },
        "handler.errorPayload": {
            "type": "object",
            "properties": {"error": {"$ref": "#/definitions/handler.errorEnvelope"}, "request_id": {"type": "string"}}
        },
        "handler.uploadResponse": {
            "type": "object",
            "properties": {"data": {"$ref": "#/definitions/model.SubmitResult"}, "message": {"type": "string"}, "success": {"type": "boolean"}}
        },
        "model.SubmitResult": {
            "type": "object",
            "properties": {"fileId": {"type": "integer"}, "jobToken": {"type": "string"}}
        },
        "model.ExtractedData": {
            "type": "object",
            "properties": {
                "archiveKey": {"type": "string"},
                "created": {"type": "string"},
                "extension": {"type": "string"},
                "hash": {"type": "string"},
                "lastModified": {"type": "string"},
                "mimeType": {"type": "string"},
                "processedAt": {"type": "string"},
                "size": {"type": "integer"},
                "summary": {"type": "string"}
            }
        },
        "model.FileStatusView": {
            "type": "object",
            "properties": {
                "completedAt": {"type": "string"},
                "error": {"type": "string"},
                "extractedData": {"$ref": "#/definitions/model.ExtractedData"},
                "fileId": {"type": "integer"},
                "jobToken": {"type": "string"},
                "originalName": {"type": "string"},
                "processingStatus": {"type": "string"},
                "startedAt": {"type": "string"},
                "status": {"type": "string", "enum": ["uploaded", "processing", "processed", "failed"]},
                "uploadedAt": {"type": "string"}
            }
        },
        "model.Job": {
            "type": "object",
            "properties": {
                "completedAt": {"type": "string"},
                "createdAt": {"type": "string"},
                "errorMessage": {"type": "string"},
                "fileId": {"type": "integer"},
                "id": {"type": "integer"},
                "startedAt": {"type": "string"},
                "status": {"type": "string", "enum": ["queued", "processing", "completed", "failed"]},
                "token": {"type": "string"}
            }
        },
        "service.FileListResult": {
            "type": "object",
            "properties": {
                "data": {"type": "array", "items": {"$ref": "#/definitions/model.FileStatusView"}},
                "meta": {"$ref": "#/definitions/service.PageMeta"}
            }
        },
        "service.PageMeta": {
            "type": "object",
            "properties": {"limit": {"type": "integer"}, "page": {"type": "integer"}, "total": {"type": "integer"}, "totalPages": {"type": "integer"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "fileflow API",
	Description:      "Asynchronous file ingestion: upload, track and download processed files.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
