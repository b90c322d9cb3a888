// Package docs registers the OpenAPI document served by Swagger UI.
// Regenerate with: swag init -g cmd/server/main.go -o docs
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
        "/events": {
            "get": {
                "produces": ["text/event-stream"],
                "tags": ["Events"],
                "summary": "Dashboard event stream",
                "responses": {"200": {"description": "event stream", "schema": {"type": "string"}}}
            }
        },
        "/enquiries/notifications": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Unseen enquiries",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.NotificationsResponse"}}}
            }
        },
        "/enquiries/notifications/refresh": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Re-fetch the unseen snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.NotificationsResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/enquiries/notifications/read-all": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Mark all read",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.NotificationsResponse"}}}
            }
        },
        "/enquiries/notifications/{id}/open": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Notifications"],
                "summary": "Open an unseen enquiry",
                "parameters": [{"type": "string", "description": "Enquiry id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.NotificationsResponse"}}}
            }
        },
        "/{resource}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Resources"],
                "summary": "List a page",
                "parameters": [
                    {"$ref": "#/parameters/resource"},
                    {"type": "integer", "default": 1, "minimum": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"type": "integer", "default": 10, "maximum": 100, "minimum": 1, "description": "Items per page", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "consumes": ["application/json", "multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Resources"],
                "summary": "Create a record",
                "parameters": [
                    {"$ref": "#/parameters/resource"},
                    {"type": "string", "description": "Submission key", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "Replayed submission", "schema": {"type": "object"}},
                    "201": {"description": "Created", "schema": {"type": "object"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/{resource}/state": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Resources"],
                "summary": "Current slice state",
                "parameters": [{"$ref": "#/parameters/resource"}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/{resource}/count": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Resources"],
                "summary": "Refresh the total",
                "parameters": [{"$ref": "#/parameters/resource"}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/{resource}/clear-error": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Resources"],
                "summary": "Clear the last error",
                "parameters": [{"$ref": "#/parameters/resource"}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/{resource}/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Resources"],
                "summary": "Fetch one record",
                "parameters": [{"$ref": "#/parameters/resource"}, {"$ref": "#/parameters/id"}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            },
            "put": {
                "consumes": ["application/json", "multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Resources"],
                "summary": "Update a record",
                "parameters": [{"$ref": "#/parameters/resource"}, {"$ref": "#/parameters/id"}],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["Resources"],
                "summary": "Delete a record",
                "parameters": [
                    {"$ref": "#/parameters/resource"},
                    {"$ref": "#/parameters/id"},
                    {"type": "boolean", "description": "Purge instead of soft delete", "name": "hard", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/{resource}/{id}/status": {
            "patch": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Resources"],
                "summary": "Change the lifecycle status",
                "parameters": [
                    {"$ref": "#/parameters/resource"},
                    {"$ref": "#/parameters/id"},
                    {"description": "New status", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.StatusRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        }
    },
    "parameters": {
        "resource": {
            "enum": ["users", "enquiries", "followups", "contacts", "services"],
            "type": "string",
            "description": "Collection",
            "name": "resource",
            "in": "path",
            "required": true
        },
        "id": {"type": "string", "description": "Record id", "name": "id", "in": "path", "required": true}
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string"},
                "message": {"type": "string"},
                "fields": {"type": "object", "additionalProperties": {"type": "string"}},
                "upstream_status": {"type": "integer"}
            }
        },
        "handlers.StatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {"status": {"type": "string", "enum": ["new", "active", "blocked", "deleted"]}}
        },
        "handlers.NotificationsResponse": {
            "type": "object",
            "properties": {
                "newEnquiries": {"type": "array", "items": {"$ref": "#/definitions/domain.UnseenNotification"}},
                "newCount": {"type": "integer"},
                "unread": {"type": "integer"}
            }
        },
        "domain.UnseenNotification": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "fName": {"type": "string"},
                "enqNo": {"type": "string"},
                "createdAt": {"type": "string"},
                "read": {"type": "boolean"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "enquirydesk API",
	Description:      "State-synchronisation gateway for the admissions dashboard.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
