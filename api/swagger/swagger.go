package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "BulkOps API",
        "description": "Bulk mutation engine for CRM object stores",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Mutations", "description": "Bulk mutation execution"},
        {"name": "History", "description": "Mutation audit log and revert"},
        {"name": "Approvals", "description": "Deferred-execution review workflow"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "Degraded"}
                }
            }
        },
        "/mutations": {
            "post": {
                "tags": ["Mutations"],
                "summary": "Run a bulk mutation",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateMutationRequest"}}
                ],
                "responses": {
                    "200": {"description": "Completed (possibly partially)", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation or filter compilation failure"},
                    "403": {"description": "Deferred for approval", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/history": {
            "get": {
                "tags": ["History"],
                "summary": "List mutation history",
                "parameters": [
                    {"name": "objectType", "in": "query", "type": "string"},
                    {"name": "operation", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/history/{id}": {
            "get": {
                "tags": ["History"],
                "summary": "Get one history entry",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/history/{id}/revert": {
            "post": {
                "tags": ["History"],
                "summary": "Revert a recorded mutation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Revert outcome", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Entry not revert-eligible"}
                }
            }
        },
        "/approvals": {
            "get": {
                "tags": ["Approvals"],
                "summary": "List approval requests",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "objectType", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/approvals/{id}": {
            "get": {
                "tags": ["Approvals"],
                "summary": "Get one approval request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/approvals/{id}/decision": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Approve or deny a pending request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApprovalDecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Request no longer pending"}
                }
            }
        },
        "/approvals/{id}/execute": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Execute an approved request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Mutation result", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Request not approved or already executed"}
                }
            }
        }
    },
    "definitions": {
        "CreateMutationRequest": {
            "type": "object",
            "required": ["objectType"],
            "properties": {
                "objectType": {"type": "string"},
                "updateMode": {"type": "string", "enum": ["all", "specific"]},
                "fieldName": {"type": "string"},
                "currentValue": {"type": "string"},
                "newValue": {"type": "string"},
                "fieldUpdates": {"type": "object"},
                "filters": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/FilterCriterion"}
                },
                "parent": {"$ref": "#/definitions/ParentFilter"}
            }
        },
        "FilterCriterion": {
            "type": "object",
            "required": ["field"],
            "properties": {
                "field": {"type": "string"},
                "operator": {"type": "string"},
                "value": {"type": "string"}
            }
        },
        "ParentFilter": {
            "type": "object",
            "required": ["objectType", "id"],
            "properties": {
                "objectType": {"type": "string"},
                "id": {"type": "string"}
            }
        },
        "ApprovalDecisionRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["APPROVED", "DENIED"]},
                "note": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
