// Package docs registers the OpenAPI description of the HTTP API with swag.
// Regenerate with: swag init -g cmd/sercha-chat/main.go
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "Sercha OSS",
            "url": "https://github.com/custodia-labs/sercha-chat/issues"
        },
        "license": {
            "name": "Apache 2.0",
            "url": "http://www.apache.org/licenses/LICENSE-2.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/conversations": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "List conversations",
                "parameters": [
                    {"type": "integer", "description": "Page number (1-based)", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/driving.ConversationPage"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "Create conversation",
                "parameters": [
                    {"description": "Conversation details", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/driving.CreateConversationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Conversation"}},
                    "400": {"description": "Invalid input", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/conversations/classify": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "Classify intent",
                "parameters": [
                    {"description": "Message", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.SendMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.ClassifyResponse"}},
                    "503": {"description": "Language model unavailable", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "Get conversation",
                "parameters": [{"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Conversation"}},
                    "404": {"description": "Conversation not found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "Delete conversation",
                "parameters": [{"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}},
                    "404": {"description": "Conversation not found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/documents": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "List documents",
                "parameters": [{"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.UploadResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Upload documents",
                "parameters": [
                    {"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true},
                    {"type": "file", "description": "Files to ingest", "name": "files", "in": "formData", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/http.UploadResponse"}},
                    "413": {"description": "Upload too large", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/messages": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "List messages",
                "parameters": [
                    {"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Page number (1-based)", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/driving.MessagePage"}}
                }
            }
        },
        "/conversations/{id}/messages/stream": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["text/event-stream"],
                "tags": ["Conversations"],
                "summary": "Send a message",
                "description": "One data event per token, then event done with data [DONE].",
                "parameters": [
                    {"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true},
                    {"description": "Message", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.SendMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "event stream", "schema": {"type": "string"}},
                    "400": {"description": "Empty message or no processed documents", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Conversation not found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/documents/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Get document",
                "parameters": [{"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Document"}},
                    "404": {"description": "Document not found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Delete document",
                "parameters": [{"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Conversation": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "title": {"type": "string"},
                "conversation_mode": {"type": "string", "enum": ["OPEN_CHAT", "DOCUMENT_QA", "DOCUMENT_SUMMARY"]},
                "summary": {"type": "string"},
                "metadata": {"type": "object", "additionalProperties": {"type": "string"}},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "domain.Document": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "conversation_id": {"type": "string"},
                "user_id": {"type": "string"},
                "name": {"type": "string"},
                "size": {"type": "integer"},
                "content_type": {"type": "string"},
                "status": {"type": "string", "enum": ["PROCESSING", "COMPLETED", "FAILED"]},
                "checksum": {"type": "string"},
                "error_message": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "domain.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "conversation_id": {"type": "string"},
                "role": {"type": "string", "enum": ["system", "user", "assistant"]},
                "content": {"type": "string"},
                "sequence_number": {"type": "integer"},
                "tokens_used": {"type": "integer"},
                "created_at": {"type": "string"}
            }
        },
        "driving.ConversationPage": {
            "type": "object",
            "properties": {
                "conversations": {"type": "array", "items": {"$ref": "#/definitions/domain.Conversation"}},
                "total": {"type": "integer"},
                "page": {"type": "integer"},
                "page_size": {"type": "integer"}
            }
        },
        "driving.CreateConversationRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "conversation_mode": {"type": "string"},
                "metadata": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "driving.MessagePage": {
            "type": "object",
            "properties": {
                "messages": {"type": "array", "items": {"$ref": "#/definitions/domain.Message"}},
                "total": {"type": "integer"},
                "page": {"type": "integer"},
                "page_size": {"type": "integer"}
            }
        },
        "http.ClassifyResponse": {
            "type": "object",
            "properties": {"conversation_mode": {"type": "string", "example": "DOCUMENT_QA"}}
        },
        "http.ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string", "example": "invalid request body"}}
        },
        "http.SendMessageRequest": {
            "type": "object",
            "properties": {"message": {"type": "string"}}
        },
        "http.StatusResponse": {
            "type": "object",
            "properties": {"status": {"type": "string", "example": "ok"}}
        },
        "http.UploadResponse": {
            "type": "object",
            "properties": {
                "documents": {"type": "array", "items": {"$ref": "#/definitions/domain.Document"}},
                "total": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT Bearer token. Format: \"Bearer {token}\"",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Sercha Chat API",
	Description:      "Chat over your own documents. Upload files to a conversation, then ask questions answered from their content.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
