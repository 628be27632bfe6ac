// Package docs registers the OpenAPI description served under /swagger.
// Regenerate with `swag init -g cmd/api/main.go` after changing handler
// annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/auth/register": {"post": {"tags": ["auth"], "summary": "Register a new user", "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}}},
        "/auth/login": {"post": {"tags": ["auth"], "summary": "Exchange credentials for a bearer token", "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}}},
        "/me/timezone": {"put": {"tags": ["auth"], "security": [{"BearerAuth": []}], "summary": "Change the IANA timezone used for context and stats", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}},
        "/templates": {
            "get": {"tags": ["templates"], "security": [{"BearerAuth": []}], "summary": "List the user's templates", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["templates"], "security": [{"BearerAuth": []}], "summary": "Create a routine template", "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}}
        },
        "/templates/sync": {"get": {"tags": ["templates"], "security": [{"BearerAuth": []}], "summary": "Template changes since last_sync, tombstones included", "responses": {"200": {"description": "OK"}}}},
        "/templates/select": {"get": {"tags": ["templates"], "security": [{"BearerAuth": []}], "summary": "Pick the best template for the current context", "responses": {"200": {"description": "OK"}, "404": {"description": "No template matches"}}}},
        "/templates/{id}": {
            "get": {"tags": ["templates"], "security": [{"BearerAuth": []}], "summary": "Read a template with its estimated duration", "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "put": {"tags": ["templates"], "security": [{"BearerAuth": []}], "summary": "Replace a template, optimistic on version", "responses": {"200": {"description": "OK"}, "409": {"description": "Version conflict"}}},
            "delete": {"tags": ["templates"], "security": [{"BearerAuth": []}], "summary": "Soft delete a template", "responses": {"204": {"description": "No Content"}}}
        },
        "/context": {"get": {"tags": ["context"], "security": [{"BearerAuth": []}], "summary": "Resolve time slot, day category and location category", "responses": {"200": {"description": "OK"}}}},
        "/context/settings": {
            "get": {"tags": ["context"], "security": [{"BearerAuth": []}], "summary": "Read the user's context settings", "responses": {"200": {"description": "OK"}}},
            "put": {"tags": ["context"], "security": [{"BearerAuth": []}], "summary": "Replace the user's context settings", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}
        },
        "/sessions": {
            "get": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Finished and cancelled sessions started in [from, to)", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Start a session", "responses": {"201": {"description": "Created"}, "404": {"description": "No template"}, "409": {"description": "Already active"}}}
        },
        "/sessions/sync": {"get": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Completion records stored since last_sync", "responses": {"200": {"description": "OK"}}}},
        "/sessions/records/{id}": {"get": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Read one completion record", "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}},
        "/sessions/current": {"get": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Snapshot of the device's active session", "responses": {"200": {"description": "OK"}, "404": {"description": "No active session"}}}},
        "/sessions/current/complete": {"post": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Record a habit as done", "responses": {"200": {"description": "OK"}}}},
        "/sessions/current/skip": {"post": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Skip an optional habit", "responses": {"200": {"description": "OK"}, "422": {"description": "Required habit"}}}},
        "/sessions/current/select-option": {"post": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Answer a conditional habit", "responses": {"200": {"description": "OK"}}}},
        "/sessions/current/clear-option": {"post": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Withdraw a conditional answer", "responses": {"200": {"description": "OK"}}}},
        "/sessions/current/advance": {"post": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Move the cursor forward", "responses": {"200": {"description": "OK"}}}},
        "/sessions/current/retreat": {"post": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Move the cursor back", "responses": {"200": {"description": "OK"}}}},
        "/sessions/current/finish": {"post": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Complete the session", "responses": {"200": {"description": "OK"}, "422": {"description": "Required habits missing"}}}},
        "/sessions/current/cancel": {"post": {"tags": ["sessions"], "security": [{"BearerAuth": []}], "summary": "Abandon the session", "responses": {"200": {"description": "OK"}}}},
        "/stats/routines": {"get": {"tags": ["stats"], "security": [{"BearerAuth": []}], "summary": "Per-routine completion stats", "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Kanso Routines API",
	Description:      "Context aware routine templates and guided routine sessions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
