// Package docs registers the OpenAPI description of the HTTP API with swag.
// Regenerate the operation list with `swag init -g cmd/server/main.go`.
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
        "/auth/login": {"post": {"tags": ["Auth"], "summary": "Sign in", "operationId": "login", "responses": {"200": {"description": "OK"}, "401": {"description": "Invalid credentials"}}}},
        "/auth/register": {"post": {"tags": ["Auth"], "summary": "Create an account from an invitation", "operationId": "register", "responses": {"201": {"description": "Created"}, "409": {"description": "Conflict"}, "410": {"description": "Invitation expired"}}}},
        "/me": {"get": {"tags": ["Auth"], "summary": "Current profile", "operationId": "me", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/invitations": {
            "get": {"tags": ["Invitations"], "summary": "List invitations", "operationId": "listInvitations", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"}}},
            "post": {"tags": ["Invitations"], "summary": "Issue an invitation", "operationId": "issueInvitation", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "Reissued"}, "201": {"description": "Created"}}},
            "patch": {"tags": ["Invitations"], "summary": "Mark an invitation used", "operationId": "consumeInvitation", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "400": {"description": "No pending invitation matched"}}},
            "delete": {"tags": ["Invitations"], "summary": "Delete an invitation", "operationId": "deleteInvitation", "security": [{"BearerAuth": []}], "responses": {"204": {"description": "No Content"}, "404": {"description": "Not found"}}}
        },
        "/invitations/lookup": {"get": {"tags": ["Invitations"], "summary": "Look up an invitation by code", "operationId": "lookupInvitation", "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}, "410": {"description": "Expired"}}}},
        "/invitations/verify": {"post": {"tags": ["Invitations"], "summary": "Verify an invitation code", "operationId": "verifyInvitation", "responses": {"200": {"description": "OK"}}}},
        "/invitations/use": {"post": {"tags": ["Invitations"], "summary": "Redeem an invitation", "operationId": "useInvitation", "responses": {"200": {"description": "OK"}, "404": {"description": "Invitation or account not found"}, "409": {"description": "Used by or issued for another account"}, "410": {"description": "Expired"}}}},
        "/topics": {
            "get": {"tags": ["Topics"], "summary": "List topics", "operationId": "listTopics", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Topics"], "summary": "Create a topic", "operationId": "createTopic", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}, "409": {"description": "Name taken"}}}
        },
        "/topics/{id}": {"put": {"tags": ["Topics"], "summary": "Update a topic", "operationId": "updateTopic", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
        "/{kind}": {
            "get": {"tags": ["Numbering"], "summary": "List items of a year (paginated)", "operationId": "listItems", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "304": {"description": "Not Modified"}}},
            "post": {"tags": ["Numbering"], "summary": "Create an item with the next sequence", "operationId": "createItem", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}, "409": {"description": "Numbered concurrently"}}}
        },
        "/{kind}/gaps": {"get": {"tags": ["Numbering"], "summary": "List unused sequences", "operationId": "findGaps", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "404": {"description": "Nothing issued this year"}}}},
        "/{kind}/allocate": {"post": {"tags": ["Numbering"], "summary": "Claim an unused sequence", "operationId": "allocateGap", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}, "409": {"description": "Sequence already claimed"}}}},
        "/{kind}/{id}": {"get": {"tags": ["Numbering"], "summary": "Fetch one item", "operationId": "getItem", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}},
        "/{kind}/{id}/status": {"patch": {"tags": ["Numbering"], "summary": "Advance an item's status", "operationId": "advanceStatus", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "409": {"description": "Changed concurrently"}}}}
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Legislative Office API",
	Description:      "Invitations, accounts, topics and sequence allocation for expressions and petitions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
