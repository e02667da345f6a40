// Package docs carries the generated OpenAPI document served under
// /swagger/. Regenerate with swag init when the HTTP surface changes.
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
        "/v1/meetings": {
            "post": {
                "summary": "Open a meeting workflow",
                "tags": ["meetings"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/meetings/{instance_id}": {
            "get": {
                "summary": "Get a workflow instance",
                "tags": ["meetings"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/meetings/{instance_id}/advance": {
            "post": {
                "summary": "Advance the meeting to the next stage",
                "tags": ["meetings"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/meetings/{instance_id}/quorum": {
            "post": {
                "summary": "Record the attendance quorum check",
                "tags": ["meetings"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/meetings/{instance_id}/fail": {
            "post": {
                "summary": "Move the meeting into the failed state",
                "tags": ["meetings"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/meetings/{instance_id}/recover": {
            "post": {
                "summary": "Recover a failed meeting",
                "tags": ["meetings"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/meetings/{instance_id}/transitions": {
            "get": {
                "summary": "List the stage transition audit trail",
                "tags": ["meetings"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/proxies": {
            "post": {
                "summary": "Grant a proxy",
                "tags": ["proxies"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/proxies/{grant_id}/revoke": {
            "post": {
                "summary": "Revoke a proxy grant",
                "tags": ["proxies"],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/v1/proxies/resolve": {
            "get": {
                "summary": "Resolve the effective holder for a grantor",
                "tags": ["proxies"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/sessions": {
            "post": {
                "summary": "Open a voting session",
                "tags": ["sessions"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/sessions/{session_id}/ballots": {
            "post": {
                "summary": "Cast a ballot",
                "tags": ["sessions"],
                "responses": {"200": {"description": "OK"}}
            },
            "get": {
                "summary": "List ballots subject to anonymity",
                "tags": ["sessions"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/sessions/{session_id}/close": {
            "post": {
                "summary": "Close and tally a voting session",
                "tags": ["sessions"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/sessions/{session_id}/cancel": {
            "post": {
                "summary": "Cancel an open voting session",
                "tags": ["sessions"],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/v1/sessions/{session_id}/results": {
            "get": {
                "summary": "Get session results",
                "tags": ["sessions"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/resolutions": {
            "post": {
                "summary": "Propose a resolution",
                "tags": ["resolutions"],
                "responses": {"200": {"description": "OK"}}
            },
            "get": {
                "summary": "List resolutions for a meeting",
                "tags": ["resolutions"],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/v1/resolutions/{resolution_id}": {
            "get": {
                "summary": "Get a resolution with its round outcomes",
                "tags": ["resolutions"],
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Boardroom Governance API",
	Description:      "Meeting workflow, proxy delegation, voting, and resolution registry.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
