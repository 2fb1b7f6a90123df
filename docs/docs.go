// Package docs holds the Swagger document served under /swagger.
// Regenerate with: swag init -g cmd/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support",
            "url": "https://github.com/guttosm/offline-sync"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/_offline/stats": {
            "get": {
                "tags": [
                    "Offline"
                ],
                "summary": "Offline statistics",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "500": {
                        "description": "Internal Server Error"
                    }
                }
            }
        },
        "/_offline/data": {
            "delete": {
                "tags": [
                    "Offline"
                ],
                "summary": "Clear all offline data",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "500": {
                        "description": "Internal Server Error"
                    }
                }
            }
        },
        "/_offline/sweep": {
            "post": {
                "tags": [
                    "Offline"
                ],
                "summary": "Run a janitor sweep",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "500": {
                        "description": "Internal Server Error"
                    }
                }
            }
        },
        "/_offline/queue": {
            "get": {
                "tags": [
                    "Queue"
                ],
                "summary": "List queued actions",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Filter by status (pending, syncing, completed, failed)",
                        "name": "status",
                        "in": "query"
                    }
                ]
            }
        },
        "/_offline/queue/{id}": {
            "get": {
                "tags": [
                    "Queue"
                ],
                "summary": "Get a queued action",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Not Found"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Action id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            },
            "delete": {
                "tags": [
                    "Queue"
                ],
                "summary": "Delete a queued action",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "204": {
                        "description": "No Content"
                    },
                    "404": {
                        "description": "Not Found"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Action id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/_offline/queue/{id}/retry": {
            "post": {
                "tags": [
                    "Queue"
                ],
                "summary": "Retry a failed action",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Not Found"
                    },
                    "409": {
                        "description": "Conflict"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Action id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/_offline/sync": {
            "post": {
                "tags": [
                    "Sync"
                ],
                "summary": "Trigger a sync pass",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "202": {
                        "description": "Accepted"
                    },
                    "409": {
                        "description": "Conflict"
                    }
                }
            }
        },
        "/_offline/cache": {
            "get": {
                "tags": [
                    "Cache"
                ],
                "summary": "Cache partition usage",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/_offline/cache/{partition}": {
            "get": {
                "tags": [
                    "Cache"
                ],
                "summary": "List keys of a cache partition",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Not Found"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Partition (precache, runtime, data, image)",
                        "name": "partition",
                        "in": "path",
                        "required": true
                    }
                ]
            },
            "delete": {
                "tags": [
                    "Cache"
                ],
                "summary": "Clear a cache partition",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "404": {
                        "description": "Not Found"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Partition (precache, runtime, data, image)",
                        "name": "partition",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/_offline/connectivity": {
            "get": {
                "tags": [
                    "Connectivity"
                ],
                "summary": "Current connectivity state",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "put": {
                "tags": [
                    "Connectivity"
                ],
                "summary": "Report a connectivity change",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    },
                    "400": {
                        "description": "Bad Request"
                    }
                },
                "parameters": [
                    {
                        "description": "New state",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "type": "object",
                            "properties": {
                                "online": {
                                    "type": "boolean"
                                }
                            }
                        }
                    }
                ]
            }
        },
        "/healthz": {
            "get": {
                "tags": [
                    "Health"
                ],
                "summary": "Liveness check",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "Service is alive"
                    }
                }
            }
        },
        "/readyz": {
            "get": {
                "tags": [
                    "Health"
                ],
                "summary": "Readiness check",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "Service is ready"
                    },
                    "503": {
                        "description": "Service is not ready"
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Offline Sync Gateway API",
	Description:      "Offline-first gateway in front of a remote REST API.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
