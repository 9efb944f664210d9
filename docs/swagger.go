// Package docs registers the OpenAPI document served by the Swagger UI.
package docs

import "github.com/swaggo/swag"

// @title Naver News Tab Search API
// @version 1.0
// @description Keyword-tab news ingestion service backed by the Naver search API

// @host localhost:8080
// @BasePath /api/v1

func init() {
	swag.Register(swag.Name, &swag.Spec{
		InfoInstanceName: "swagger",
		SwaggerTemplate:  docTemplate,
	})
}

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Naver News Tab Search API",
        "description": "Keyword-tab news ingestion service backed by the Naver search API",
        "version": "1.0.0"
    },
    "host": "localhost:8080",
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "consumes": ["application/json"],
    "produces": ["application/json"],
    "paths": {
        "/keywords": {
            "get": {
                "summary": "List configured keyword tabs",
                "description": "Returns the configured tabs and their unread article counts",
                "operationId": "getKeywords",
                "responses": {
                    "200": {"description": "Keyword list with unread counts"}
                }
            }
        },
        "/keywords/recalculate": {
            "post": {
                "summary": "Recalculate duplicate flags for a keyword",
                "operationId": "recalculateKeyword",
                "parameters": [
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/KeywordRequest"}}
                ],
                "responses": {
                    "200": {"description": "Recalculation finished"},
                    "400": {"description": "Missing keyword"}
                }
            }
        },
        "/articles": {
            "get": {
                "summary": "List stored articles",
                "operationId": "getArticles",
                "parameters": [
                    {"name": "keyword", "in": "query", "type": "string"},
                    {"name": "bookmarked", "in": "query", "type": "boolean"},
                    {"name": "unread", "in": "query", "type": "boolean"},
                    {"name": "hide_duplicates", "in": "query", "type": "boolean"},
                    {"name": "filter", "in": "query", "type": "string"},
                    {"name": "exclude", "in": "query", "type": "string", "description": "Comma-separated words to exclude"},
                    {"name": "sort", "in": "query", "type": "string", "enum": ["asc", "desc"]},
                    {"name": "start_date", "in": "query", "type": "string", "format": "date"},
                    {"name": "end_date", "in": "query", "type": "string", "format": "date"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Article list"},
                    "400": {"description": "Missing keyword"}
                }
            },
            "delete": {
                "summary": "Delete all non-bookmarked articles",
                "operationId": "deleteAllArticles",
                "responses": {
                    "200": {"description": "Articles deleted"}
                }
            }
        },
        "/articles/count": {
            "get": {
                "summary": "Count stored articles",
                "operationId": "getArticleCount",
                "parameters": [
                    {"name": "keyword", "in": "query", "type": "string"},
                    {"name": "bookmarked", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "Article count"}
                }
            }
        },
        "/articles/note": {
            "get": {
                "summary": "Read the note attached to an article",
                "operationId": "getNote",
                "parameters": [
                    {"name": "link", "in": "query", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "Note content"}
                }
            },
            "post": {
                "summary": "Attach a note to an article",
                "operationId": "saveNote",
                "responses": {
                    "200": {"description": "Note saved"}
                }
            }
        },
        "/articles/status": {
            "post": {
                "summary": "Update a status flag of an article",
                "description": "Allowed fields: is_read, is_bookmarked, notes, is_duplicate",
                "operationId": "updateStatus",
                "responses": {
                    "200": {"description": "Status updated"},
                    "400": {"description": "Field not allowed"}
                }
            }
        },
        "/articles/mark-read": {
            "post": {
                "summary": "Mark all articles of a keyword as read",
                "operationId": "markAllRead",
                "responses": {
                    "200": {"description": "Articles marked read"}
                }
            }
        },
        "/articles/old": {
            "delete": {
                "summary": "Delete old non-bookmarked articles",
                "operationId": "deleteOldArticles",
                "parameters": [
                    {"name": "days", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Old articles deleted"}
                }
            }
        },
        "/stats": {
            "get": {
                "summary": "Store-wide statistics",
                "operationId": "getStatistics",
                "responses": {
                    "200": {"description": "Statistics report"}
                }
            }
        },
        "/publishers": {
            "get": {
                "summary": "Most frequent publishers",
                "operationId": "getTopPublishers",
                "parameters": [
                    {"name": "keyword", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Publisher counts"}
                }
            }
        },
        "/fetch": {
            "post": {
                "summary": "Fetch fresh articles for one keyword",
                "operationId": "startFetch",
                "responses": {
                    "202": {"description": "Fetch started"},
                    "409": {"description": "Identical fetch ran moments ago"}
                }
            }
        },
        "/refresh": {
            "post": {
                "summary": "Start a sequential refresh over all keywords",
                "operationId": "startRefresh",
                "responses": {
                    "202": {"description": "Cycle started"},
                    "409": {"description": "Cycle already running"}
                }
            }
        },
        "/refresh/status": {
            "get": {
                "summary": "Current refresh cycle state",
                "operationId": "getRefreshStatus",
                "responses": {
                    "200": {"description": "Refresh status"}
                }
            }
        }
    },
    "definitions": {
        "KeywordRequest": {
            "type": "object",
            "required": ["keyword"],
            "properties": {
                "keyword": {"type": "string"}
            }
        }
    }
}`
