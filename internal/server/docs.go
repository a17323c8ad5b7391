// Package server provides the HTTP server for the neowatch API.
//
// This file contains general API documentation annotations for Swag/OpenAPI generation.
// These annotations describe the overall API (title, version, security, etc.)
// while individual endpoint annotations live in the handler files.
package server

// @title neowatch API
// @version 1.0
// @description REST API for curated near-Earth-object special events with real-time change streams over SSE and WebSocket.
// @description
// @description Features:
// @description - Active event listing in display order
// @description - Operator-only create, update and delete
// @description - Ordered change notifications with sequence numbers
// @description - Snapshot/stream reconciliation via X-Stream-Sequence
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
