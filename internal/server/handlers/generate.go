// Package handlers provides HTTP request handlers for the neowatch API.
//
// Handlers are organized by domain for maintainability:
//
//   - events.go: special event listing, retrieval and mutation
//   - realtime.go: SSE and WebSocket observer streams
//   - admin.go: hub and cache statistics
//   - health.go: health and readiness checks
//
// Read handlers follow a consistent pattern:
//
//  1. Validate input
//  2. Record the stream sequence
//  3. Check cache (if applicable)
//  4. Query the event service
//  5. Cache result (if applicable)
//  6. Return response
//
// Handlers use dependency injection for testability and receive all
// dependencies through the Handlers struct.
package handlers

//go:generate gomarkdoc --output README.md .
