// Package server provides the HTTP server for the neowatch API.
//
// The server package wires the special event API and the observer streams:
//
//   - Server: Core server struct with lifecycle management
//   - Config: Server configuration with sensible defaults
//   - Router: Route registration and middleware chain
//   - Handlers: HTTP request handlers organized by domain
//
// The architecture follows the pattern: CLI → App → Server → Router → Handlers
//
// Usage:
//
//	srv, err := server.New(server.Deps{Events: serializer, Hub: hub, Gate: gate}, server.DefaultConfig(), &logger)
//	if err != nil {
//	    return err
//	}
//
//	srv.Start(ctx) // Start background services
//	http.ListenAndServe(":8080", srv.Handler())
package server

//go:generate gomarkdoc --output README.md .
