// Package api provides the HTTP REST API and WebSocket state feed for the
// appliance bridge.
//
// It exposes the appliance control endpoints (control, toggle, all), the
// last-known-state read endpoint, and a WebSocket feed that pushes state
// updates as the board reports them.
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
