// Package api provides the operator HTTP API and WebSocket feed for the access node.
//
// Operators log in with the configured account, then read the control state,
// list, print and validate the audit chain, manage credentials and adjust
// detection thresholds. Live changes are pushed over a WebSocket hub on the
// channels state.changed, chain.recorded, chain.validated and thresholds.changed.
//
// The server follows the same lifecycle as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
