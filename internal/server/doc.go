// Package server implements the keytune bridge: an HTTP API and WebSocket
// status feed that let a remote UI drive a locally attached keyboard.
//
// # Endpoints
//
//	GET  /health      liveness, uptime, client count and build version
//	GET  /status      current connection status
//	POST /connect     auto-connect to the paired keyboard
//	POST /disconnect  drop the handle, keep the pairing
//	GET  /export      full snapshot JSON
//	POST /import      replay a snapshot JSON body
//	GET  /ws          WebSocket feed of status pushes
//
// Errors are JSON {"error", "kind", "hint"} with the HTTP status derived from
// the error kind: validation and parse 400, busy 409, missing device 503.
//
// # WebSocket feed
//
// Every client receives {"type":"status","status":{...}} messages, starting
// with the latest status on connect. Clients that fall behind by more than a
// small buffer are dropped. The server pings every 54s and expects a pong
// within 60s.
//
// # Usage Example
//
//	srv, err := server.New(&server.Config{Port: server.DefaultPort}, sess, engine)
//	if err != nil {
//	    return err
//	}
//	// Start blocks until ctx is done or a shutdown signal arrives.
//	return srv.Start(ctx)
package server
