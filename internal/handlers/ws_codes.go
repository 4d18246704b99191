// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the lobby stream.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError websocket.StatusCode = 3000 // Client connected without the auction subprotocol.
	LobbyClosedError    websocket.StatusCode = 3004 // Lobby was archived while the client was watching.
)
