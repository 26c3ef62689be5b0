package eventlog

import "fmt"

// ServerStarted is the announcement emitted once the transport is bound
func ServerStarted(port int) string {
	return fmt.Sprintf("Server started. Listening on port %d", port)
}

// ClientConnected is emitted the first time a peer is seen
func ClientConnected(peer fmt.Stringer) string {
	return "Client connected: " + peer.String()
}

// ResponseSent traces a reply delivered to a peer
func ResponseSent(peer fmt.Stringer, response string) string {
	return fmt.Sprintf("Response sent to %s: %s", peer, response)
}

// ClientDisconnected is emitted when a peer is evicted for inactivity
func ClientDisconnected(peer fmt.Stringer) string {
	return "Client disconnected due to inactivity: " + peer.String()
}

// Error traces a failure contained within one listener iteration
func Error(err error) string {
	return "Error: " + err.Error()
}
