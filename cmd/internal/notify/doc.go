// Package notify delivers outbound email and fans out "email sent" events.
//
// Delivery is simulated: SimulatedMailer waits a configurable latency, logs
// the message and publishes an EmailSent event on a Bus. WSGateway streams
// Bus events to connected toast clients over WebSocket.
package notify
