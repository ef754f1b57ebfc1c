// Package webhooks is the inbound notification surface. It normalizes each
// provider's wire dialect, answers verification handshakes synchronously,
// and routes attributed change events to live connections.
//
// The correlation token embedded in channel state is unsigned; an event only
// routes when a stored subscription row corroborates the claimed owner.
package webhooks
