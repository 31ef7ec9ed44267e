// Package hub is the synchronization seam between sessions.
//
// A session hands each finalized change to a Hub and learns the outcome
// later: the hub calls AcknowledgeChange on the committing client and
// ReceivedChange on every other client, each with the version at which the
// change was ordered. Commit never blocks waiting for the round-trip.
//
// Loopback is an in-process hub whose deliveries are queued until Pump.
// Server and WSTransport carry the same protocol over websockets.
//
// The hub orders changes first come, first served. Resolving concurrent
// histories is left to the clients.
package hub
