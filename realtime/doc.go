// Package realtime implements the room graph behind the socket gateway.
//
// A [Router] admits authenticated connections, auto-joins their implicit
// rooms and dispatches the four session events (join-session,
// leave-session, session-message, direct-message) to [Registry] operations.
// The Registry is the only shared mutable state: one RWMutex guards the room
// map and every connection's membership set, and fan-out happens outside the
// lock into each connection's bounded outbound queue. A slow reader loses
// frames; it never stalls a broadcast.
//
// Membership is tracked per connection, so an identity with two open tabs
// has two entries in user:<id> and receives direct messages on both.
//
// The transport layer owns sockets and polling sessions. This package never
// touches the network.
package realtime
