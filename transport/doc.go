// Package transport exposes a realtime.Router over HTTP at /socket/.
//
// Clients that send a WebSocket upgrade get a persistent framed connection;
// everything else falls back to long-polling. Both carry the same JSON
// frames ({"event": ..., "data": ...}) and the same handshake: the client
// presents {"auth":{"token":...}} and may also pass ?token= in the URL. A
// successful handshake is answered with a connect frame carrying the
// connection id, a failed one with connect_error and one of the fixed
// authentication messages.
package transport
