package internaldefs

import (
	"github.com/MrEthical07/sessiongate"
)

// CounterDef maps an engine counter to its exported name.
type CounterDef struct {
	ID   sessiongate.MetricID
	Name string
	Help string
}

// HistogramDef maps an engine histogram to its exported name.
type HistogramDef struct {
	ID   sessiongate.MetricID
	Name string
	Help string
}

// AuditDroppedName is exported from Engine.AuditDropped rather than the
// counter snapshot.
const (
	AuditDroppedName = "sessiongate_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

var CounterDefs = []CounterDef{
	{ID: sessiongate.MetricVerifySuccess, Name: "sessiongate_verify_success_total", Help: "Tokens resolved to a live identity."},
	{ID: sessiongate.MetricVerifyMissingToken, Name: "sessiongate_verify_missing_token_total", Help: "Verifications without a token."},
	{ID: sessiongate.MetricVerifyInvalidToken, Name: "sessiongate_verify_invalid_token_total", Help: "Malformed, expired or mistyped tokens."},
	{ID: sessiongate.MetricVerifyUnknownSubject, Name: "sessiongate_verify_unknown_subject_total", Help: "Valid tokens whose subject no longer exists."},
	{ID: sessiongate.MetricLookupUnavailable, Name: "sessiongate_lookup_unavailable_total", Help: "Identity lookups that failed or timed out."},
	{ID: sessiongate.MetricAuthorizeSuccess, Name: "sessiongate_authorize_success_total", Help: "Requests admitted by the guard."},
	{ID: sessiongate.MetricAuthorizeUnauthenticated, Name: "sessiongate_authorize_unauthenticated_total", Help: "Requests rejected with 401."},
	{ID: sessiongate.MetricAuthorizeForbidden, Name: "sessiongate_authorize_forbidden_total", Help: "Requests rejected with 403."},
	{ID: sessiongate.MetricSelfAccessOverride, Name: "sessiongate_self_access_override_total", Help: "Requests admitted only because the caller owns the resource."},
	{ID: sessiongate.MetricHandshakeAccepted, Name: "sessiongate_handshake_accepted_total", Help: "Socket handshakes accepted."},
	{ID: sessiongate.MetricHandshakeRejected, Name: "sessiongate_handshake_rejected_total", Help: "Socket handshakes rejected."},
	{ID: sessiongate.MetricHandshakeRateLimited, Name: "sessiongate_handshake_rate_limited_total", Help: "Socket handshakes rejected by the failure throttle."},
	{ID: sessiongate.MetricConnectionOpened, Name: "sessiongate_connection_opened_total", Help: "Connections admitted to the room graph."},
	{ID: sessiongate.MetricConnectionClosed, Name: "sessiongate_connection_closed_total", Help: "Connections removed from the room graph."},
	{ID: sessiongate.MetricRoomJoin, Name: "sessiongate_room_join_total", Help: "Room memberships added."},
	{ID: sessiongate.MetricRoomLeave, Name: "sessiongate_room_leave_total", Help: "Room memberships removed."},
	{ID: sessiongate.MetricRoomCollected, Name: "sessiongate_room_collected_total", Help: "Rooms removed after becoming empty."},
	{ID: sessiongate.MetricBroadcast, Name: "sessiongate_broadcast_total", Help: "Fan-out operations."},
	{ID: sessiongate.MetricFrameDelivered, Name: "sessiongate_frame_delivered_total", Help: "Frames queued to member connections."},
	{ID: sessiongate.MetricFrameDropped, Name: "sessiongate_frame_dropped_total", Help: "Frames dropped on a full outbound queue."},
	{ID: sessiongate.MetricDirectMessageUndelivered, Name: "sessiongate_direct_message_undelivered_total", Help: "Direct messages whose recipient had no connection."},
	{ID: sessiongate.MetricEventRejected, Name: "sessiongate_event_rejected_total", Help: "Inbound events that were unknown or malformed."},
}

var HistogramDefs = []HistogramDef{
	{ID: sessiongate.MetricVerifyLatency, Name: "sessiongate_verify_latency_seconds", Help: "Token verification latency including the identity lookup."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine
// keeps one more bucket for everything above the last bound.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// need one instrument per bucket.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, padding with zeros.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
