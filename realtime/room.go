package realtime

import "strings"

// RoomID names a membership set. The namespaces are disjoint:
// user:<identityID>, session:<sessionID> and the singleton mentors.
type RoomID string

// MentorsRoom holds every connected mentor for the lifetime of the process.
const MentorsRoom RoomID = "mentors"

const (
	userPrefix    = "user:"
	sessionPrefix = "session:"
)

func UserRoom(identityID string) RoomID {
	return RoomID(userPrefix + identityID)
}

func SessionRoom(sessionID string) RoomID {
	return RoomID(sessionPrefix + sessionID)
}

func (r RoomID) IsUser() bool {
	return strings.HasPrefix(string(r), userPrefix)
}

func (r RoomID) IsSession() bool {
	return strings.HasPrefix(string(r), sessionPrefix)
}

// persistent reports whether the room survives becoming empty.
func (r RoomID) persistent() bool {
	return r == MentorsRoom
}
