package event

import (
	"testing"

	t "github.com/relaychat/server/internal/store/types"
)

func uid(n byte) t.UserId {
	var id t.UserId
	id[0] = n
	return id
}

func rid(n byte) t.RoomId {
	var id t.RoomId
	id[0] = n
	return id
}

func viewerIn(user t.UserId, rooms ...t.RoomId) Viewer {
	set := make(map[t.RoomId]struct{}, len(rooms))
	for _, r := range rooms {
		set[r] = struct{}{}
	}
	return Viewer{UserID: user, RoomIDs: set}
}

func TestShouldReceive_RoomTargetedMessages(t *testing.T) {
	room := rid(1)
	other := rid(2)
	e := Event{Kind: KindMessageReceived, RoomID: &room}

	if !ShouldReceive(e, viewerIn(uid(1), room)) {
		t.Error("viewer in the room should receive the message")
	}
	if ShouldReceive(e, viewerIn(uid(1), other)) {
		t.Error("viewer outside the room should not receive the message")
	}
}

func TestShouldReceive_DMMessages(t *testing.T) {
	a := uid(1)
	b := uid(2)
	c := uid(3)
	pair := a.String() + ":" + b.String()
	e := Event{Kind: KindMessageReceived, DMPair: &pair}

	if !ShouldReceive(e, Viewer{UserID: a}) {
		t.Error("dm participant a should receive")
	}
	if !ShouldReceive(e, Viewer{UserID: b}) {
		t.Error("dm participant b should receive")
	}
	if ShouldReceive(e, Viewer{UserID: c}) {
		t.Error("non-participant should not receive")
	}
}

func TestShouldReceive_RoomEventsRequireMembership(t *testing.T) {
	room := rid(5)
	kinds := []Kind{KindUserJoinedRoom, KindUserLeftRoom, KindMemberRoleChanged, KindRoomUpdated, KindRoomDeleted}
	for _, k := range kinds {
		e := Event{Kind: k, RoomID: &room}
		if !ShouldReceive(e, viewerIn(uid(9), room)) {
			t.Errorf("%s: member should receive", k)
		}
		if ShouldReceive(e, viewerIn(uid(9), rid(6))) {
			t.Errorf("%s: non-member should not receive", k)
		}
		if ShouldReceive(e, Viewer{UserID: uid(9)}) {
			t.Errorf("%s: event with nil RoomID should never deliver", k)
		}
	}
}

func TestShouldReceive_PresenceScopedToSharedRoom(t *testing.T) {
	room := rid(7)
	subject := uid(2)
	e := Event{Kind: KindUserOnline, SubjectUserID: subject, RoomID: &room}

	if !ShouldReceive(e, viewerIn(uid(3), room)) {
		t.Error("viewer sharing the room should receive presence")
	}
	if ShouldReceive(e, viewerIn(uid(3), rid(8))) {
		t.Error("viewer in a different room should not receive presence")
	}
	if ShouldReceive(e, viewerIn(subject, room)) {
		t.Error("subject should never receive its own presence event")
	}
}

func TestShouldReceive_InvitationScopedToRecipient(t *testing.T) {
	recipient := uid(4)
	e := Event{Kind: KindInvitationReceived, InvitationRecipient: recipient}

	if !ShouldReceive(e, Viewer{UserID: recipient}) {
		t.Error("recipient should receive their invitation")
	}
	if ShouldReceive(e, Viewer{UserID: uid(5)}) {
		t.Error("non-recipient should not receive the invitation")
	}
}

func TestShouldReceive_ServerNoticeBroadcastsToEveryone(t *testing.T) {
	e := Event{Kind: KindServerNotice, Notice: "maintenance"}
	if !ShouldReceive(e, Viewer{UserID: uid(1)}) {
		t.Error("server notice should reach any viewer")
	}
}

func TestShouldReceive_SessionScopedKindsNeverBroadcast(t *testing.T) {
	for _, k := range []Kind{KindInvitationCancelled, KindSessionExpiring} {
		e := Event{Kind: k}
		if ShouldReceive(e, Viewer{UserID: uid(1)}) {
			t.Errorf("%s must never be delivered via the broadcast listener", k)
		}
	}
}

func TestShouldReceive_UnknownKindDefaultsToDrop(t *testing.T) {
	if ShouldReceive(Event{Kind: Kind("Bogus")}, Viewer{UserID: uid(1)}) {
		t.Error("unknown kind should not be delivered")
	}
}
