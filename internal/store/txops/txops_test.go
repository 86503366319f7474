package txops

import (
	"context"
	"testing"

	"github.com/relaychat/server/internal/store/adapter"
	"github.com/relaychat/server/internal/store/memstore"
	t "github.com/relaychat/server/internal/store/types"
)

func newTestAdapter() adapter.Adapter { return memstore.New() }

func mustCreateUser(tt *testing.T, a adapter.Adapter, username string) *t.User {
	tt.Helper()
	user, _, err := UserRegistration(context.Background(), a, &t.User{Username: username, PasswordHash: "x"}, &t.Session{Protocol: t.ProtocolTCP})
	if err != nil {
		tt.Fatalf("UserRegistration(%s): %v", username, err)
	}
	return user
}

func mustCreateRoom(tt *testing.T, a adapter.Adapter, name string, owner t.UserId) *t.Room {
	tt.Helper()
	room, _, err := CreateRoomWithMembership(context.Background(), a, &t.Room{Name: name, Type: t.RoomChannel, Privacy: t.PrivacyPublic, CreatedBy: owner}, &t.Membership{UserId: owner})
	if err != nil {
		tt.Fatalf("CreateRoomWithMembership(%s): %v", name, err)
	}
	return room
}

func TestCreateRoomWithMembership_ForcesOwnerRoleRegardlessOfInput(tt *testing.T) {
	a := newTestAdapter()
	owner := mustCreateUser(tt, a, "owner")

	_, membership, err := CreateRoomWithMembership(context.Background(), a, &t.Room{Name: "r1", Type: t.RoomChannel, Privacy: t.PrivacyPublic, CreatedBy: owner.Id}, &t.Membership{UserId: owner.Id, Role: t.MemberRoleMember, Status: t.MembershipPending})
	if err != nil {
		tt.Fatalf("CreateRoomWithMembership: %v", err)
	}
	if membership.Role != t.MemberRoleOwner {
		tt.Errorf("Role = %v, want Owner regardless of caller input", membership.Role)
	}
	if membership.Status != t.MembershipActive {
		tt.Errorf("Status = %v, want Active", membership.Status)
	}
}

func TestCreateRoomWithMembership_RejectsDuplicateActiveName(tt *testing.T) {
	a := newTestAdapter()
	owner := mustCreateUser(tt, a, "owner")
	mustCreateRoom(tt, a, "taken", owner.Id)

	_, _, err := CreateRoomWithMembership(context.Background(), a, &t.Room{Name: "taken", Type: t.RoomChannel, Privacy: t.PrivacyPublic, CreatedBy: owner.Id}, &t.Membership{UserId: owner.Id})
	se, ok := t.AsStorageError(err)
	if !ok || se.Kind != t.ErrAlreadyExists {
		tt.Errorf("expected AlreadyExists, got %v", err)
	}
}

func TestCreateRoomWithMembership_RejectsUnknownCreator(tt *testing.T) {
	a := newTestAdapter()
	_, _, err := CreateRoomWithMembership(context.Background(), a, &t.Room{Name: "orphan", Type: t.RoomChannel, Privacy: t.PrivacyPublic}, &t.Membership{UserId: t.NewUserId()})
	if err == nil {
		tt.Fatal("expected an error for a creator that does not exist")
	}
}

func TestBatchRoomOperations_AddThenRemoveMember(tt *testing.T) {
	a := newTestAdapter()
	owner := mustCreateUser(tt, a, "owner")
	member := mustCreateUser(tt, a, "member")
	room := mustCreateRoom(tt, a, "batch-room", owner.Id)

	err := BatchRoomOperations(context.Background(), a, []adapter.RoomOp{
		{Kind: adapter.OpAddMember, RoomID: room.Id, UserID: member.Id, Role: t.MemberRoleMember},
	})
	if err != nil {
		tt.Fatalf("BatchRoomOperations(add): %v", err)
	}
	m, err := a.Memberships().Get(context.Background(), room.Id, member.Id)
	if err != nil || m == nil || m.Status != t.MembershipActive {
		tt.Fatalf("expected member to be active after OpAddMember: %+v, %v", m, err)
	}

	err = BatchRoomOperations(context.Background(), a, []adapter.RoomOp{
		{Kind: adapter.OpRemoveMember, RoomID: room.Id, UserID: member.Id},
	})
	if err != nil {
		tt.Fatalf("BatchRoomOperations(remove): %v", err)
	}
	m, err = a.Memberships().Get(context.Background(), room.Id, member.Id)
	if err != nil {
		tt.Fatalf("Memberships().Get: %v", err)
	}
	if m != nil {
		tt.Error("member should be gone after OpRemoveMember")
	}
}

func TestBatchRoomOperations_OwnerCannotLeaveWithOtherMembersPresent(tt *testing.T) {
	a := newTestAdapter()
	owner := mustCreateUser(tt, a, "owner")
	member := mustCreateUser(tt, a, "member")
	room := mustCreateRoom(tt, a, "owned-room", owner.Id)

	if err := BatchRoomOperations(context.Background(), a, []adapter.RoomOp{{Kind: adapter.OpAddMember, RoomID: room.Id, UserID: member.Id}}); err != nil {
		tt.Fatalf("add member: %v", err)
	}

	err := BatchRoomOperations(context.Background(), a, []adapter.RoomOp{{Kind: adapter.OpRemoveMember, RoomID: room.Id, UserID: owner.Id}})
	if err == nil {
		tt.Fatal("expected the owner's removal to be rejected while another member remains")
	}
}

func TestBatchRoomOperations_DeleteRoomCascades(tt *testing.T) {
	a := newTestAdapter()
	owner := mustCreateUser(tt, a, "owner")
	room := mustCreateRoom(tt, a, "to-delete", owner.Id)

	err := BatchRoomOperations(context.Background(), a, []adapter.RoomOp{{Kind: adapter.OpDeleteRoom, RoomID: room.Id}})
	if err != nil {
		tt.Fatalf("BatchRoomOperations(delete): %v", err)
	}

	got, err := a.Rooms().Get(context.Background(), room.Id)
	if err != nil {
		tt.Fatalf("Rooms().Get: %v", err)
	}
	if got != nil {
		tt.Error("room row should be gone after OpDeleteRoom")
	}
	m, err := a.Memberships().Get(context.Background(), room.Id, owner.Id)
	if err != nil {
		tt.Fatalf("Memberships().Get: %v", err)
	}
	if m != nil {
		tt.Error("memberships should cascade-delete with the room")
	}
}

func TestLeaveRoom_DeactivatesWhenLastMemberLeaves(tt *testing.T) {
	a := newTestAdapter()
	owner := mustCreateUser(tt, a, "solo")
	room := mustCreateRoom(tt, a, "solo-room", owner.Id)

	deactivated, err := LeaveRoom(context.Background(), a, room.Id, owner.Id)
	if err != nil {
		tt.Fatalf("LeaveRoom: %v", err)
	}
	if !deactivated {
		tt.Error("expected the room to be deactivated when its last member leaves")
	}

	got, err := a.Rooms().Get(context.Background(), room.Id)
	if err != nil {
		tt.Fatalf("Rooms().Get: %v", err)
	}
	if got.IsActive {
		tt.Error("room should be marked inactive")
	}
}

func TestLeaveRoom_KeepsRoomActiveWithRemainingMembers(tt *testing.T) {
	a := newTestAdapter()
	owner := mustCreateUser(tt, a, "owner")
	member := mustCreateUser(tt, a, "member")
	room := mustCreateRoom(tt, a, "shared-room", owner.Id)
	if err := BatchRoomOperations(context.Background(), a, []adapter.RoomOp{{Kind: adapter.OpAddMember, RoomID: room.Id, UserID: member.Id}}); err != nil {
		tt.Fatalf("add member: %v", err)
	}

	deactivated, err := LeaveRoom(context.Background(), a, room.Id, member.Id)
	if err != nil {
		tt.Fatalf("LeaveRoom: %v", err)
	}
	if deactivated {
		tt.Error("room should stay active while the owner remains")
	}
}

func TestUserDeletion_CascadesAndReportsCounts(tt *testing.T) {
	a := newTestAdapter()
	owner := mustCreateUser(tt, a, "owner")
	victim := mustCreateUser(tt, a, "victim")
	room := mustCreateRoom(tt, a, "cascade-room", owner.Id)
	if err := BatchRoomOperations(context.Background(), a, []adapter.RoomOp{{Kind: adapter.OpAddMember, RoomID: room.Id, UserID: victim.Id}}); err != nil {
		tt.Fatalf("add member: %v", err)
	}

	msg := &t.Message{Id: t.NewMessageId(), RoomId: &room.Id, Author: victim.Id, Content: "bye"}
	tx, err := a.Begin(context.Background())
	if err != nil {
		tt.Fatalf("Begin: %v", err)
	}
	if err := a.Messages().Create(context.Background(), tx, msg); err != nil {
		tt.Fatalf("Messages().Create: %v", err)
	}
	if err := a.Commit(context.Background(), tx); err != nil {
		tt.Fatalf("Commit: %v", err)
	}

	counts, err := UserDeletion(context.Background(), a, victim.Id)
	if err != nil {
		tt.Fatalf("UserDeletion: %v", err)
	}
	if counts.RemovedFromRooms != 1 {
		tt.Errorf("RemovedFromRooms = %d, want 1", counts.RemovedFromRooms)
	}
	if counts.DeletedMessages != 1 {
		tt.Errorf("DeletedMessages = %d, want 1", counts.DeletedMessages)
	}

	got, err := a.Rooms().Get(context.Background(), room.Id)
	if err != nil {
		tt.Fatalf("Rooms().Get: %v", err)
	}
	if !got.IsActive {
		tt.Error("deleting a member should not deactivate a room that still has the owner")
	}
}

func TestUserDeletion_RejectsUnknownUser(tt *testing.T) {
	a := newTestAdapter()
	if _, err := UserDeletion(context.Background(), a, t.NewUserId()); err == nil {
		tt.Fatal("expected UserDeletion to fail for a user that does not exist")
	}
}

func TestUpdateInvitationAndMembership_AcceptActivatesMembership(tt *testing.T) {
	a := newTestAdapter()
	owner := mustCreateUser(tt, a, "owner")
	recipient := mustCreateUser(tt, a, "recipient")
	room := mustCreateRoom(tt, a, "invite-room", owner.Id)

	inv, _, err := CreateInvitationWithMembership(context.Background(), a,
		&t.Invitation{RoomId: room.Id, SenderUserId: owner.Id, RecipientUserId: recipient.Id},
		&t.Membership{RoomId: room.Id, UserId: recipient.Id, Role: t.MemberRoleMember, Status: t.MembershipPending})
	if err != nil {
		tt.Fatalf("CreateInvitationWithMembership: %v", err)
	}

	_, membership, err := UpdateInvitationAndMembership(context.Background(), a, inv.Id, t.InvitationAccepted, &t.Membership{RoomId: room.Id, UserId: recipient.Id})
	if err != nil {
		tt.Fatalf("UpdateInvitationAndMembership: %v", err)
	}
	if membership.Status != t.MembershipActive {
		tt.Errorf("Status = %v, want Active", membership.Status)
	}
}

func TestUpdateInvitationAndMembership_RejectsDoubleAccept(tt *testing.T) {
	a := newTestAdapter()
	owner := mustCreateUser(tt, a, "owner")
	recipient := mustCreateUser(tt, a, "recipient")
	room := mustCreateRoom(tt, a, "invite-room-2", owner.Id)

	inv, _, err := CreateInvitationWithMembership(context.Background(), a,
		&t.Invitation{RoomId: room.Id, SenderUserId: owner.Id, RecipientUserId: recipient.Id},
		&t.Membership{RoomId: room.Id, UserId: recipient.Id, Role: t.MemberRoleMember, Status: t.MembershipPending})
	if err != nil {
		tt.Fatalf("CreateInvitationWithMembership: %v", err)
	}

	membershipArg := &t.Membership{RoomId: room.Id, UserId: recipient.Id}
	if _, _, err := UpdateInvitationAndMembership(context.Background(), a, inv.Id, t.InvitationAccepted, membershipArg); err != nil {
		tt.Fatalf("first accept: %v", err)
	}
	if _, _, err := UpdateInvitationAndMembership(context.Background(), a, inv.Id, t.InvitationAccepted, membershipArg); err == nil {
		tt.Fatal("expected the second accept to fail since the invitation is no longer pending")
	}
}

func TestCreateInvitationWithMembership_RejectsSenderWithoutPrivilege(tt *testing.T) {
	a := newTestAdapter()
	owner := mustCreateUser(tt, a, "owner")
	plainMember := mustCreateUser(tt, a, "plain")
	recipient := mustCreateUser(tt, a, "recipient")
	room := mustCreateRoom(tt, a, "invite-room-3", owner.Id)
	if err := BatchRoomOperations(context.Background(), a, []adapter.RoomOp{{Kind: adapter.OpAddMember, RoomID: room.Id, UserID: plainMember.Id, Role: t.MemberRoleMember}}); err != nil {
		tt.Fatalf("add member: %v", err)
	}

	_, _, err := CreateInvitationWithMembership(context.Background(), a,
		&t.Invitation{RoomId: room.Id, SenderUserId: plainMember.Id, RecipientUserId: recipient.Id},
		&t.Membership{RoomId: room.Id, UserId: recipient.Id, Role: t.MemberRoleMember, Status: t.MembershipPending})
	if err == nil {
		tt.Fatal("expected a plain member to be rejected as an invitation sender")
	}
}
