package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dentalink/internal/domain/entity"
	"dentalink/pkg/errors"
)

func newTestResolver() (*RoomResolver, *fakeChatRepo, *fakeOrderRepo, *fakeConnectionRepo, *fakeUserRepo) {
	chatRepo := newFakeChatRepo()
	orderRepo := &fakeOrderRepo{orders: map[string]*entity.Order{
		"order-1": {
			ID:          "order-1",
			OrderNumber: "LAB-2024-001",
			ClinicID:    "clinic-1",
			ClinicName:  "Smile Dental",
			LabID:       "lab-1",
			LabName:     "Precision Lab",
		},
	}}
	connectionRepo := &fakeConnectionRepo{}
	userRepo := newFakeUserRepo()
	userRepo.names["clinic-1"] = "Smile Dental"
	userRepo.names["lab-1"] = "Precision Lab"

	resolver := NewRoomResolver(chatRepo, orderRepo, connectionRepo, userRepo)
	return resolver, chatRepo, orderRepo, connectionRepo, userRepo
}

func TestResolveByOrderCreatesRoomOnce(t *testing.T) {
	resolver, _, _, _, _ := newTestResolver()
	ctx := context.Background()

	room, err := resolver.ResolveByOrder(ctx, "clinic-1", "order-1")
	require.NoError(t, err)
	require.NotEmpty(t, room.ID)

	assert.Equal(t, "order-1", room.OrderID)
	assert.Equal(t, "LAB-2024-001", room.OrderNumber)
	assert.True(t, room.HasParticipant("clinic-1"))
	assert.True(t, room.HasParticipant("lab-1"))
	assert.Equal(t, "Smile Dental", room.ParticipantNames["clinic-1"])
	assert.Equal(t, "Precision Lab", room.ParticipantNames["lab-1"])

	// The other party resolving the same order lands in the same room.
	again, err := resolver.ResolveByOrder(ctx, "lab-1", "order-1")
	require.NoError(t, err)
	assert.Equal(t, room.ID, again.ID)
}

func TestResolveByOrderRejectsNonParty(t *testing.T) {
	resolver, _, _, _, _ := newTestResolver()
	ctx := context.Background()

	_, err := resolver.ResolveByOrder(ctx, "clinic-other", "order-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	// The same applies once the room exists.
	_, err = resolver.ResolveByOrder(ctx, "clinic-1", "order-1")
	require.NoError(t, err)
	_, err = resolver.ResolveByOrder(ctx, "clinic-other", "order-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestResolveByOrderUnknownOrder(t *testing.T) {
	resolver, _, _, _, _ := newTestResolver()

	_, err := resolver.ResolveByOrder(context.Background(), "clinic-1", "order-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "NOT_FOUND"))
}

func TestResolveByCounterpartReturnsProvisionalWithoutHistory(t *testing.T) {
	resolver, chatRepo, _, _, _ := newTestResolver()
	ctx := context.Background()

	resolved, err := resolver.ResolveByCounterpart(ctx, "clinic-1", "lab-1")
	require.NoError(t, err)
	require.True(t, resolved.IsProvisional())

	provisional := resolved.Provisional
	assert.True(t, strings.HasPrefix(provisional.PlaceholderID, "prov-"))
	assert.ElementsMatch(t, []string{"clinic-1", "lab-1"}, provisional.Participants)
	assert.Equal(t, "Smile Dental", provisional.ParticipantNames["clinic-1"])
	assert.Equal(t, "Precision Lab", provisional.ParticipantNames["lab-1"])

	// Nothing was persisted.
	rooms, total, err := chatRepo.ListRoomsByParticipant(ctx, "clinic-1", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, rooms)
	assert.Zero(t, total)
}

func TestResolveByCounterpartReturnsExistingRoom(t *testing.T) {
	resolver, chatRepo, _, _, _ := newTestResolver()
	ctx := context.Background()

	existing := &entity.Room{
		Participants:     []string{"clinic-1", "lab-1"},
		ParticipantNames: map[string]string{"clinic-1": "Smile Dental", "lab-1": "Precision Lab"},
	}
	require.NoError(t, chatRepo.CreateRoom(ctx, existing))

	resolved, err := resolver.ResolveByCounterpart(ctx, "clinic-1", "lab-1")
	require.NoError(t, err)
	require.False(t, resolved.IsProvisional())
	assert.Equal(t, existing.ID, resolved.Room.ID)
}

func TestResolveByCounterpartIgnoresOrderRooms(t *testing.T) {
	resolver, chatRepo, _, _, _ := newTestResolver()
	ctx := context.Background()

	// An order-linked room between the pair does not satisfy a direct chat.
	orderRoom := &entity.Room{
		Participants: []string{"clinic-1", "lab-1"},
		OrderID:      "order-1",
	}
	require.NoError(t, chatRepo.CreateRoom(ctx, orderRoom))

	resolved, err := resolver.ResolveByCounterpart(ctx, "clinic-1", "lab-1")
	require.NoError(t, err)
	assert.True(t, resolved.IsProvisional())
}

func TestResolveByCounterpartRejectsSelf(t *testing.T) {
	resolver, _, _, _, _ := newTestResolver()

	_, err := resolver.ResolveByCounterpart(context.Background(), "clinic-1", "clinic-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestRosterListsOwnConnectionsOnly(t *testing.T) {
	resolver, _, _, connectionRepo, _ := newTestResolver()

	connectionRepo.connections = []*entity.Connection{
		{ID: "c1", OwnerID: "clinic-1", CounterpartID: "lab-1", DisplayName: "Precision Lab"},
		{ID: "c2", OwnerID: "clinic-1", CounterpartID: "lab-2", DisplayName: "Crown Works"},
		{ID: "c3", OwnerID: "clinic-2", CounterpartID: "lab-1", DisplayName: "Precision Lab"},
	}

	roster, err := resolver.Roster(context.Background(), "clinic-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "lab-1", roster[0].CounterpartID)
	assert.Equal(t, "lab-2", roster[1].CounterpartID)
}
