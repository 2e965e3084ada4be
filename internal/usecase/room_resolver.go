package usecase

import (
	"context"
	"log"

	"github.com/google/uuid"

	"dentalink/internal/domain/entity"
	"dentalink/internal/domain/repository"
	"dentalink/pkg/errors"
)

// ResolvedRoom is the outcome of room resolution: exactly one of Room and
// Provisional is set. Message subscription, typing and read state require a
// persisted room; callers must check IsProvisional before any of those.
type ResolvedRoom struct {
	Room        *entity.Room
	Provisional *entity.ProvisionalRoom
}

func (r ResolvedRoom) IsProvisional() bool {
	return r.Provisional != nil
}

type RoomResolver struct {
	chatRepo       repository.ChatRepository
	orderRepo      repository.OrderRepository
	connectionRepo repository.ConnectionRepository
	userRepo       repository.UserRepository
}

func NewRoomResolver(
	chatRepo repository.ChatRepository,
	orderRepo repository.OrderRepository,
	connectionRepo repository.ConnectionRepository,
	userRepo repository.UserRepository,
) *RoomResolver {
	return &RoomResolver{
		chatRepo:       chatRepo,
		orderRepo:      orderRepo,
		connectionRepo: connectionRepo,
		userRepo:       userRepo,
	}
}

// ResolveByOrder returns the room linked to the order, creating it on first
// resolution. The search must complete before the creation branch runs, so
// resolving the same order twice in sequence returns the same room. Under
// concurrent first resolutions from both parties a duplicate remains
// possible; the store offers no uniqueness constraint to lean on.
func (r *RoomResolver) ResolveByOrder(ctx context.Context, actor, orderID string) (*entity.Room, error) {
	existing, err := r.chatRepo.GetRoomByOrderID(ctx, orderID)
	if err == nil {
		if !existing.HasParticipant(actor) {
			log.Printf("ResolveByOrder Error: %s is not a participant of room %s", actor, existing.ID)
			return nil, errors.Forbidden("You are not a participant of this conversation", nil)
		}
		return existing, nil
	}
	if !errors.Is(err, "NOT_FOUND") {
		log.Printf("ResolveByOrder Error: Failed to search room for order %s: %v", orderID, err)
		return nil, err
	}

	order, err := r.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		log.Printf("ResolveByOrder Error: Order %s not found: %v", orderID, err)
		return nil, err
	}

	counterpart, counterpartName, ok := order.CounterpartOf(actor)
	if !ok {
		log.Printf("ResolveByOrder Error: %s is not a party of order %s", actor, orderID)
		return nil, errors.Forbidden("You are not a party of this order", nil)
	}

	actorName := order.ClinicName
	if actor == order.LabID {
		actorName = order.LabName
	}

	room := &entity.Room{
		Participants: []string{actor, counterpart},
		ParticipantNames: map[string]string{
			actor:       actorName,
			counterpart: counterpartName,
		},
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	}

	if err := r.chatRepo.CreateRoom(ctx, room); err != nil {
		log.Printf("ResolveByOrder Error: Failed to create room for order %s: %v", orderID, err)
		return nil, err
	}

	return room, nil
}

// ResolveByCounterpart returns the existing direct room for the pair, or a
// provisional placeholder that is not persisted until the first send.
func (r *RoomResolver) ResolveByCounterpart(ctx context.Context, actor, counterpart string) (ResolvedRoom, error) {
	if actor == counterpart {
		return ResolvedRoom{}, errors.BadRequest("You cannot start a conversation with yourself", nil)
	}

	existing, err := r.chatRepo.GetDirectRoom(ctx, actor, counterpart)
	if err == nil {
		return ResolvedRoom{Room: existing}, nil
	}
	if !errors.Is(err, "NOT_FOUND") {
		log.Printf("ResolveByCounterpart Error: Failed to search room for %s/%s: %v", actor, counterpart, err)
		return ResolvedRoom{}, err
	}

	actorName, err := r.userRepo.GetDisplayName(ctx, actor)
	if err != nil {
		log.Printf("ResolveByCounterpart Error: Failed to resolve own display name for %s: %v", actor, err)
		return ResolvedRoom{}, err
	}

	counterpartName, err := r.userRepo.GetDisplayName(ctx, counterpart)
	if err != nil {
		log.Printf("ResolveByCounterpart Error: Counterpart %s not found: %v", counterpart, err)
		return ResolvedRoom{}, err
	}

	provisional := &entity.ProvisionalRoom{
		PlaceholderID: "prov-" + uuid.New().String(),
		Participants:  []string{actor, counterpart},
		ParticipantNames: map[string]string{
			actor:       actorName,
			counterpart: counterpartName,
		},
	}

	return ResolvedRoom{Provisional: provisional}, nil
}

// Roster lists the counterparts the actor may start a conversation with.
func (r *RoomResolver) Roster(ctx context.Context, actor string) ([]*entity.Connection, error) {
	connections, err := r.connectionRepo.ListByOwner(ctx, actor)
	if err != nil {
		log.Printf("Roster Error: Failed to list connections for %s: %v", actor, err)
		return nil, err
	}

	return connections, nil
}
