package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joshua-takyi/eventix/internal/clock"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/media"
	"github.com/joshua-takyi/eventix/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type EventService struct {
	events models.EventsRepo
	orders models.OrdersRepo
	media  media.Store
	clock  clock.Clock
	logger *slog.Logger
}

func NewEventService(events models.EventsRepo, orders models.OrdersRepo, store media.Store, clk clock.Clock, logger *slog.Logger) *EventService {
	return &EventService{events: events, orders: orders, media: store, clock: clk, logger: logger}
}

type TicketTypeInput struct {
	Name     string  `json:"name" binding:"required,max=80"`
	Price    float64 `json:"price" binding:"gte=0"`
	Quantity int     `json:"quantity" binding:"required,gte=1"`
}

type CreateEventInput struct {
	Title       string            `json:"title" binding:"required,min=3,max=160"`
	Description string            `json:"description" binding:"max=10000"`
	Category    string            `json:"category"`
	Venue       string            `json:"venue"`
	Location    string            `json:"location"`
	StartDate   time.Time         `json:"startDate" binding:"required"`
	EndDate     time.Time         `json:"endDate" binding:"required"`
	Images      []string          `json:"images" binding:"max=10"`
	TicketTypes []TicketTypeInput `json:"ticketTypes" binding:"required,min=1,dive"`
}

type UpdateEventInput struct {
	models.EventUpdate
	AddTicketTypes    []TicketTypeInput                  `json:"addTicketTypes" binding:"dive"`
	UpdateTicketTypes map[string]models.TicketTypeUpdate `json:"updateTicketTypes"`
	RemoveTicketTypes []string                           `json:"removeTicketTypes"`
}

type ListEventsQuery struct {
	Category string
	Search   string
	Featured bool
	Banner   bool
	Page     int
	Limit    int
}

// Pagination clamps page and limit and returns the offset they describe.
func Pagination(page, limit int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit, (page - 1) * limit
}

func checkTicketTypeNames(existing []models.TicketType, added []TicketTypeInput) error {
	seen := make(map[string]bool, len(existing)+len(added))
	for _, tt := range existing {
		seen[strings.ToLower(tt.Name)] = true
	}
	for _, tt := range added {
		key := strings.ToLower(strings.TrimSpace(tt.Name))
		if key == "" {
			return models.ValidationError("ticket type name is required")
		}
		if seen[key] {
			return models.ValidationError("duplicate ticket type %q", tt.Name)
		}
		seen[key] = true
	}
	return nil
}

func (es *EventService) CreateEvent(ctx context.Context, organizerID string, in CreateEventInput) (*models.Event, error) {
	oid, err := models.ParseObjectID(organizerID)
	if err != nil {
		return nil, err
	}
	if !in.EndDate.After(in.StartDate) {
		return nil, models.ValidationError("endDate must be after startDate")
	}
	if err := checkTicketTypeNames(nil, in.TicketTypes); err != nil {
		return nil, err
	}

	now := es.clock.Now()
	event := &models.Event{
		OrganizerID: oid,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Category:    strings.ToLower(strings.TrimSpace(in.Category)),
		Venue:       in.Venue,
		Location:    in.Location,
		StartDate:   in.StartDate.UTC(),
		EndDate:     in.EndDate.UTC(),
		Status:      models.EventStatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, tt := range in.TicketTypes {
		event.TicketTypes = append(event.TicketTypes, models.TicketType{
			ID:       primitive.NewObjectID(),
			Name:     strings.TrimSpace(tt.Name),
			Price:    tt.Price,
			Quantity: tt.Quantity,
		})
	}
	if err := models.Validate.Struct(event); err != nil {
		return nil, err
	}

	images, err := media.UploadAll(ctx, es.media, in.Images, es.logger)
	if err != nil {
		return nil, err
	}
	event.Images = images

	if err := es.events.CreateEvent(ctx, event); err != nil {
		media.DeleteAll(ctx, es.media, images, es.logger)
		return nil, err
	}
	es.logger.Info("Event created", "event_id", event.ID.Hex(), "organizer_id", organizerID)
	return event, nil
}

func canManage(event *models.Event, actor *helpers.EnhancedClaims) bool {
	return actor != nil && (actor.IsAdmin() || actor.IsOwner(event.OrganizerID.Hex()))
}

func (es *EventService) load(ctx context.Context, id string) (*models.Event, error) {
	oid, err := models.ParseObjectID(id)
	if err != nil {
		return nil, err
	}
	return es.events.GetEventByID(ctx, oid)
}

func (es *EventService) loadManaged(ctx context.Context, id string, actor *helpers.EnhancedClaims) (*models.Event, error) {
	event, err := es.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canManage(event, actor) {
		return nil, fmt.Errorf("only the organizer can manage this event: %w", models.ErrForbidden)
	}
	return event, nil
}

// GetEvent returns published events to anyone. Other events are only
// visible to their organizer and admins.
func (es *EventService) GetEvent(ctx context.Context, id string, viewer *helpers.EnhancedClaims) (*models.Event, error) {
	event, err := es.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if event.Status != models.EventStatusPublished && !canManage(event, viewer) {
		return nil, models.ErrEventNotFound
	}
	return event, nil
}

func (es *EventService) ListEvents(ctx context.Context, q ListEventsQuery) ([]*models.Event, int64, error) {
	_, limit, offset := Pagination(q.Page, q.Limit)
	now := es.clock.Now()
	filter := models.EventFilter{
		Statuses:   []models.EventStatus{models.EventStatusPublished},
		Category:   strings.ToLower(strings.TrimSpace(q.Category)),
		Search:     strings.TrimSpace(q.Search),
		UpcomingAt: &now,
		Offset:     offset,
		Limit:      limit,
	}
	if q.Featured {
		filter.FeaturedAt = &now
	}
	if q.Banner {
		filter.BannerAt = &now
	}
	return es.events.ListEvents(ctx, filter)
}

func (es *EventService) ListOrganizerEvents(ctx context.Context, organizerID string, page, limit int) ([]*models.Event, int64, error) {
	oid, err := models.ParseObjectID(organizerID)
	if err != nil {
		return nil, 0, err
	}
	_, limit, offset := Pagination(page, limit)
	return es.events.ListEvents(ctx, models.EventFilter{OrganizerID: &oid, Offset: offset, Limit: limit})
}

func (es *EventService) UpdateEvent(ctx context.Context, id string, actor *helpers.EnhancedClaims, in UpdateEventInput) (*models.Event, error) {
	event, err := es.loadManaged(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if event.Status == models.EventStatusCancelled || event.Status == models.EventStatusCompleted {
		return nil, fmt.Errorf("%s events cannot be edited: %w", event.Status, models.ErrConflict)
	}
	if in.EventUpdate.Empty() && len(in.AddTicketTypes) == 0 && len(in.UpdateTicketTypes) == 0 && len(in.RemoveTicketTypes) == 0 {
		return nil, models.ValidationError("no fields to update")
	}
	if err := models.Validate.Struct(in.EventUpdate); err != nil {
		return nil, err
	}

	start, end := event.StartDate, event.EndDate
	if in.StartDate != nil {
		start = *in.StartDate
	}
	if in.EndDate != nil {
		end = *in.EndDate
	}
	if !end.After(start) {
		return nil, models.ValidationError("endDate must be after startDate")
	}
	if err := checkTicketTypeNames(event.TicketTypes, in.AddTicketTypes); err != nil {
		return nil, err
	}

	now := es.clock.Now()
	if !in.EventUpdate.Empty() {
		if in.Category != nil {
			c := strings.ToLower(strings.TrimSpace(*in.Category))
			in.Category = &c
		}
		if event, err = es.events.UpdateEvent(ctx, event.ID, in.EventUpdate, now); err != nil {
			return nil, err
		}
	}

	for rawID, upd := range in.UpdateTicketTypes {
		ttID, err := models.ParseObjectID(rawID)
		if err != nil {
			return nil, err
		}
		if err := models.Validate.Struct(upd); err != nil {
			return nil, err
		}
		if event, err = es.events.UpdateTicketType(ctx, event.ID, ttID, upd, now); err != nil {
			return nil, err
		}
	}

	for _, rawID := range in.RemoveTicketTypes {
		ttID, err := models.ParseObjectID(rawID)
		if err != nil {
			return nil, err
		}
		if len(event.TicketTypes) <= 1 {
			return nil, models.ValidationError("an event needs at least one ticket type")
		}
		if event, err = es.events.RemoveTicketType(ctx, event.ID, ttID, now); err != nil {
			return nil, err
		}
	}

	for _, tt := range in.AddTicketTypes {
		event, err = es.events.AddTicketType(ctx, event.ID, models.TicketType{
			Name:     strings.TrimSpace(tt.Name),
			Price:    tt.Price,
			Quantity: tt.Quantity,
		}, now)
		if err != nil {
			return nil, err
		}
	}
	return event, nil
}

func (es *EventService) ChangeStatus(ctx context.Context, id string, actor *helpers.EnhancedClaims, to models.EventStatus) (*models.Event, error) {
	event, err := es.loadManaged(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(event.Status, to) {
		return nil, fmt.Errorf("cannot move event from %s to %s: %w", event.Status, to, models.ErrInvalidTransition)
	}
	now := es.clock.Now()
	if to == models.EventStatusPublished {
		if len(event.TicketTypes) == 0 {
			return nil, models.ValidationError("an event needs at least one ticket type to be published")
		}
		if !event.EndDate.After(now) {
			return nil, models.ValidationError("an event that already ended cannot be published")
		}
	}

	updated, err := es.events.SetEventStatus(ctx, event.ID, models.AllowedSources(to), to, now)
	if err != nil {
		return nil, err
	}
	es.logger.Info("Event status changed", "event_id", id, "from", event.Status, "to", to)
	return updated, nil
}

func (es *EventService) DeleteEvent(ctx context.Context, id string, actor *helpers.EnhancedClaims) error {
	event, err := es.loadManaged(ctx, id, actor)
	if err != nil {
		return err
	}
	sold, err := es.orders.CountCompletedOrdersByEvent(ctx, event.ID)
	if err != nil {
		return err
	}
	if sold > 0 {
		return models.ErrEventHasSales
	}
	if err := es.events.DeleteEvent(ctx, event.ID); err != nil {
		return err
	}
	media.DeleteAll(ctx, es.media, event.Images, es.logger)
	es.logger.Info("Event deleted", "event_id", id)
	return nil
}
