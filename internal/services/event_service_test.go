package services

import (
	"context"
	"testing"
	"time"

	"github.com/joshua-takyi/eventix/internal/clock"
	"github.com/joshua-takyi/eventix/internal/helpers"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newEventService(t *testing.T) (*EventService, *fakeRepo, *fakeStore, *clock.Fixed) {
	t.Helper()
	repo := newFakeRepo()
	store := &fakeStore{}
	clk := clock.NewFixed(checkoutNow)
	return NewEventService(repo, repo, store, clk, testLogger), repo, store, clk
}

func sampleEventInput() CreateEventInput {
	return CreateEventInput{
		Title:     "Highlife Revival",
		Category:  " Music ",
		Venue:     "Alliance Francaise",
		StartDate: checkoutNow.Add(72 * time.Hour),
		EndDate:   checkoutNow.Add(76 * time.Hour),
		Images:    []string{"https://img.example.com/a.jpg", "https://img.example.com/b.jpg"},
		TicketTypes: []TicketTypeInput{
			{Name: "Regular", Price: 80, Quantity: 200},
			{Name: "Table for 4", Price: 600, Quantity: 10},
		},
	}
}

func organizerClaims(id primitive.ObjectID) *helpers.EnhancedClaims {
	return &helpers.EnhancedClaims{UserID: id.Hex(), Role: models.RoleOrganizer}
}

func TestPagination(t *testing.T) {
	tests := []struct {
		page, limit                      int
		wantPage, wantLimit, wantOffset int
	}{
		{0, 0, 1, DefaultPageSize, 0},
		{3, 10, 3, 10, 20},
		{2, 500, 2, MaxPageSize, MaxPageSize},
		{-4, -1, 1, DefaultPageSize, 0},
	}
	for _, tt := range tests {
		page, limit, offset := Pagination(tt.page, tt.limit)
		assert.Equal(t, []int{tt.wantPage, tt.wantLimit, tt.wantOffset}, []int{page, limit, offset})
	}
}

func TestCreateEvent(t *testing.T) {
	svc, _, store, _ := newEventService(t)
	organizer := primitive.NewObjectID()

	event, err := svc.CreateEvent(context.Background(), organizer.Hex(), sampleEventInput())
	require.NoError(t, err)

	assert.Equal(t, models.EventStatusDraft, event.Status)
	assert.Equal(t, "music", event.Category)
	assert.Equal(t, organizer, event.OrganizerID)
	require.Len(t, event.TicketTypes, 2)
	for _, tt := range event.TicketTypes {
		assert.False(t, tt.ID.IsZero())
		assert.Zero(t, tt.QuantitySold)
	}
	assert.Len(t, event.Images, 2)
	assert.Len(t, store.uploaded, 2)
}

func TestCreateEventValidation(t *testing.T) {
	svc, _, store, _ := newEventService(t)
	organizer := primitive.NewObjectID().Hex()

	in := sampleEventInput()
	in.EndDate = in.StartDate.Add(-time.Hour)
	_, err := svc.CreateEvent(context.Background(), organizer, in)
	assert.ErrorIs(t, err, models.ErrValidation)

	in = sampleEventInput()
	in.TicketTypes = append(in.TicketTypes, TicketTypeInput{Name: "regular", Price: 10, Quantity: 1})
	_, err = svc.CreateEvent(context.Background(), organizer, in)
	assert.ErrorIs(t, err, models.ErrValidation)

	in = sampleEventInput()
	store.failOn = in.Images[1]
	_, err = svc.CreateEvent(context.Background(), organizer, in)
	assert.Error(t, err)
	assert.Equal(t, []string{"pid-" + in.Images[0]}, store.deleted, "uploaded images are rolled back")
}

func TestGetEventHidesUnpublished(t *testing.T) {
	svc, _, _, _ := newEventService(t)
	ctx := context.Background()
	organizer := primitive.NewObjectID()
	event, err := svc.CreateEvent(ctx, organizer.Hex(), sampleEventInput())
	require.NoError(t, err)

	_, err = svc.GetEvent(ctx, event.ID.Hex(), nil)
	assert.ErrorIs(t, err, models.ErrEventNotFound)

	got, err := svc.GetEvent(ctx, event.ID.Hex(), organizerClaims(organizer))
	require.NoError(t, err)
	assert.Equal(t, event.ID, got.ID)

	_, err = svc.ChangeStatus(ctx, event.ID.Hex(), organizerClaims(organizer), models.EventStatusPublished)
	require.NoError(t, err)
	_, err = svc.GetEvent(ctx, event.ID.Hex(), nil)
	assert.NoError(t, err)
}

func TestListEventsUsesEffectivePromotion(t *testing.T) {
	svc, repo, _, clk := newEventService(t)
	ctx := context.Background()
	organizer := primitive.NewObjectID()

	var ids []primitive.ObjectID
	for _, title := range []string{"Featured Now", "Featured Later", "Plain"} {
		in := sampleEventInput()
		in.Title = title
		e, err := svc.CreateEvent(ctx, organizer.Hex(), in)
		require.NoError(t, err)
		_, err = svc.ChangeStatus(ctx, e.ID.Hex(), organizerClaims(organizer), models.EventStatusPublished)
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}
	now := clk.Now()
	_, err := repo.SetPromotion(ctx, ids[0], models.PromotionFeatured, now.Add(-time.Hour), now.Add(time.Hour), now)
	require.NoError(t, err)
	_, err = repo.SetPromotion(ctx, ids[1], models.PromotionFeatured, now.Add(time.Hour), now.Add(48*time.Hour), now)
	require.NoError(t, err)

	all, total, err := svc.ListEvents(ctx, ListEventsQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, all, 3)

	featured, _, err := svc.ListEvents(ctx, ListEventsQuery{Featured: true})
	require.NoError(t, err)
	require.Len(t, featured, 1)
	assert.Equal(t, "Featured Now", featured[0].Title)

	// the flag is still set after the window closes, but listings stop showing it
	clk.Advance(2 * time.Hour)
	featured, _, err = svc.ListEvents(ctx, ListEventsQuery{Featured: true})
	require.NoError(t, err)
	require.Len(t, featured, 1)
	assert.Equal(t, "Featured Later", featured[0].Title)
}

func TestUpdateEvent(t *testing.T) {
	svc, repo, _, _ := newEventService(t)
	ctx := context.Background()
	organizer := primitive.NewObjectID()
	event, err := svc.CreateEvent(ctx, organizer.Hex(), sampleEventInput())
	require.NoError(t, err)
	owner := organizerClaims(organizer)

	title := "Highlife Revival II"
	updated, err := svc.UpdateEvent(ctx, event.ID.Hex(), owner, UpdateEventInput{
		EventUpdate:    models.EventUpdate{Title: &title},
		AddTicketTypes: []TicketTypeInput{{Name: "Early Bird", Price: 50, Quantity: 20}},
	})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Len(t, updated.TicketTypes, 3)

	// quantity cannot drop below what is already sold
	regular := updated.TicketTypes[0]
	_, err = svc.ChangeStatus(ctx, event.ID.Hex(), owner, models.EventStatusPublished)
	require.NoError(t, err)
	ok, err := repo.ReserveTickets(ctx, event.ID, []models.ReservationLine{{TicketTypeID: regular.ID, Quantity: 5}})
	require.NoError(t, err)
	require.True(t, ok)

	qty := 4
	_, err = svc.UpdateEvent(ctx, event.ID.Hex(), owner, UpdateEventInput{
		UpdateTicketTypes: map[string]models.TicketTypeUpdate{regular.ID.Hex(): {Quantity: &qty}},
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.UpdateEvent(ctx, event.ID.Hex(), owner, UpdateEventInput{RemoveTicketTypes: []string{regular.ID.Hex()}})
	assert.ErrorIs(t, err, models.ErrConflict)

	stranger := organizerClaims(primitive.NewObjectID())
	_, err = svc.UpdateEvent(ctx, event.ID.Hex(), stranger, UpdateEventInput{EventUpdate: models.EventUpdate{Title: &title}})
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = svc.UpdateEvent(ctx, event.ID.Hex(), owner, UpdateEventInput{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestChangeStatus(t *testing.T) {
	svc, _, _, clk := newEventService(t)
	ctx := context.Background()
	organizer := primitive.NewObjectID()
	owner := organizerClaims(organizer)
	event, err := svc.CreateEvent(ctx, organizer.Hex(), sampleEventInput())
	require.NoError(t, err)

	_, err = svc.ChangeStatus(ctx, event.ID.Hex(), owner, models.EventStatusCompleted)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	clk.Advance(30 * 24 * time.Hour)
	_, err = svc.ChangeStatus(ctx, event.ID.Hex(), owner, models.EventStatusPublished)
	assert.ErrorIs(t, err, models.ErrValidation, "ended events cannot be published")

	cancelled, err := svc.ChangeStatus(ctx, event.ID.Hex(), owner, models.EventStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, models.EventStatusCancelled, cancelled.Status)

	_, err = svc.ChangeStatus(ctx, event.ID.Hex(), owner, models.EventStatusPublished)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestDeleteEvent(t *testing.T) {
	svc, repo, store, _ := newEventService(t)
	ctx := context.Background()
	organizer := primitive.NewObjectID()
	owner := organizerClaims(organizer)

	sold, err := svc.CreateEvent(ctx, organizer.Hex(), sampleEventInput())
	require.NoError(t, err)
	require.NoError(t, repo.CreateOrder(ctx, &models.Order{EventID: sold.ID, Status: models.OrderStatusCompleted}))
	assert.ErrorIs(t, svc.DeleteEvent(ctx, sold.ID.Hex(), owner), models.ErrEventHasSales)

	unsold, err := svc.CreateEvent(ctx, organizer.Hex(), sampleEventInput())
	require.NoError(t, err)
	require.NoError(t, svc.DeleteEvent(ctx, unsold.ID.Hex(), owner))
	_, err = repo.GetEventByID(ctx, unsold.ID)
	assert.ErrorIs(t, err, models.ErrEventNotFound)
	assert.Len(t, store.deleted, 2)
}
