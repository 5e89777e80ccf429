package models

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type EventsRepo interface {
	CreateEvent(ctx context.Context, event *Event) error
	GetEventByID(ctx context.Context, id primitive.ObjectID) (*Event, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]*Event, int64, error)
	UpdateEvent(ctx context.Context, id primitive.ObjectID, update EventUpdate, now time.Time) (*Event, error)
	SetEventStatus(ctx context.Context, id primitive.ObjectID, from []EventStatus, to EventStatus, now time.Time) (*Event, error)
	SetEventImages(ctx context.Context, id primitive.ObjectID, images []Image, now time.Time) error
	DeleteEvent(ctx context.Context, id primitive.ObjectID) error

	AddTicketType(ctx context.Context, eventID primitive.ObjectID, tt TicketType, now time.Time) (*Event, error)
	UpdateTicketType(ctx context.Context, eventID, ticketTypeID primitive.ObjectID, update TicketTypeUpdate, now time.Time) (*Event, error)
	RemoveTicketType(ctx context.Context, eventID, ticketTypeID primitive.ObjectID, now time.Time) (*Event, error)

	// ReserveTickets atomically adds every line to quantitySold, or nothing
	// when the event is not published or any line would push a ticket type
	// past its quantity. It reports whether the reservation was applied.
	ReserveTickets(ctx context.Context, eventID primitive.ObjectID, lines []ReservationLine) (bool, error)
	// ReleaseTickets subtracts every line from quantitySold in one update.
	ReleaseTickets(ctx context.Context, eventID primitive.ObjectID, lines []ReservationLine) error

	SetPromotion(ctx context.Context, id primitive.ObjectID, kind PromotionKind, start, end time.Time, now time.Time) (*Event, error)
	ListExpiredPromotions(ctx context.Context, kind PromotionKind, now time.Time) ([]*Event, error)
	// ExpirePromotion turns a promotion off and credits days to its running
	// total, provided its end date still equals end.
	ExpirePromotion(ctx context.Context, id primitive.ObjectID, kind PromotionKind, end time.Time, days int, now time.Time) (bool, error)
}

func (mdb *MongodbRepo) CreateEvent(ctx context.Context, event *Event) error {
	col, err := mdb.GetCollection(EventsColName)
	if err != nil {
		return err
	}
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if _, err := col.InsertOne(ctx, event); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) GetEventByID(ctx context.Context, id primitive.ObjectID) (*Event, error) {
	col, err := mdb.GetCollection(EventsColName)
	if err != nil {
		return nil, err
	}
	var event Event
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&event); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("error finding event: %w", err)
	}
	return &event, nil
}

func eventFilterQuery(f EventFilter) bson.M {
	q := bson.M{}
	if len(f.Statuses) > 0 {
		q["status"] = bson.M{"$in": f.Statuses}
	}
	if f.OrganizerID != nil {
		q["organizerId"] = *f.OrganizerID
	}
	if f.Category != "" {
		q["category"] = f.Category
	}
	if f.Search != "" {
		q["title"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
	}
	if f.UpcomingAt != nil {
		q["endDate"] = bson.M{"$gte": *f.UpcomingAt}
	}
	if f.FeaturedAt != nil {
		q["isFeatured"] = true
		q["featuredStartDate"] = bson.M{"$lte": *f.FeaturedAt}
		q["featuredEndDate"] = bson.M{"$gte": *f.FeaturedAt}
	}
	if f.BannerAt != nil {
		q["isBanner"] = true
		q["bannerStartDate"] = bson.M{"$lte": *f.BannerAt}
		q["bannerEndDate"] = bson.M{"$gte": *f.BannerAt}
	}
	return q
}

func (mdb *MongodbRepo) ListEvents(ctx context.Context, f EventFilter) ([]*Event, int64, error) {
	col, err := mdb.GetCollection(EventsColName)
	if err != nil {
		return nil, 0, err
	}
	q := eventFilterQuery(f)

	total, err := col.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting events: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "startDate", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(f.Offset)).
		SetLimit(int64(f.Limit))
	cursor, err := col.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("error finding events: %w", err)
	}
	defer cursor.Close(ctx)

	events := make([]*Event, 0)
	if err := cursor.All(ctx, &events); err != nil {
		return nil, 0, fmt.Errorf("error decoding events: %w", err)
	}
	return events, total, nil
}

func (mdb *MongodbRepo) findOneAndUpdateEvent(ctx context.Context, filter, update bson.M, opts ...*options.FindOneAndUpdateOptions) (*Event, error) {
	col, err := mdb.GetCollection(EventsColName)
	if err != nil {
		return nil, err
	}
	o := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var event Event
	err = col.FindOneAndUpdate(ctx, filter, update, append([]*options.FindOneAndUpdateOptions{o}, opts...)...).Decode(&event)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("error updating event: %w", err)
	}
	return &event, nil
}

func (mdb *MongodbRepo) UpdateEvent(ctx context.Context, id primitive.ObjectID, u EventUpdate, now time.Time) (*Event, error) {
	set := bson.M{"updatedAt": now}
	if u.Title != nil {
		set["title"] = *u.Title
	}
	if u.Description != nil {
		set["description"] = *u.Description
	}
	if u.Category != nil {
		set["category"] = *u.Category
	}
	if u.Venue != nil {
		set["venue"] = *u.Venue
	}
	if u.Location != nil {
		set["location"] = *u.Location
	}
	if u.StartDate != nil {
		set["startDate"] = *u.StartDate
	}
	if u.EndDate != nil {
		set["endDate"] = *u.EndDate
	}
	event, err := mdb.findOneAndUpdateEvent(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (mdb *MongodbRepo) SetEventStatus(ctx context.Context, id primitive.ObjectID, from []EventStatus, to EventStatus, now time.Time) (*Event, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	event, err := mdb.findOneAndUpdateEvent(ctx, filter, bson.M{"$set": bson.M{"status": to, "updatedAt": now}})
	if err != nil {
		return nil, err
	}
	if event == nil {
		if _, err := mdb.GetEventByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}
	return event, nil
}

func (mdb *MongodbRepo) SetEventImages(ctx context.Context, id primitive.ObjectID, images []Image, now time.Time) error {
	col, err := mdb.GetCollection(EventsColName)
	if err != nil {
		return err
	}
	res, err := col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"images": images, "updatedAt": now}})
	if err != nil {
		return fmt.Errorf("error updating event images: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (mdb *MongodbRepo) DeleteEvent(ctx context.Context, id primitive.ObjectID) error {
	col, err := mdb.GetCollection(EventsColName)
	if err != nil {
		return err
	}
	res, err := col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("error deleting event: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (mdb *MongodbRepo) AddTicketType(ctx context.Context, eventID primitive.ObjectID, tt TicketType, now time.Time) (*Event, error) {
	if tt.ID.IsZero() {
		tt.ID = primitive.NewObjectID()
	}
	tt.QuantitySold = 0
	event, err := mdb.findOneAndUpdateEvent(ctx, bson.M{"_id": eventID}, bson.M{
		"$push": bson.M{"ticketTypes": tt},
		"$set":  bson.M{"updatedAt": now},
	})
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (mdb *MongodbRepo) UpdateTicketType(ctx context.Context, eventID, ticketTypeID primitive.ObjectID, u TicketTypeUpdate, now time.Time) (*Event, error) {
	set := bson.M{"updatedAt": now}
	elem := bson.M{"_id": ticketTypeID}
	if u.Name != nil {
		set["ticketTypes.$[t].name"] = *u.Name
	}
	if u.Price != nil {
		set["ticketTypes.$[t].price"] = *u.Price
	}
	if u.Quantity != nil {
		set["ticketTypes.$[t].quantity"] = *u.Quantity
		elem["quantitySold"] = bson.M{"$lte": *u.Quantity}
	}
	filter := bson.M{"_id": eventID, "ticketTypes": bson.M{"$elemMatch": elem}}
	opts := options.FindOneAndUpdate().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{bson.M{"t._id": ticketTypeID}},
	})
	event, err := mdb.findOneAndUpdateEvent(ctx, filter, bson.M{"$set": set}, opts)
	if err != nil {
		return nil, err
	}
	if event != nil {
		return event, nil
	}

	current, err := mdb.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	tt, ok := current.FindTicketType(ticketTypeID)
	if !ok {
		return nil, ErrTicketTypeNotFound
	}
	return nil, ValidationError("quantity cannot be lower than the %d %q tickets already sold", tt.QuantitySold, tt.Name)
}

func (mdb *MongodbRepo) RemoveTicketType(ctx context.Context, eventID, ticketTypeID primitive.ObjectID, now time.Time) (*Event, error) {
	filter := bson.M{
		"_id":         eventID,
		"ticketTypes": bson.M{"$elemMatch": bson.M{"_id": ticketTypeID, "quantitySold": 0}},
	}
	event, err := mdb.findOneAndUpdateEvent(ctx, filter, bson.M{
		"$pull": bson.M{"ticketTypes": bson.M{"_id": ticketTypeID}},
		"$set":  bson.M{"updatedAt": now},
	})
	if err != nil {
		return nil, err
	}
	if event != nil {
		return event, nil
	}

	current, err := mdb.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if _, ok := current.FindTicketType(ticketTypeID); !ok {
		return nil, ErrTicketTypeNotFound
	}
	return nil, fmt.Errorf("ticket type already has sales: %w", ErrConflict)
}

// reservationQuery builds the filter and update for a reservation. Only a
// published event matches. Every line gets its own array filter identifier so
// all increments land in one single-document update.
func reservationQuery(eventID primitive.ObjectID, lines []ReservationLine) (bson.M, bson.M, []interface{}) {
	conds := make(bson.A, 0, len(lines))
	inc := bson.M{}
	arrayFilters := make([]interface{}, 0, len(lines))

	for i, line := range lines {
		ident := fmt.Sprintf("t%d", i)
		conds = append(conds, bson.M{"$anyElementTrue": bson.A{bson.M{"$map": bson.M{
			"input": "$ticketTypes",
			"as":    "tt",
			"in": bson.M{"$and": bson.A{
				bson.M{"$eq": bson.A{"$$tt._id", line.TicketTypeID}},
				bson.M{"$lte": bson.A{bson.M{"$add": bson.A{"$$tt.quantitySold", line.Quantity}}, "$$tt.quantity"}},
			}},
		}}}})
		inc["ticketTypes.$["+ident+"].quantitySold"] = line.Quantity
		arrayFilters = append(arrayFilters, bson.M{ident + "._id": line.TicketTypeID})
	}

	filter := bson.M{
		"_id":    eventID,
		"status": EventStatusPublished,
		"$expr":  bson.M{"$and": conds},
	}
	return filter, bson.M{"$inc": inc}, arrayFilters
}

func (mdb *MongodbRepo) ReserveTickets(ctx context.Context, eventID primitive.ObjectID, lines []ReservationLine) (bool, error) {
	if len(lines) == 0 {
		return false, ValidationError("no tickets requested")
	}
	col, err := mdb.GetCollection(EventsColName)
	if err != nil {
		return false, err
	}
	filter, update, arrayFilters := reservationQuery(eventID, lines)
	opts := options.Update().SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})

	res, err := col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return false, fmt.Errorf("error reserving tickets: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// releaseQuery mirrors reservationQuery for giving tickets back. Every line
// must still have enough sold to return, so a release applies in full or not
// at all.
func releaseQuery(eventID primitive.ObjectID, lines []ReservationLine) (bson.M, bson.M, []interface{}) {
	conds := make(bson.A, 0, len(lines))
	inc := bson.M{}
	arrayFilters := make([]interface{}, 0, len(lines))

	for i, line := range lines {
		ident := fmt.Sprintf("t%d", i)
		conds = append(conds, bson.M{"$anyElementTrue": bson.A{bson.M{"$map": bson.M{
			"input": "$ticketTypes",
			"as":    "tt",
			"in": bson.M{"$and": bson.A{
				bson.M{"$eq": bson.A{"$$tt._id", line.TicketTypeID}},
				bson.M{"$gte": bson.A{"$$tt.quantitySold", line.Quantity}},
			}},
		}}}})
		inc["ticketTypes.$["+ident+"].quantitySold"] = -line.Quantity
		arrayFilters = append(arrayFilters, bson.M{ident + "._id": line.TicketTypeID})
	}

	filter := bson.M{
		"_id":   eventID,
		"$expr": bson.M{"$and": conds},
	}
	return filter, bson.M{"$inc": inc}, arrayFilters
}

func (mdb *MongodbRepo) ReleaseTickets(ctx context.Context, eventID primitive.ObjectID, lines []ReservationLine) error {
	if len(lines) == 0 {
		return nil
	}
	col, err := mdb.GetCollection(EventsColName)
	if err != nil {
		return err
	}
	filter, update, arrayFilters := releaseQuery(eventID, lines)
	opts := options.Update().SetArrayFilters(options.ArrayFilters{Filters: arrayFilters})

	res, err := col.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("error releasing tickets: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("release of %d lines for event %s did not match: %w",
			len(lines), eventID.Hex(), ErrConflict)
	}
	return nil
}

func (mdb *MongodbRepo) SetPromotion(ctx context.Context, id primitive.ObjectID, kind PromotionKind, start, end time.Time, now time.Time) (*Event, error) {
	update := bson.M{"$set": bson.M{
		kind.flagField():  true,
		kind.startField(): start,
		kind.endField():   end,
		"updatedAt":       now,
	}}
	event, err := mdb.findOneAndUpdateEvent(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (mdb *MongodbRepo) ListExpiredPromotions(ctx context.Context, kind PromotionKind, now time.Time) ([]*Event, error) {
	col, err := mdb.GetCollection(EventsColName)
	if err != nil {
		return nil, err
	}
	filter := bson.M{
		kind.flagField(): true,
		kind.endField():  bson.M{"$lt": now},
	}
	cursor, err := col.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error finding expired promotions: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("error decoding expired promotions: %w", err)
	}
	return events, nil
}

func (mdb *MongodbRepo) ExpirePromotion(ctx context.Context, id primitive.ObjectID, kind PromotionKind, end time.Time, days int, now time.Time) (bool, error) {
	col, err := mdb.GetCollection(EventsColName)
	if err != nil {
		return false, err
	}
	filter := bson.M{
		"_id":            id,
		kind.flagField(): true,
		kind.endField():  end,
	}
	update := bson.M{
		"$set": bson.M{kind.flagField(): false, "updatedAt": now},
		"$inc": bson.M{kind.totalField(): days},
	}
	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("error expiring promotion: %w", err)
	}
	return res.ModifiedCount == 1, nil
}
