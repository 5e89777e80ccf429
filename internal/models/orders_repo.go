package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type OrdersRepo interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrderByID(ctx context.Context, id primitive.ObjectID) (*Order, error)
	GetOrderByReference(ctx context.Context, reference string) (*Order, error)
	GetOrderByTicketID(ctx context.Context, code string) (*Order, error)
	ListOrdersByUser(ctx context.Context, userID primitive.ObjectID, offset, limit int) ([]*Order, int64, error)
	ListStalePendingOrders(ctx context.Context, createdBefore time.Time, limit int) ([]*Order, error)
	CountCompletedOrdersByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error)

	// AttachPayment records the gateway an order was handed to while it is still pending.
	AttachPayment(ctx context.Context, id primitive.ObjectID, provider, providerRef string, now time.Time) (*Order, error)
	// SettleOrder moves a pending order to a final status. It returns nil when
	// the order was no longer pending.
	SettleOrder(ctx context.Context, id primitive.ObjectID, s Settlement, now time.Time) (*Order, error)
	// ClaimTicketRelease clears ReleasePending on a failed order. Only the
	// caller that gets true may put the tickets back.
	ClaimTicketRelease(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error)
	// RestoreTicketRelease sets ReleasePending again after a release failed.
	RestoreTicketRelease(ctx context.Context, id primitive.ObjectID, now time.Time) error
	ListPendingReleases(ctx context.Context, limit int) ([]*Order, error)
	// MarkTicketScanned flips a single unscanned ticket of a completed order.
	// It returns nil when no such ticket matched.
	MarkTicketScanned(ctx context.Context, code, scannedBy string, now time.Time) (*Order, error)
}

func (mdb *MongodbRepo) CreateOrder(ctx context.Context, order *Order) error {
	col, err := mdb.GetCollection(OrdersColName)
	if err != nil {
		return err
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := col.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("payment reference %s already used: %w", order.PaymentReference, ErrConflict)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) findOrder(ctx context.Context, filter bson.M) (*Order, error) {
	col, err := mdb.GetCollection(OrdersColName)
	if err != nil {
		return nil, err
	}
	var order Order
	if err := col.FindOne(ctx, filter).Decode(&order); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("error finding order: %w", err)
	}
	return &order, nil
}

func (mdb *MongodbRepo) GetOrderByID(ctx context.Context, id primitive.ObjectID) (*Order, error) {
	return mdb.findOrder(ctx, bson.M{"_id": id})
}

func (mdb *MongodbRepo) GetOrderByReference(ctx context.Context, reference string) (*Order, error) {
	return mdb.findOrder(ctx, bson.M{"paymentReference": reference})
}

func (mdb *MongodbRepo) GetOrderByTicketID(ctx context.Context, code string) (*Order, error) {
	order, err := mdb.findOrder(ctx, bson.M{"tickets.ticketId": code})
	if errors.Is(err, ErrOrderNotFound) {
		return nil, ErrTicketNotFound
	}
	return order, err
}

func (mdb *MongodbRepo) ListOrdersByUser(ctx context.Context, userID primitive.ObjectID, offset, limit int) ([]*Order, int64, error) {
	col, err := mdb.GetCollection(OrdersColName)
	if err != nil {
		return nil, 0, err
	}
	filter := bson.M{"userId": userID}
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting orders: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("error finding orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := make([]*Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, 0, fmt.Errorf("error decoding orders: %w", err)
	}
	return orders, total, nil
}

func (mdb *MongodbRepo) ListStalePendingOrders(ctx context.Context, createdBefore time.Time, limit int) ([]*Order, error) {
	col, err := mdb.GetCollection(OrdersColName)
	if err != nil {
		return nil, err
	}
	filter := bson.M{
		"status":    OrderStatusPending,
		"createdAt": bson.M{"$lt": createdBefore},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(int64(limit))
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding stale orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []*Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("error decoding stale orders: %w", err)
	}
	return orders, nil
}

func (mdb *MongodbRepo) CountCompletedOrdersByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	col, err := mdb.GetCollection(OrdersColName)
	if err != nil {
		return 0, err
	}
	n, err := col.CountDocuments(ctx, bson.M{"eventId": eventID, "status": OrderStatusCompleted})
	if err != nil {
		return 0, fmt.Errorf("error counting event orders: %w", err)
	}
	return n, nil
}

func (mdb *MongodbRepo) updatePendingOrder(ctx context.Context, id primitive.ObjectID, set bson.M) (*Order, error) {
	col, err := mdb.GetCollection(OrdersColName)
	if err != nil {
		return nil, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	filter := bson.M{"_id": id, "status": OrderStatusPending}

	var order Order
	if err := col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&order); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("error updating order: %w", err)
	}
	return &order, nil
}

func (mdb *MongodbRepo) AttachPayment(ctx context.Context, id primitive.ObjectID, provider, providerRef string, now time.Time) (*Order, error) {
	set := bson.M{"paymentProvider": provider, "updatedAt": now}
	if providerRef != "" {
		set["providerReference"] = providerRef
	}
	order, err := mdb.updatePendingOrder(ctx, id, set)
	if err != nil {
		return nil, err
	}
	if order == nil {
		if _, err := mdb.GetOrderByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrOrderNotPending
	}
	return order, nil
}

func (mdb *MongodbRepo) SettleOrder(ctx context.Context, id primitive.ObjectID, s Settlement, now time.Time) (*Order, error) {
	set := bson.M{
		"status":    s.Status,
		"updatedAt": now,
	}
	if s.PaymentStatus != "" {
		set["paymentStatus"] = s.PaymentStatus
	}
	if s.FailureReason != "" {
		set["failureReason"] = s.FailureReason
	}
	if s.PaidAt != nil {
		set["paidAt"] = *s.PaidAt
	}
	if s.Status == OrderStatusFailed {
		set["releasePending"] = true
	}
	return mdb.updatePendingOrder(ctx, id, set)
}

func (mdb *MongodbRepo) setReleasePending(ctx context.Context, id primitive.ObjectID, from, to bool, now time.Time) (bool, error) {
	col, err := mdb.GetCollection(OrdersColName)
	if err != nil {
		return false, err
	}
	filter := bson.M{"_id": id, "status": OrderStatusFailed, "releasePending": from}
	update := bson.M{"$set": bson.M{"releasePending": to, "updatedAt": now}}
	res, err := col.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("error updating ticket release: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (mdb *MongodbRepo) ClaimTicketRelease(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	return mdb.setReleasePending(ctx, id, true, false, now)
}

func (mdb *MongodbRepo) RestoreTicketRelease(ctx context.Context, id primitive.ObjectID, now time.Time) error {
	_, err := mdb.setReleasePending(ctx, id, false, true, now)
	return err
}

func (mdb *MongodbRepo) ListPendingReleases(ctx context.Context, limit int) ([]*Order, error) {
	col, err := mdb.GetCollection(OrdersColName)
	if err != nil {
		return nil, err
	}
	filter := bson.M{"status": OrderStatusFailed, "releasePending": true}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}}).SetLimit(int64(limit))
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding pending releases: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []*Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("error decoding pending releases: %w", err)
	}
	return orders, nil
}

func (mdb *MongodbRepo) MarkTicketScanned(ctx context.Context, code, scannedBy string, now time.Time) (*Order, error) {
	col, err := mdb.GetCollection(OrdersColName)
	if err != nil {
		return nil, err
	}
	filter := bson.M{
		"status": OrderStatusCompleted,
		"tickets": bson.M{"$elemMatch": bson.M{
			"ticketId":  code,
			"isScanned": false,
		}},
	}
	update := bson.M{"$set": bson.M{
		"tickets.$.isScanned": true,
		"tickets.$.scannedAt": now,
		"tickets.$.scannedBy": scannedBy,
		"updatedAt":           now,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order Order
	if err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&order); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("error marking ticket scanned: %w", err)
	}
	return &order, nil
}
