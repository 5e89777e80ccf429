package models

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type EventStats struct {
	EventID     primitive.ObjectID `bson:"_id" json:"eventId"`
	Title       string             `bson:"-" json:"title"`
	Status      EventStatus        `bson:"-" json:"status"`
	Orders      int64              `bson:"orders" json:"orders"`
	TicketsSold int64              `bson:"ticketsSold" json:"ticketsSold"`
	Scanned     int64              `bson:"scanned" json:"scanned"`
	Revenue     float64            `bson:"revenue" json:"revenue"`
}

type PlatformStats struct {
	UsersByRole      map[string]int64 `json:"usersByRole"`
	EventsByStatus   map[string]int64 `json:"eventsByStatus"`
	OrdersByStatus   map[string]int64 `json:"ordersByStatus"`
	CompletedRevenue float64          `json:"completedRevenue"`
	TicketsSold      int64            `json:"ticketsSold"`
}

type AnalyticsRepo interface {
	EventStatsFor(ctx context.Context, eventIDs []primitive.ObjectID) (map[primitive.ObjectID]EventStats, error)
	PlatformStats(ctx context.Context) (*PlatformStats, error)
}

// EventStatsFor aggregates completed orders of the given events. Events with
// no completed order are absent from the result.
func (mdb *MongodbRepo) EventStatsFor(ctx context.Context, eventIDs []primitive.ObjectID) (map[primitive.ObjectID]EventStats, error) {
	out := make(map[primitive.ObjectID]EventStats, len(eventIDs))
	if len(eventIDs) == 0 {
		return out, nil
	}
	col, err := mdb.GetCollection(OrdersColName)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"eventId": bson.M{"$in": eventIDs}, "status": OrderStatusCompleted}}},
		{{Key: "$unwind", Value: "$tickets"}},
		{{Key: "$group", Value: bson.M{
			"_id":         "$eventId",
			"orderIds":    bson.M{"$addToSet": "$_id"},
			"ticketsSold": bson.M{"$sum": "$tickets.quantity"},
			"revenue":     bson.M{"$sum": bson.M{"$multiply": bson.A{"$tickets.price", "$tickets.quantity"}}},
			"scanned":     bson.M{"$sum": bson.M{"$cond": bson.A{"$tickets.isScanned", 1, 0}}},
		}}},
		{{Key: "$project", Value: bson.M{
			"orders":      bson.M{"$size": "$orderIds"},
			"ticketsSold": 1,
			"revenue":     1,
			"scanned":     1,
		}}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error aggregating event stats: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []EventStats
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("error decoding event stats: %w", err)
	}
	for _, r := range rows {
		out[r.EventID] = r
	}
	return out, nil
}

type countRow struct {
	Key   string `bson:"_id"`
	Count int64  `bson:"count"`
}

func (mdb *MongodbRepo) countBy(ctx context.Context, colName, field string) (map[string]int64, error) {
	col, err := mdb.GetCollection(colName)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$" + field, "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error grouping %s by %s: %w", colName, field, err)
	}
	defer cursor.Close(ctx)

	var rows []countRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("error decoding %s counts: %w", colName, err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return out, nil
}

func (mdb *MongodbRepo) PlatformStats(ctx context.Context) (*PlatformStats, error) {
	stats := &PlatformStats{}
	var err error
	if stats.UsersByRole, err = mdb.countBy(ctx, UsersColName, "role"); err != nil {
		return nil, err
	}
	if stats.EventsByStatus, err = mdb.countBy(ctx, EventsColName, "status"); err != nil {
		return nil, err
	}
	if stats.OrdersByStatus, err = mdb.countBy(ctx, OrdersColName, "status"); err != nil {
		return nil, err
	}

	col, err := mdb.GetCollection(OrdersColName)
	if err != nil {
		return nil, err
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"status": OrderStatusCompleted}}},
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"revenue":     bson.M{"$sum": "$totalAmount"},
			"ticketsSold": bson.M{"$sum": bson.M{"$size": "$tickets"}},
		}}},
	}
	cursor, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error aggregating revenue: %w", err)
	}
	defer cursor.Close(ctx)

	var totals []struct {
		Revenue     float64 `bson:"revenue"`
		TicketsSold int64   `bson:"ticketsSold"`
	}
	if err := cursor.All(ctx, &totals); err != nil {
		return nil, fmt.Errorf("error decoding revenue: %w", err)
	}
	if len(totals) > 0 {
		stats.CompletedRevenue = totals[0].Revenue
		stats.TicketsSold = totals[0].TicketsSold
	}
	return stats, nil
}
