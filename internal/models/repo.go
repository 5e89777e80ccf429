package models

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var Validate = validator.New()

const (
	EventsColName            = "events"
	OrdersColName            = "orders"
	UsersColName             = "users"
	VerificationCodesColName = "verification_codes"
)

type MongodbRepo struct {
	mongodbClient *mongo.Client
	dbName        string
}

func MongodbNewRepo(mongodbClient *mongo.Client, dbName string) *MongodbRepo {
	return &MongodbRepo{
		mongodbClient: mongodbClient,
		dbName:        dbName,
	}
}

func (mdb *MongodbRepo) GetCollection(colName string) (*mongo.Collection, error) {
	if mdb.mongodbClient == nil {
		return nil, fmt.Errorf("mongodb client is not initialized")
	}
	return mdb.mongodbClient.Database(mdb.dbName).Collection(colName), nil
}

// Ping checks the primary is reachable.
func (mdb *MongodbRepo) Ping(ctx context.Context) error {
	if mdb.mongodbClient == nil {
		return fmt.Errorf("mongodb client is not initialized")
	}
	return mdb.mongodbClient.Ping(ctx, readpref.Primary())
}

// EnsureIndexes creates the unique, lookup and TTL indexes of every collection.
func (mdb *MongodbRepo) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		EventsColName: {
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "startDate", Value: 1}},
				Options: options.Index().SetName("status_start_idx"),
			},
			{
				Keys:    bson.D{{Key: "organizerId", Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("organizer_created_idx"),
			},
			{
				Keys:    bson.D{{Key: "isFeatured", Value: 1}, {Key: "featuredEndDate", Value: 1}},
				Options: options.Index().SetName("featured_end_idx"),
			},
			{
				Keys:    bson.D{{Key: "isBanner", Value: 1}, {Key: "bannerEndDate", Value: 1}},
				Options: options.Index().SetName("banner_end_idx"),
			},
		},
		OrdersColName: {
			{
				Keys: bson.D{{Key: "paymentReference", Value: 1}},
				Options: options.Index().
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"paymentReference": bson.M{"$type": "string"}}).
					SetName("payment_reference_unique"),
			},
			{
				Keys:    bson.D{{Key: "tickets.ticketId", Value: 1}},
				Options: options.Index().SetName("ticket_id_idx"),
			},
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("user_created_idx"),
			},
			{
				Keys:    bson.D{{Key: "eventId", Value: 1}, {Key: "status", Value: 1}},
				Options: options.Index().SetName("event_status_idx"),
			},
			{
				Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
				Options: options.Index().SetName("status_created_idx"),
			},
			{
				Keys: bson.D{{Key: "updatedAt", Value: 1}},
				Options: options.Index().
					SetPartialFilterExpression(bson.M{"releasePending": true}).
					SetName("release_pending_idx"),
			},
		},
		UsersColName: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("email_unique"),
			},
		},
		VerificationCodesColName: {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("email_unique"),
			},
			{
				Keys: bson.D{{Key: "expiresAt", Value: 1}},
				Options: options.Index().
					SetExpireAfterSeconds(0).
					SetName("expires_at_ttl"),
			},
		},
	}

	for colName, models := range indexes {
		col, err := mdb.GetCollection(colName)
		if err != nil {
			return err
		}
		if _, err := col.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("error creating %s indexes: %w", colName, err)
		}
	}
	return nil
}

// ParseObjectID converts a hex id from a request into an ObjectID.
func ParseObjectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrInvalidID
	}
	return oid, nil
}
