package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type UserRepo interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id primitive.ObjectID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, role Role, offset, limit int) ([]*User, int64, error)
	UpdateUser(ctx context.Context, id primitive.ObjectID, update UserUpdate, now time.Time) (*User, error)
	SetUserRole(ctx context.Context, id primitive.ObjectID, role Role, now time.Time) (*User, error)
	DeleteUser(ctx context.Context, id primitive.ObjectID) error
	// LinkOAuthUser returns the user owning email, creating it on first sight
	// with the OAuth provider that vouched for it.
	LinkOAuthUser(ctx context.Context, email, name, provider, subject string, now time.Time) (*User, error)

	SaveVerificationCode(ctx context.Context, email, code string, expiresAt, now time.Time) error
	ConsumeVerificationCode(ctx context.Context, email, code string, now time.Time) error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (mdb *MongodbRepo) CreateUser(ctx context.Context, user *User) error {
	col, err := mdb.GetCollection(UsersColName)
	if err != nil {
		return err
	}
	user.Email = normalizeEmail(user.Email)
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if _, err := col.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) findUser(ctx context.Context, filter bson.M) (*User, error) {
	col, err := mdb.GetCollection(UsersColName)
	if err != nil {
		return nil, err
	}
	var user User
	if err := col.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("error finding user: %w", err)
	}
	return &user, nil
}

func (mdb *MongodbRepo) GetUserByID(ctx context.Context, id primitive.ObjectID) (*User, error) {
	return mdb.findUser(ctx, bson.M{"_id": id})
}

func (mdb *MongodbRepo) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return mdb.findUser(ctx, bson.M{"email": normalizeEmail(email)})
}

func (mdb *MongodbRepo) ListUsers(ctx context.Context, role Role, offset, limit int) ([]*User, int64, error) {
	col, err := mdb.GetCollection(UsersColName)
	if err != nil {
		return nil, 0, err
	}
	filter := bson.M{}
	if role != "" {
		filter["role"] = role
	}
	total, err := col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("error counting users: %w", err)
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := col.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("error finding users: %w", err)
	}
	defer cursor.Close(ctx)

	users := make([]*User, 0)
	if err := cursor.All(ctx, &users); err != nil {
		return nil, 0, fmt.Errorf("error decoding users: %w", err)
	}
	return users, total, nil
}

func (mdb *MongodbRepo) updateUser(ctx context.Context, id primitive.ObjectID, set bson.M) (*User, error) {
	col, err := mdb.GetCollection(UsersColName)
	if err != nil {
		return nil, err
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user User
	if err := col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

func (mdb *MongodbRepo) UpdateUser(ctx context.Context, id primitive.ObjectID, u UserUpdate, now time.Time) (*User, error) {
	set := bson.M{"updatedAt": now}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Phone != nil {
		set["phone"] = *u.Phone
	}
	if u.AvatarURL != nil {
		set["avatarUrl"] = *u.AvatarURL
	}
	return mdb.updateUser(ctx, id, set)
}

func (mdb *MongodbRepo) SetUserRole(ctx context.Context, id primitive.ObjectID, role Role, now time.Time) (*User, error) {
	return mdb.updateUser(ctx, id, bson.M{"role": role, "updatedAt": now})
}

func (mdb *MongodbRepo) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	col, err := mdb.GetCollection(UsersColName)
	if err != nil {
		return err
	}
	res, err := col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (mdb *MongodbRepo) LinkOAuthUser(ctx context.Context, email, name, provider, subject string, now time.Time) (*User, error) {
	col, err := mdb.GetCollection(UsersColName)
	if err != nil {
		return nil, err
	}
	email = normalizeEmail(email)
	update := bson.M{"$setOnInsert": bson.M{
		"_id":             primitive.NewObjectID(),
		"email":           email,
		"name":            name,
		"provider":        provider,
		"providerSubject": subject,
		"role":            RoleUser,
		"isVerified":      true,
		"createdAt":       now,
		"updatedAt":       now,
	}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var user User
	if err := col.FindOneAndUpdate(ctx, bson.M{"email": email}, update, opts).Decode(&user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// a concurrent link inserted it first
			return mdb.GetUserByEmail(ctx, email)
		}
		return nil, fmt.Errorf("failed to link oauth user: %w", err)
	}
	return &user, nil
}

func (mdb *MongodbRepo) SaveVerificationCode(ctx context.Context, email, code string, expiresAt, now time.Time) error {
	col, err := mdb.GetCollection(VerificationCodesColName)
	if err != nil {
		return err
	}
	email = normalizeEmail(email)
	update := bson.M{
		"$set": bson.M{
			"code":      code,
			"attempts":  0,
			"expiresAt": expiresAt,
			"createdAt": now,
		},
		"$setOnInsert": bson.M{"email": email},
	}
	_, err = col.UpdateOne(ctx, bson.M{"email": email}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save verification code: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) ConsumeVerificationCode(ctx context.Context, email, code string, now time.Time) error {
	col, err := mdb.GetCollection(VerificationCodesColName)
	if err != nil {
		return err
	}
	email = normalizeEmail(email)
	filter := bson.M{
		"email":     email,
		"expiresAt": bson.M{"$gt": now},
		"attempts":  bson.M{"$lt": MaxVerificationAttempts},
	}
	// Every try counts against the limit, including the successful one.
	var vc VerificationCode
	err = col.FindOneAndUpdate(ctx, filter, bson.M{"$inc": bson.M{"attempts": 1}}).Decode(&vc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrInvalidCode
		}
		return fmt.Errorf("failed to check verification code: %w", err)
	}
	if vc.Code != code {
		return ErrInvalidCode
	}
	if _, err := col.DeleteOne(ctx, bson.M{"_id": vc.ID}); err != nil {
		return fmt.Errorf("failed to delete verification code: %w", err)
	}
	return nil
}
