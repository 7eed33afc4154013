package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghclone/ghclone/internal/models"
	"github.com/ghclone/ghclone/internal/utils"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const AccountsCollection = "users"

type MongoAccountRepository struct {
	collection *mongo.Collection
	logger     *logrus.Logger
}

func NewMongoAccountRepository(collection *mongo.Collection, logger *logrus.Logger) *MongoAccountRepository {
	return &MongoAccountRepository{
		collection: collection,
		logger:     logger,
	}
}

// EnsureIndexes creates the unique indexes that back duplicate detection.
func (r *MongoAccountRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("email_unique"),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("username_unique"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}
	return nil
}

func (r *MongoAccountRepository) Create(ctx context.Context, account *models.Account) error {
	_, err := r.collection.InsertOne(ctx, account)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrDuplicateAccount
		}
		r.logger.WithError(err).WithField("email_hash", utils.HashEmail(account.Email)).Error("Failed to insert account into MongoDB")
		return fmt.Errorf("failed to create account: %w: %w", models.ErrUnavailable, err)
	}

	r.logger.WithField("account_id", account.ID).Info("Account created")
	return nil
}

func (r *MongoAccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrAccountNotFound
		}
		r.logger.WithError(err).Error("Failed to find account in MongoDB")
		return nil, fmt.Errorf("failed to find account: %w: %w", models.ErrUnavailable, err)
	}
	return &account, nil
}
