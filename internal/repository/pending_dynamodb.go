package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ghclone/ghclone/internal/models"
	"github.com/ghclone/ghclone/internal/utils"
	"github.com/sirupsen/logrus"
)

// DynamoPendingStore keeps pending codes in the single table under
// PENDING#<email>. DynamoDB removes expired items lazily, so reads also
// compare against the stored TTL.
type DynamoPendingStore struct {
	client    DynamoAPI
	tableName string
	ttl       time.Duration
	logger    *logrus.Logger
	now       func() time.Time
}

func NewDynamoPendingStore(client DynamoAPI, tableName string, ttl time.Duration, logger *logrus.Logger) *DynamoPendingStore {
	return &DynamoPendingStore{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

func (r *DynamoPendingStore) Put(ctx context.Context, email, otp string) error {
	now := r.now().UTC()
	expiresAt := now.Add(r.ttl)

	item := itemKey(models.PendingPK(email))
	item["Email"] = &types.AttributeValueMemberS{Value: email}
	item["OTP"] = &types.AttributeValueMemberS{Value: otp}
	item["CreatedAt"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)}
	item["ExpiresAt"] = &types.AttributeValueMemberS{Value: expiresAt.Format(time.RFC3339)}
	item[ttlAttribute] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).WithField("email_hash", utils.HashEmail(email)).Error("Failed to store pending code in DynamoDB")
		return fmt.Errorf("failed to store pending code: %w: %w", models.ErrUnavailable, err)
	}
	return nil
}

func (r *DynamoPendingStore) Get(ctx context.Context, email string) (*models.PendingRegistration, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(models.PendingPK(email)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get pending code: %w: %w", models.ErrUnavailable, err)
	}
	if result.Item == nil {
		return nil, models.ErrPendingNotFound
	}

	var pending models.PendingRegistration
	if err := attributevalue.UnmarshalMap(result.Item, &pending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending code: %w", err)
	}
	if !pending.ExpiresAt.IsZero() && !r.now().Before(pending.ExpiresAt) {
		return nil, models.ErrPendingNotFound
	}
	return &pending, nil
}

// ConsumeIfMatch deletes the pending item only when its code matches and it
// has not expired. A failed condition is a mismatch, not an error.
func (r *DynamoPendingStore) ConsumeIfMatch(ctx context.Context, email, otp string) (*models.PendingRegistration, error) {
	result, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 itemKey(models.PendingPK(email)),
		ConditionExpression: aws.String("OTP = :otp AND #ttl > :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": ttlAttribute,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":otp": &types.AttributeValueMemberS{Value: otp},
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(r.now().Unix(), 10)},
		},
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil, models.ErrPendingNotFound
		}
		r.logger.WithError(err).WithField("email_hash", utils.HashEmail(email)).Error("Failed to consume pending code in DynamoDB")
		return nil, fmt.Errorf("failed to consume pending code: %w: %w", models.ErrUnavailable, err)
	}

	pending := models.PendingRegistration{Email: email, OTP: otp}
	if len(result.Attributes) > 0 {
		if err := attributevalue.UnmarshalMap(result.Attributes, &pending); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pending code: %w", err)
		}
	}
	return &pending, nil
}

// Restore puts a consumed item back with its original TTL. The put is
// conditional so a code written since the consume is never overwritten; an
// item past its TTL that DynamoDB has not removed yet does not count.
func (r *DynamoPendingStore) Restore(ctx context.Context, pending *models.PendingRegistration) error {
	now := r.now()
	if !pending.ExpiresAt.After(now) {
		return nil
	}

	item := itemKey(models.PendingPK(pending.Email))
	item["Email"] = &types.AttributeValueMemberS{Value: pending.Email}
	item["OTP"] = &types.AttributeValueMemberS{Value: pending.OTP}
	item["CreatedAt"] = &types.AttributeValueMemberS{Value: pending.CreatedAt.UTC().Format(time.RFC3339)}
	item["ExpiresAt"] = &types.AttributeValueMemberS{Value: pending.ExpiresAt.UTC().Format(time.RFC3339)}
	item[ttlAttribute] = &types.AttributeValueMemberN{Value: strconv.FormatInt(pending.ExpiresAt.Unix(), 10)}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR #ttl <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": ttlAttribute,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			r.logger.WithField("email_hash", utils.HashEmail(pending.Email)).Info("Newer pending code present, restore skipped")
			return nil
		}
		r.logger.WithError(err).WithField("email_hash", utils.HashEmail(pending.Email)).Error("Failed to restore pending code in DynamoDB")
		return fmt.Errorf("failed to restore pending code: %w: %w", models.ErrUnavailable, err)
	}
	return nil
}
