package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ghclone/ghclone/internal/models"
	"github.com/sirupsen/logrus"
)

type DynamoTokenDenylist struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
	now       func() time.Time
}

func NewDynamoTokenDenylist(client DynamoAPI, tableName string, logger *logrus.Logger) *DynamoTokenDenylist {
	return &DynamoTokenDenylist{
		client:    client,
		tableName: tableName,
		logger:    logger,
		now:       time.Now,
	}
}

func revokedPK(jti string) string {
	return fmt.Sprintf("REVOKED_TOKEN#%s", jti)
}

// Revoke marks a token as revoked with TTL
func (r *DynamoTokenDenylist) Revoke(ctx context.Context, token models.RevokedToken) error {
	item := itemKey(revokedPK(token.JTI))
	item["Email"] = &types.AttributeValueMemberS{Value: token.Email}
	item["RevokedAt"] = &types.AttributeValueMemberS{Value: token.RevokedAt.Format(time.RFC3339)}
	item["ExpiresAt"] = &types.AttributeValueMemberS{Value: token.ExpiresAt.Format(time.RFC3339)}
	item[ttlAttribute] = &types.AttributeValueMemberN{Value: strconv.FormatInt(token.ExpiresAt.Unix(), 10)}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to mark token as revoked in DynamoDB")
		return fmt.Errorf("failed to mark token as revoked: %w: %w", models.ErrUnavailable, err)
	}
	return nil
}

func (r *DynamoTokenDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       itemKey(revokedPK(jti)),
	})
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w: %w", models.ErrUnavailable, err)
	}
	if result.Item == nil {
		return false, nil
	}

	// Items past their TTL may linger until DynamoDB sweeps them.
	if ttl, ok := result.Item[ttlAttribute].(*types.AttributeValueMemberN); ok {
		if expires, err := strconv.ParseInt(ttl.Value, 10, 64); err == nil && r.now().Unix() >= expires {
			return false, nil
		}
	}
	return true, nil
}
