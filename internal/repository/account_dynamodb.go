package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/ghclone/ghclone/internal/models"
	"github.com/ghclone/ghclone/internal/utils"
	"github.com/sirupsen/logrus"
)

type DynamoAccountRepository struct {
	client    DynamoAPI
	tableName string
	logger    *logrus.Logger
}

func NewDynamoAccountRepository(client DynamoAPI, tableName string, logger *logrus.Logger) *DynamoAccountRepository {
	return &DynamoAccountRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// Create writes the account item and a USERNAME# guard item in one
// transaction. Either item already existing cancels the whole write.
func (r *DynamoAccountRepository) Create(ctx context.Context, account *models.Account) error {
	item, err := attributevalue.MarshalMap(account)
	if err != nil {
		r.logger.WithError(err).Error("Failed to marshal account for DynamoDB")
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: account.GetPK()}
	item["SK"] = &types.AttributeValueMemberS{Value: account.GetSK()}

	guard := itemKey(models.UsernamePK(account.Username))
	guard["email"] = &types.AttributeValueMemberS{Value: account.Email}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(r.tableName),
					Item:                item,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(r.tableName),
					Item:                guard,
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
		},
	})
	if err != nil {
		var cancelled *types.TransactionCanceledException
		if errors.As(err, &cancelled) && isConditionalCancel(cancelled) {
			return models.ErrDuplicateAccount
		}
		r.logger.WithError(err).WithField("email_hash", utils.HashEmail(account.Email)).Error("Failed to create account in DynamoDB")
		return fmt.Errorf("failed to create account: %w: %w", models.ErrUnavailable, err)
	}

	r.logger.WithField("account_id", account.ID).Info("Account created")
	return nil
}

func (r *DynamoAccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	lookup := &models.Account{Email: email}

	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            itemKey(lookup.GetPK()),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logger.WithError(err).Error("Failed to get account from DynamoDB")
		return nil, fmt.Errorf("failed to get account: %w: %w", models.ErrUnavailable, err)
	}
	if result.Item == nil {
		return nil, models.ErrAccountNotFound
	}

	var account models.Account
	if err := attributevalue.UnmarshalMap(result.Item, &account); err != nil {
		r.logger.WithError(err).Error("Failed to unmarshal account from DynamoDB")
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return &account, nil
}

func isConditionalCancel(err *types.TransactionCanceledException) bool {
	for _, reason := range err.CancellationReasons {
		if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
