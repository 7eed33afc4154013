package repository

import (
	"context"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeDynamo is an in-memory table that understands the handful of
// condition expressions the stores issue.
type fakeDynamo struct {
	mu     sync.Mutex
	items  map[string]map[string]types.AttributeValue
	tables map[string]bool
	ttlOn  bool
	err    error

	lastGet *dynamodb.GetItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		items:  make(map[string]map[string]types.AttributeValue),
		tables: make(map[string]bool),
	}
}

func keyOf(item map[string]types.AttributeValue) string {
	pk, _ := item["PK"].(*types.AttributeValueMemberS)
	sk, _ := item["SK"].(*types.AttributeValueMemberS)
	if pk == nil || sk == nil {
		return ""
	}
	return pk.Value + "|" + sk.Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastGet = in
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	key := keyOf(in.Item)
	if !evalCondition(f.items[key], aws.ToString(in.ConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	key := keyOf(in.Key)
	if !evalCondition(f.items[key], aws.ToString(in.ConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	old := f.items[key]
	delete(f.items, key)
	if in.ReturnValues == types.ReturnValueAllOld {
		return &dynamodb.DeleteItemOutput{Attributes: old}, nil
	}
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, op := range in.TransactItems {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if op.Put == nil {
			continue
		}
		put := op.Put
		if !evalCondition(f.items[keyOf(put.Item)], aws.ToString(put.ConditionExpression), put.ExpressionAttributeNames, put.ExpressionAttributeValues) {
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
			failed = true
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, op := range in.TransactItems {
		if op.Put != nil {
			f.items[keyOf(op.Put.Item)] = op.Put.Item
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	name := aws.ToString(in.TableName)
	if f.tables[name] {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}
	f.tables[name] = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *fakeDynamo) UpdateTimeToLive(_ context.Context, in *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ttlOn {
		return nil, errors.New("ValidationException: TimeToLive is already enabled")
	}
	f.ttlOn = true
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

func evalCondition(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) bool {
	if expr == "" {
		return true
	}
	for _, alternative := range strings.Split(expr, " OR ") {
		if evalConjunction(item, alternative, names, values) {
			return true
		}
	}
	return false
}

func evalConjunction(item map[string]types.AttributeValue, expr string, names map[string]string, values map[string]types.AttributeValue) bool {
	for _, clause := range strings.Split(expr, " AND ") {
		clause = strings.TrimSpace(clause)
		if strings.HasPrefix(clause, "attribute_not_exists(") {
			attr := strings.TrimSuffix(strings.TrimPrefix(clause, "attribute_not_exists("), ")")
			if _, ok := item[resolveName(attr, names)]; ok {
				return false
			}
			continue
		}
		if item == nil {
			return false
		}
		parts := strings.Fields(clause)
		if len(parts) != 3 {
			return false
		}
		actual, ok := item[resolveName(parts[0], names)]
		if !ok {
			return false
		}
		expected := values[parts[2]]
		switch parts[1] {
		case "=":
			if attrString(actual) != attrString(expected) {
				return false
			}
		case ">", "<=":
			a, _ := strconv.ParseInt(attrString(actual), 10, 64)
			b, _ := strconv.ParseInt(attrString(expected), 10, 64)
			if (parts[1] == ">") != (a > b) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func resolveName(attr string, names map[string]string) string {
	if name, ok := names[attr]; ok {
		return name
	}
	return attr
}

func attrString(v types.AttributeValue) string {
	switch av := v.(type) {
	case *types.AttributeValueMemberS:
		return av.Value
	case *types.AttributeValueMemberN:
		return av.Value
	}
	return ""
}
