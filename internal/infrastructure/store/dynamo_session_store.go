package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by the session store.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoSessionStore stores session values in a DynamoDB table keyed by
// session_id (partition) and key (sort). expires_at is an epoch-seconds
// attribute suitable for DynamoDB TTL; expired items are also filtered on
// read because TTL deletion is lazy.
type DynamoSessionStore struct {
	client    DynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// dynamoSession represents the DynamoDB item structure
type dynamoSession struct {
	SessionID string `dynamodbav:"session_id"`
	Key       string `dynamodbav:"key"`
	Value     string `dynamodbav:"value"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

func NewDynamoSessionStore(client DynamoAPI, tableName string, ttl time.Duration) *DynamoSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &DynamoSessionStore{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		now:       time.Now,
	}
}

func (s *DynamoSessionStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(sessionID, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to get session item: %w", err)
	}
	if len(out.Item) == 0 {
		return "", false, nil
	}

	var item dynamoSession
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal session item: %w", err)
	}
	if s.now().Unix() >= item.ExpiresAt {
		return "", false, nil
	}
	return item.Value, true, nil
}

func (s *DynamoSessionStore) Set(ctx context.Context, sessionID, key, value string) error {
	now := s.now()
	av, err := attributevalue.MarshalMap(dynamoSession{
		SessionID: sessionID,
		Key:       key,
		Value:     value,
		ExpiresAt: now.Add(s.ttl).Unix(),
		UpdatedAt: now.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal session item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("failed to put session item: %w", err)
	}
	return nil
}

func (s *DynamoSessionStore) Remove(ctx context.Context, sessionID, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.itemKey(sessionID, key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete session item: %w", err)
	}
	return nil
}

func (s *DynamoSessionStore) itemKey(sessionID, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: sessionID},
		"key":        &types.AttributeValueMemberS{Value: key},
	}
}

