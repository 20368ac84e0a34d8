package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix = "SESSION#"
	skResult = "RESULT"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore implements HistoryStore using AWS DynamoDB.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// Compile-time interface check.
var _ HistoryStore = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// --- Internal helpers ---

// sessionPK returns the partition key for a session.
func sessionPK(sessionID string) string {
	return pkPrefix + sessionID
}

// expiresAt returns the Unix epoch timestamp for record expiration (now + RecordTTL).
func (s *DynamoStore) expiresAt() int64 {
	return s.now().Add(RecordTTL).Unix()
}

func (s *DynamoStore) PutRecord(ctx context.Context, rec *Record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	// Key and TTL attributes overwrite any conflicting keys from the data.
	pk := sessionPK(rec.SessionID)
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: skResult}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.expiresAt(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, skResult, err)
	}

	log.Debug().Str("sessionId", rec.SessionID).Str("outcome", rec.Outcome).Msg("History record persisted to DynamoDB")
	return nil
}

func (s *DynamoStore) GetRecord(ctx context.Context, sessionID string) (*Record, error) {
	pk := sessionPK(sessionID)
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: skResult},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, skResult, err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var rec Record
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal PK=%s: %w", pk, err)
	}
	rec.SessionID = sessionID
	return &rec, nil
}

// ListRecords scans every RESULT item. History tables are per user and small,
// so a filtered Scan sorted client-side is sufficient.
func (s *DynamoStore) ListRecords(ctx context.Context, limit int) ([]Record, error) {
	input := &dynamodb.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: aws.String("SK = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk": &types.AttributeValueMemberS{Value: skResult},
		},
	}

	var out []Record

	// Handle pagination; DynamoDB returns up to 1MB per Scan call.
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Scan %s: %w", s.tableName, err)
		}
		for _, item := range result.Items {
			var rec Record
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("unmarshal history item: %w", err)
			}
			if pk, ok := item["PK"].(*types.AttributeValueMemberS); ok {
				rec.SessionID = strings.TrimPrefix(pk.Value, pkPrefix)
			}
			out = append(out, rec)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return newestFirst(out, limit), nil
}
