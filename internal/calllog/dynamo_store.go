package calllog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoAPI is the DynamoDB client subset the store needs.
type DynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// dynamoCallLog is the table representation, keyed by providerCallId.
type dynamoCallLog struct {
	ProviderCallID   string `dynamodbav:"providerCallId"`
	ID               string `dynamodbav:"id"`
	ContactID        string `dynamodbav:"contactId"`
	InitiationStatus string `dynamodbav:"initiationStatus,omitempty"`
	Payload          string `dynamodbav:"payload,omitempty"`
	Report           string `dynamodbav:"report,omitempty"`
	ReportAttachedAt string `dynamodbav:"reportAttachedAt,omitempty"`
	CreatedAt        string `dynamodbav:"createdAt"`
}

// DynamoStore persists call logs in DynamoDB.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	if client == nil {
		panic("calllog: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("calllog: table name cannot be empty")
	}
	return &DynamoStore{client: client, tableName: tableName}
}

// CreateDispatched inserts the dispatch-time record. The condition expression
// enforces at most one item per provider call id.
func (s *DynamoStore) CreateDispatched(ctx context.Context, log *CallLog) error {
	if log.ProviderCallID == "" {
		return errors.New("calllog: provider call id required")
	}
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	item, err := attributevalue.MarshalMap(&dynamoCallLog{
		ProviderCallID:   log.ProviderCallID,
		ID:               log.ID.String(),
		ContactID:        log.ContactID.String(),
		InitiationStatus: log.InitiationStatus,
		Payload:          string(log.Payload),
		CreatedAt:        log.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("calllog: marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(providerCallId)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return ErrDuplicateCall
		}
		return fmt.Errorf("calllog: create dispatched: %w", err)
	}
	return nil
}

// GetByProviderCallID fetches the record for a provider call id.
func (s *DynamoStore) GetByProviderCallID(ctx context.Context, providerCallID string) (*CallLog, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"providerCallId": &types.AttributeValueMemberS{Value: providerCallID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("calllog: get by provider call id: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var rec dynamoCallLog
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("calllog: decode record: %w", err)
	}
	return rec.toCallLog()
}

// AttachReport stores the raw report once. The attribute_not_exists guard is
// the same compare-and-swap the Postgres backend gets from report IS NULL.
func (s *DynamoStore) AttachReport(ctx context.Context, providerCallID string, report []byte, at time.Time) (bool, error) {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"providerCallId": &types.AttributeValueMemberS{Value: providerCallID},
		},
		UpdateExpression: aws.String("SET #report = :report, #attached = :attached"),
		ExpressionAttributeNames: map[string]string{
			"#report":   "report",
			"#attached": "reportAttachedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":report":   &types.AttributeValueMemberS{Value: string(report)},
			":attached": &types.AttributeValueMemberS{Value: at.UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(providerCallId) AND attribute_not_exists(#report)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return false, nil
		}
		return false, fmt.Errorf("calllog: attach report: %w", err)
	}
	return true, nil
}

func (r *dynamoCallLog) toCallLog() (*CallLog, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("calllog: parse record id: %w", err)
	}
	contactID, err := uuid.Parse(r.ContactID)
	if err != nil {
		return nil, fmt.Errorf("calllog: parse contact id: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("calllog: parse created at: %w", err)
	}

	l := &CallLog{
		ID:               id,
		ContactID:        contactID,
		ProviderCallID:   r.ProviderCallID,
		InitiationStatus: r.InitiationStatus,
		CreatedAt:        createdAt,
	}
	if r.Payload != "" {
		l.Payload = []byte(r.Payload)
	}
	if r.Report != "" {
		l.Report = []byte(r.Report)
	}
	if r.ReportAttachedAt != "" {
		attached, err := time.Parse(time.RFC3339Nano, r.ReportAttachedAt)
		if err != nil {
			return nil, fmt.Errorf("calllog: parse report attached at: %w", err)
		}
		l.ReportAttachedAt = &attached
	}
	return l, nil
}
