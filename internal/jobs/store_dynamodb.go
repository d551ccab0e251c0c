package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/ent0n29/docvoice/internal/session"
)

const (
	pkPrefixUser = "USER#"
	skPrefixJob  = "JOB#"
)

// dynamodbAPI is the subset of *dynamodb.Client used by DynamoStore.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore keeps one DynamoDB table per flow, partitioned by user.
type DynamoStore struct {
	api    dynamodbAPI
	tables Tables
}

func NewDynamoStore(api dynamodbAPI, tables Tables) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("jobs: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tables.StandardTTS) == "" || strings.TrimSpace(tables.VoiceClone) == "" {
		return nil, errors.New("jobs: dynamodb table names must not be empty")
	}
	return &DynamoStore{api: api, tables: tables}, nil
}

func userPK(userID string) string {
	return pkPrefixUser + userID
}

func jobSK(createdAt time.Time, id string) string {
	return skPrefixJob + createdAt.UTC().Format(time.RFC3339Nano) + "#" + id
}

func (s *DynamoStore) InsertJob(ctx context.Context, rec Record) error {
	table, err := s.tables.For(rec.Flow)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(table),
		Item:                jobItem(rec),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("jobs: InsertJob: %w", err)
	}
	return nil
}

// UpdateJob applies the patch to the user's job items in the flow table that
// are no longer queued.
func (s *DynamoStore) UpdateJob(ctx context.Context, flow session.Flow, userID string, patch Patch) error {
	if flow != session.FlowStandardTTS || patch.VoiceID == "" {
		return nil
	}
	table := s.tables.StandardTTS

	var startKey map[string]types.AttributeValue
	for {
		out, err := s.api.Query(ctx, &dynamodb.QueryInput{
			TableName:                aws.String(table),
			KeyConditionExpression:   aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			FilterExpression:         aws.String("#status <> :queued"),
			ExpressionAttributeNames: map[string]string{"#status": "status"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
				":prefix": &types.AttributeValueMemberS{Value: skPrefixJob},
				":queued": &types.AttributeValueMemberS{Value: string(StatusQueued)},
			},
			ProjectionExpression: aws.String("PK, SK"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return fmt.Errorf("jobs: UpdateJob query: %w", err)
		}
		for _, item := range out.Items {
			_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
				TableName: aws.String(table),
				Key: map[string]types.AttributeValue{
					"PK": item["PK"],
					"SK": item["SK"],
				},
				UpdateExpression:         aws.String("SET voiceId = :voice"),
				ConditionExpression:      aws.String("#status <> :queued"),
				ExpressionAttributeNames: map[string]string{"#status": "status"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":voice":  &types.AttributeValueMemberS{Value: patch.VoiceID},
					":queued": &types.AttributeValueMemberS{Value: string(StatusQueued)},
				},
			})
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				continue
			}
			if err != nil {
				return fmt.Errorf("jobs: UpdateJob update item: %w", err)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func (s *DynamoStore) Close() error { return nil }

func jobItem(rec Record) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: userPK(rec.UserID)},
		"SK":          &types.AttributeValueMemberS{Value: jobSK(rec.CreatedAt, rec.ID)},
		"jobId":       &types.AttributeValueMemberS{Value: rec.ID},
		"userId":      &types.AttributeValueMemberS{Value: rec.UserID},
		"documentUrl": &types.AttributeValueMemberS{Value: rec.DocumentURL},
		"status":      &types.AttributeValueMemberS{Value: string(rec.Status)},
		"createdAt":   &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339)},
	}
	switch rec.Flow {
	case session.FlowStandardTTS:
		item["voiceId"] = &types.AttributeValueMemberS{Value: rec.VoiceID}
	case session.FlowVoiceClone:
		item["referenceAudioUrl"] = &types.AttributeValueMemberS{Value: rec.ReferenceAudioURL}
	}
	return item
}
