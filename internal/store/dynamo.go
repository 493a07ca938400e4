package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/FactbirdHQ/fbedge-examples/internal/result"
)

// DynamoDB key constants for the single-table design.
const (
	pkStream  = "STREAM#"
	pkJob     = "JOB#"
	skCapture = "CAPTURE#"
	skMeta    = "META"
)

// DynamoAPI is the subset of the DynamoDB client used by the ledger.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// DynamoLedger implements Ledger on a DynamoDB table.
type DynamoLedger struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// Compile-time interface check.
var _ Ledger = (*DynamoLedger)(nil)

// NewDynamoLedger creates a DynamoLedger for the given table.
func NewDynamoLedger(client DynamoAPI, tableName string) *DynamoLedger {
	return &DynamoLedger{client: client, tableName: tableName, now: time.Now}
}

// --- Internal helpers ---

func (s *DynamoLedger) expiresAt() int64 {
	return s.now().Add(RecordTTL).Unix()
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// putItem marshals a record and writes it with PK, SK, and TTL.
// Fields derived from the keys use dynamodbav:"-".
func (s *DynamoLedger) putItem(ctx context.Context, pk, sk string, data any) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}
	item["expiresAt"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(s.expiresAt(), 10)}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads one item into out. It returns false when the item does not exist.
func (s *DynamoLedger) getItem(ctx context.Context, pk, sk string, out any) (bool, error) {
	res, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       key(pk, sk),
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if res.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(res.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

// --- Captures ---

func (s *DynamoLedger) PutCapture(ctx context.Context, rec *CaptureRecord) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = s.now().Unix()
	}
	if err := s.putItem(ctx, pkStream+rec.StreamID, skCapture+rec.SessionTimestamp, rec); err != nil {
		return fmt.Errorf("put capture %s/%s: %w", rec.StreamID, rec.SessionTimestamp, err)
	}

	log.Debug().
		Str("stream", rec.StreamID).
		Str("session", rec.SessionTimestamp).
		Int("frames", rec.FrameCount).
		Msg("Capture recorded in ledger")
	return nil
}

func (s *DynamoLedger) ListCaptures(ctx context.Context, streamID string) ([]CaptureRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pkStream + streamID},
			":sk": &types.AttributeValueMemberS{Value: skCapture},
		},
		// Session timestamps sort lexically, so descending SK is newest first.
		ScanIndexForward: aws.Bool(false),
	}

	var records []CaptureRecord
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query captures for %s: %w", streamID, err)
		}
		for _, item := range out.Items {
			var rec CaptureRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				return nil, fmt.Errorf("unmarshal capture: %w", err)
			}
			rec.StreamID = streamID
			if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
				rec.SessionTimestamp = strings.TrimPrefix(sk.Value, skCapture)
			}
			records = append(records, rec)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return records, nil
}

// --- Deployments ---

func (s *DynamoLedger) PutDeployment(ctx context.Context, rec *DeploymentRecord) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = s.now().Unix()
	}
	if err := s.putItem(ctx, pkJob+rec.JobID, skMeta, rec); err != nil {
		return fmt.Errorf("put deployment %s: %w", rec.JobID, err)
	}

	log.Debug().Str("jobId", rec.JobID).Str("status", rec.Status).Msg("Deployment recorded in ledger")
	return nil
}

func (s *DynamoLedger) GetDeployment(ctx context.Context, jobID string) (*DeploymentRecord, error) {
	var rec DeploymentRecord
	found, err := s.getItem(ctx, pkJob+jobID, skMeta, &rec)
	if err != nil {
		return nil, fmt.Errorf("get deployment %s: %w", jobID, err)
	}
	if !found {
		return nil, nil
	}
	rec.JobID = jobID
	return &rec, nil
}

func (s *DynamoLedger) UpdateDeploymentStatus(ctx context.Context, jobID, status string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 key(pkJob+jobID, skMeta),
		UpdateExpression:    aws.String("SET #s = :s, updatedAt = :u"),
		ConditionExpression: aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status", // reserved word
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s": &types.AttributeValueMemberS{Value: status},
			":u": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Unix(), 10)},
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return result.Errorf(result.KindNotFound, "store.UpdateDeploymentStatus", "deployment %s is not in the ledger", jobID)
	}
	if err != nil {
		return fmt.Errorf("update deployment status %s -> %s: %w", jobID, status, err)
	}

	log.Debug().Str("jobId", jobID).Str("status", status).Msg("Deployment status updated")
	return nil
}
