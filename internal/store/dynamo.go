// Package store persists pitch sessions. DynamoDB holds the live snapshot of
// every session in a single table; S3 keeps an immutable archive of finished
// ones.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/apresai/pitchroom/internal/session"
)

// SessionItem is the DynamoDB record for a pitch session. The authoritative
// state lives in StateJSON; the flat columns are denormalized for listing.
type SessionItem struct {
	PK        string `dynamodbav:"PK"`     // SESSION#{id}
	SK        string `dynamodbav:"SK"`     // METADATA
	GSI1PK    string `dynamodbav:"GSI1PK"` // SESSIONS#{owner}
	GSI1SK    string `dynamodbav:"GSI1SK"` // {updatedAt}#{id}
	SessionID string `dynamodbav:"sessionId"`
	Owner     string `dynamodbav:"owner,omitempty"`
	Title     string `dynamodbav:"title,omitempty"`
	Pinned    bool   `dynamodbav:"pinned,omitempty"`
	Status    string `dynamodbav:"status"`
	Provider  string `dynamodbav:"provider"`
	Persona   string `dynamodbav:"persona"`
	Startup   string `dynamodbav:"startup,omitempty"`
	Score     int    `dynamodbav:"score"`
	Reason    string `dynamodbav:"terminationReason,omitempty"`
	StateJSON string `dynamodbav:"stateJson"`
	CreatedAt string `dynamodbav:"createdAt"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

// Store handles DynamoDB operations for pitch sessions. It implements
// session.SnapshotStore and session.SnapshotLister.
type Store struct {
	client    *dynamodb.Client
	tableName string
}

// New creates a DynamoDB store.
func New(client *dynamodb.Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// SaveSnapshot upserts the full session snapshot. Every accepted state change
// calls this, so the stored item is always the latest committed turn.
func (s *Store) SaveSnapshot(ctx context.Context, snap session.Snapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	item := SessionItem{
		PK:        "SESSION#" + snap.ID,
		SK:        "METADATA",
		GSI1PK:    ownerPartition(snap.Owner),
		GSI1SK:    snap.UpdatedAt.UTC().Format(time.RFC3339Nano) + "#" + snap.ID,
		SessionID: snap.ID,
		Owner:     snap.Owner,
		Title:     snap.Title,
		Pinned:    snap.Pinned,
		Status:    string(snap.Status),
		Provider:  snap.Provider,
		Persona:   snap.Persona.ID,
		Startup:   snap.Startup.Name,
		Score:     snap.Score,
		Reason:    string(snap.Reason),
		StateJSON: string(state),
		CreatedAt: snap.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: snap.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal session item: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put session item: %w", err)
	}
	return nil
}

// LoadSnapshot retrieves a session by ID.
func (s *Store) LoadSnapshot(ctx context.Context, id string) (session.Snapshot, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "SESSION#" + id},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("get session: %w", err)
	}
	if result.Item == nil {
		return session.Snapshot{}, session.ErrSessionNotFound
	}

	var item SessionItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return session.Snapshot{}, fmt.Errorf("unmarshal session item: %w", err)
	}
	return item.snapshot()
}

// ListSnapshots returns an owner's sessions, newest first, via GSI1.
func (s *Store) ListSnapshots(ctx context.Context, owner string) ([]session.Snapshot, error) {
	items, _, err := s.ListPage(ctx, owner, 0, "")
	if err != nil {
		return nil, err
	}

	snaps := make([]session.Snapshot, 0, len(items))
	for _, item := range items {
		snap, err := item.snapshot()
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// ListPage returns one page of an owner's session items, newest first. The
// cursor is the GSI1SK of the last item of the previous page.
func (s *Store) ListPage(ctx context.Context, owner string, limit int, cursor string) ([]SessionItem, string, error) {
	if limit <= 0 {
		limit = 50
	}

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: ownerPartition(owner)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	if cursor != "" {
		// cursor is the full GSI1SK value ({updatedAt}#{id})
		parts := strings.SplitN(cursor, "#", 2)
		if len(parts) != 2 {
			return nil, "", fmt.Errorf("invalid cursor format")
		}
		input.ExclusiveStartKey = map[string]types.AttributeValue{
			"PK":     &types.AttributeValueMemberS{Value: "SESSION#" + parts[1]},
			"SK":     &types.AttributeValueMemberS{Value: "METADATA"},
			"GSI1PK": &types.AttributeValueMemberS{Value: ownerPartition(owner)},
			"GSI1SK": &types.AttributeValueMemberS{Value: cursor},
		}
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("list sessions: %w", err)
	}

	var items []SessionItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, "", fmt.Errorf("unmarshal session list: %w", err)
	}

	var nextCursor string
	if result.LastEvaluatedKey != nil {
		if gsi1sk, ok := result.LastEvaluatedKey["GSI1SK"].(*types.AttributeValueMemberS); ok {
			nextCursor = gsi1sk.Value
		}
	}
	return items, nextCursor, nil
}

// Delete removes a session record.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "SESSION#" + id},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (item SessionItem) snapshot() (session.Snapshot, error) {
	var snap session.Snapshot
	if err := json.Unmarshal([]byte(item.StateJSON), &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("unmarshal session state %s: %w", item.SessionID, err)
	}
	return snap, nil
}

func ownerPartition(owner string) string {
	if owner == "" {
		return "SESSIONS"
	}
	return "SESSIONS#" + owner
}
