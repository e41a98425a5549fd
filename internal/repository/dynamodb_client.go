package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"interaction-export/internal/domain"
)

const (
	pkInteractions = "INTERACTION"
	skPrefixTS     = "TS#"
	pageLimit      = 500
)

// skTimestampLayout is fixed-width (nine fractional digits, never
// truncated) so lexicographic sort-key order matches timestamp order.
const skTimestampLayout = "2006-01-02T15:04:05.000000000"

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps the DynamoDB table holding interaction records.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// tsKey returns the sort key for a timestamp.
func tsKey(t time.Time) string {
	return skPrefixTS + t.UTC().Format(skTimestampLayout) + "Z"
}

// QueryWindow returns a page iterator over the interaction records whose
// timestamp falls in the half-open window, ascending by timestamp. Pages
// are fetched lazily on each Next call and cannot be replayed.
func (c *Client) QueryWindow(window domain.DayWindow) *WindowPages {
	return &WindowPages{client: c, window: window}
}

// WindowPages iterates the paginated responses of one day-window query.
type WindowPages struct {
	client   *Client
	window   domain.DayWindow
	startKey map[string]types.AttributeValue
	done     bool
	err      error
	records  []domain.Interaction
}

// Next fetches the next page. It returns false once all pages are consumed
// or a page failed; check Err afterwards.
func (p *WindowPages) Next(ctx context.Context) bool {
	if p.done || p.err != nil {
		return false
	}

	// BETWEEN is inclusive on both ends, so the upper bound is the last
	// representable instant before the window's exclusive end.
	in := &dynamodb.QueryInput{
		TableName:              aws.String(p.client.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: pkInteractions},
			":from": &types.AttributeValueMemberS{Value: tsKey(p.window.Start)},
			":to":   &types.AttributeValueMemberS{Value: tsKey(p.window.End.Add(-time.Nanosecond))},
		},
		ScanIndexForward:  aws.Bool(true),
		Limit:             aws.Int32(pageLimit),
		ExclusiveStartKey: p.startKey,
	}

	out, err := p.client.api.Query(ctx, in)
	if err != nil {
		p.err = fmt.Errorf("repository: QueryWindow query: %w", err)
		return false
	}

	recs := make([]domain.Interaction, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := itemToInteraction(item)
		if err != nil {
			p.err = fmt.Errorf("repository: QueryWindow unmarshal: %w", err)
			return false
		}
		recs = append(recs, rec)
	}
	p.records = recs
	p.startKey = out.LastEvaluatedKey
	if p.startKey == nil {
		p.done = true
	}
	return true
}

// Records returns the page fetched by the last successful Next call.
func (p *WindowPages) Records() []domain.Interaction {
	return p.records
}

// Err returns the error that stopped iteration, if any.
func (p *WindowPages) Err() error {
	return p.err
}

// MinCreatedAt returns the earliest interaction timestamp in the table.
// found is false when the table holds no interaction records at all.
func (c *Client) MinCreatedAt(ctx context.Context) (time.Time, bool, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pkInteractions},
		},
		ScanIndexForward: aws.Bool(true),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("repository: MinCreatedAt query: %w", err)
	}
	if out == nil || len(out.Items) == 0 {
		return time.Time{}, false, nil
	}
	rec, err := itemToInteraction(out.Items[0])
	if err != nil {
		return time.Time{}, false, fmt.Errorf("repository: MinCreatedAt unmarshal: %w", err)
	}
	return rec.CreatedAt, true, nil
}

// itemToInteraction converts a DynamoDB attribute map to an Interaction.
func itemToInteraction(item map[string]types.AttributeValue) (domain.Interaction, error) {
	id, err := strAttr(item, "id")
	if err != nil {
		return domain.Interaction{}, err
	}
	conversationID, err := strAttr(item, "conversationId")
	if err != nil {
		return domain.Interaction{}, err
	}
	createdRaw, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.Interaction{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdRaw)
	if err != nil {
		return domain.Interaction{}, fmt.Errorf("repository: parse createdAt %q: %w", createdRaw, err)
	}

	sender, _ := strAttr(item, "sender")                       // allow empty
	senderDisplayName, _ := strAttr(item, "senderDisplayName") // allow empty
	principalName, _ := strAttr(item, "principalName")         // allow empty
	status, _ := strAttr(item, "status")                       // allow empty
	recordType, _ := strAttr(item, "type")
	if recordType == "" {
		recordType = domain.TypeInteraction
	}

	tokens, err := optionalIntAttr(item, "tokens")
	if err != nil {
		return domain.Interaction{}, err
	}
	deleted, err := optionalBoolAttr(item, "deleted")
	if err != nil {
		return domain.Interaction{}, err
	}

	return domain.Interaction{
		ID:                id,
		ConversationID:    conversationID,
		CreatedAt:         createdAt.UTC(),
		Sender:            sender,
		SenderDisplayName: senderDisplayName,
		Tokens:            tokens,
		PrincipalName:     principalName,
		Deleted:           deleted,
		Status:            status,
		Type:              recordType,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func optionalIntAttr(item map[string]types.AttributeValue, key string) (*int, error) {
	v, ok := item[key]
	if !ok {
		return nil, nil
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return nil, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return &parsed, nil
}

func optionalBoolAttr(item map[string]types.AttributeValue, key string) (*bool, error) {
	v, ok := item[key]
	if !ok {
		return nil, nil
	}
	b, ok := v.(*types.AttributeValueMemberBOOL)
	if !ok {
		return nil, fmt.Errorf("repository: attribute %q is not a bool", key)
	}
	return &b.Value, nil
}
