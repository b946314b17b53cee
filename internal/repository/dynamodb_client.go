package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"agent-relay/internal/domain"
)

const (
	skPrefixMsg = "MSG#"
	skMeta      = "META#"

	// DefaultLogName is the partition used when no log name is configured.
	DefaultLogName = "default"

	maxTransactItems = 100 // DynamoDB TransactWriteItems limit
	maxMarkAttempts  = 3
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ Store = (*Client)(nil)

// Client stores one relay log in a DynamoDB table. All items of a log share
// the partition key LOG#<name>; a META# item holds the id counter and every
// message lives under MSG#<zero-padded id>. Read state is a string set, so
// membership is exact.
type Client struct {
	api       dynamodbAPI
	tableName string
	logName   string
	newToken  func() string
	logger    *slog.Logger
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName, logName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	logName = strings.TrimSpace(logName)
	if logName == "" {
		logName = DefaultLogName
	}
	return &Client{api: api, tableName: tableName, logName: logName, newToken: uuid.NewString, logger: slog.Default()}, nil
}

// logPK returns the DynamoDB partition key for a log.
func logPK(logName string) string {
	return "LOG#" + logName
}

// msgSK returns the sort key for a message id. Zero padding keeps
// lexicographic order equal to id order.
func msgSK(id int64) string {
	return fmt.Sprintf("%s%020d", skPrefixMsg, id)
}

func (c *Client) key(sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: logPK(c.logName)},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// Close is a no-op; the SDK client has no connection to release.
func (c *Client) Close() error {
	return nil
}

// Append reserves the next id from the counter item and writes the message.
// A failed write leaves a gap in the id sequence but never a duplicate.
func (c *Client) Append(ctx context.Context, sender, content string) (domain.Message, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(c.tableName),
		Key:              c.key(skMeta),
		UpdateExpression: aws.String("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: Append next id: %w", err)
	}
	if out == nil {
		return domain.Message{}, errors.New("repository: Append next id: empty response")
	}
	id, err := intAttr(out.Attributes, "seq")
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: Append decode seq: %w", err)
	}

	msg := domain.Message{
		ID:        id,
		Sender:    sender,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                c.messageItem(msg),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("repository: Append: %w", err)
	}
	return msg, nil
}

// UnreadFor queries messages agentID has not read and marks them with
// conditional transactional updates. When another reader marks one of the
// same messages first the transaction is cancelled and the query re-runs, so
// each message is delivered to an agent once. Messages from chunks that
// committed before a failure are already marked, so they are returned and the
// failure is only logged.
func (c *Client) UnreadFor(ctx context.Context, agentID string) ([]domain.Message, error) {
	if strings.TrimSpace(agentID) == "" {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAgentID, agentID)
	}

	var delivered []domain.Message
	for attempt := 1; ; attempt++ {
		unread, err := c.queryUnread(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("repository: UnreadFor: %w", err)
		}
		marked, err := c.markRead(ctx, agentID, unread)
		delivered = append(delivered, unread[:marked]...)
		if err == nil {
			break
		}
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) && attempt < maxMarkAttempts {
			continue
		}
		if len(delivered) == 0 {
			return nil, fmt.Errorf("repository: UnreadFor mark: %w", err)
		}
		c.logger.WarnContext(ctx, "partial mark, returning committed messages",
			"agent_id", agentID, "delivered", len(delivered), "attempt", attempt, "err", err)
		break
	}

	sort.Slice(delivered, func(i, j int) bool { return delivered[i].ID < delivered[j].ID })
	for i := range delivered {
		delivered[i].ReadBy = append(delivered[i].ReadBy, agentID)
	}
	return delivered, nil
}

// queryUnread pages through the log in ascending id order.
func (c *Client) queryUnread(ctx context.Context, agentID string) ([]domain.Message, error) {
	var (
		msgs     []domain.Message
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			FilterExpression:       aws.String("sender <> :agent AND (attribute_not_exists(read_by) OR NOT contains(read_by, :agent))"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: logPK(c.logName)},
				":prefix": &types.AttributeValueMemberS{Value: skPrefixMsg},
				":agent":  &types.AttributeValueMemberS{Value: agentID},
			},
			ConsistentRead:    aws.Bool(true),
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		if out == nil {
			break
		}
		for _, item := range out.Items {
			msg, err := itemToMessage(item)
			if err != nil {
				return nil, fmt.Errorf("unmarshal: %w", err)
			}
			msgs = append(msgs, msg)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return msgs, nil
}

// markRead adds agentID to read_by for msgs, one transaction per chunk of
// maxTransactItems. It returns how many leading messages were committed.
func (c *Client) markRead(ctx context.Context, agentID string, msgs []domain.Message) (int, error) {
	for start := 0; start < len(msgs); start += maxTransactItems {
		end := min(start+maxTransactItems, len(msgs))
		items := make([]types.TransactWriteItem, 0, end-start)
		for _, msg := range msgs[start:end] {
			items = append(items, types.TransactWriteItem{
				Update: &types.Update{
					TableName:           aws.String(c.tableName),
					Key:                 c.key(msgSK(msg.ID)),
					UpdateExpression:    aws.String("ADD read_by :agentSet"),
					ConditionExpression: aws.String("attribute_exists(PK) AND (attribute_not_exists(read_by) OR NOT contains(read_by, :agent))"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":agentSet": &types.AttributeValueMemberSS{Value: []string{agentID}},
						":agent":    &types.AttributeValueMemberS{Value: agentID},
					},
				},
			})
		}
		_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems:      items,
			ClientRequestToken: aws.String(c.newToken()),
		})
		if err != nil {
			return start, err
		}
	}
	return len(msgs), nil
}

func (c *Client) messageItem(msg domain.Message) map[string]types.AttributeValue {
	item := c.key(msgSK(msg.ID))
	item["id"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(msg.ID, 10)}
	item["sender"] = &types.AttributeValueMemberS{Value: msg.Sender}
	item["message"] = &types.AttributeValueMemberS{Value: msg.Content}
	item["timestamp"] = &types.AttributeValueMemberS{Value: msg.CreatedAt.UTC().Format(time.RFC3339Nano)}
	return item
}

// itemToMessage converts a DynamoDB attribute map to a Message.
func itemToMessage(item map[string]types.AttributeValue) (domain.Message, error) {
	id, err := intAttr(item, "id")
	if err != nil {
		return domain.Message{}, err
	}
	sender, err := strAttr(item, "sender")
	if err != nil {
		return domain.Message{}, err
	}
	content, _ := strAttr(item, "message") // allow empty
	msg := domain.Message{ID: id, Sender: sender, Content: content}

	if ts, err := strAttr(item, "timestamp"); err == nil {
		if parsed, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			msg.CreatedAt = parsed
		}
	}
	if v, ok := item["read_by"].(*types.AttributeValueMemberSS); ok {
		msg.ReadBy = append([]string(nil), v.Value...)
	}
	return msg, nil
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

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
