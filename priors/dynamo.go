package priors

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

const (
	DefaultTable = "metalign-priors"

	// DynamoDB refuses batch writes of more than 25 items.
	maxBatchWrite = 25
)

// DynamoStore keeps one item per (piece, onset): PK is the piece name, SK the
// onset in microseconds and Prior the probability.
type DynamoStore struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

func NewDynamoStore(client dynamodbiface.DynamoDBAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// NewLocalClient connects to a DynamoDB endpoint such as DynamoDB Local.
func NewLocalClient(endpoint, region string) (dynamodbiface.DynamoDBAPI, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:   aws.String(region),
		Endpoint: aws.String(endpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("creating DynamoDB session: %w", err)
	}
	return dynamodb.New(sess), nil
}

func (s *DynamoStore) Load(ctx context.Context, piece string) (*Table, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":pk": {S: aws.String(piece)},
		},
	}

	var entries []Entry
	var parseErr error
	err := s.client.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, last bool) bool {
		for _, item := range page.Items {
			e, err := parseItem(item)
			if err != nil {
				parseErr = err
				return false
			}
			entries = append(entries, e)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("querying priors for %q: %w", piece, err)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("priors for %q: %w", piece, parseErr)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, piece)
	}

	slog.Debug("loaded priors", "piece", piece, "entries", len(entries))
	return NewTable(piece, entries)
}

func parseItem(item map[string]*dynamodb.AttributeValue) (Entry, error) {
	var e Entry
	sk, prior := item["SK"], item["Prior"]
	if sk == nil || sk.N == nil || prior == nil || prior.N == nil {
		return e, fmt.Errorf("item is missing SK or Prior")
	}
	onset, err := strconv.ParseInt(*sk.N, 10, 64)
	if err != nil {
		return e, fmt.Errorf("bad onset %q: %w", *sk.N, err)
	}
	p, err := strconv.ParseFloat(*prior.N, 64)
	if err != nil {
		return e, fmt.Errorf("bad prior %q: %w", *prior.N, err)
	}
	e.Onset = onset
	e.Prior = p
	return e, nil
}

func (s *DynamoStore) Save(ctx context.Context, t *Table) error {
	for start := 0; start < len(t.Entries); start += maxBatchWrite {
		end := min(start+maxBatchWrite, len(t.Entries))

		var requests []*dynamodb.WriteRequest
		for _, e := range t.Entries[start:end] {
			requests = append(requests, &dynamodb.WriteRequest{
				PutRequest: &dynamodb.PutRequest{Item: map[string]*dynamodb.AttributeValue{
					"PK":    {S: aws.String(t.Piece)},
					"SK":    {N: aws.String(strconv.FormatInt(e.Onset, 10))},
					"Prior": {N: aws.String(strconv.FormatFloat(e.Prior, 'g', -1, 64))},
				}},
			})
		}

		items := map[string][]*dynamodb.WriteRequest{s.table: requests}
		for len(items) > 0 {
			out, err := s.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{RequestItems: items})
			if err != nil {
				return fmt.Errorf("saving priors for %q: %w", t.Piece, err)
			}
			items = out.UnprocessedItems
		}
	}
	return nil
}
