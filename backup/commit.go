package backup

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/itisrohit/nanoindex/errs"
)

// DDBClient is the slice of the DynamoDB client CommitPointer needs,
// narrowed so tests can supply a fake.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// ErrConcurrentModification is returned when two writers race to commit
// the same next version.
var ErrConcurrentModification = errors.New("backup: concurrent modification detected")

// CommitPointer atomically advances the "CURRENT" snapshot key for a
// base URI using DynamoDB conditional writes, grounded on the
// teacher's blobstore/s3.DDBCommitStore. It gives multiple concurrent
// writers a safe compare-and-swap primitive that plain object storage
// lacks.
//
// Table schema: partition key base_uri (S), sort key version (N), plus
// a snapshot_key (S) attribute.
type CommitPointer struct {
	client  DDBClient
	table   string
	baseURI string
}

// NewCommitPointer returns a CommitPointer for baseURI in the given
// DynamoDB table.
func NewCommitPointer(client DDBClient, table, baseURI string) *CommitPointer {
	return &CommitPointer{client: client, table: table, baseURI: baseURI}
}

// Latest returns the most recently committed snapshot key, or "" if
// none has been committed yet.
func (c *CommitPointer) Latest(ctx context.Context) (string, error) {
	resp, err := c.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.table),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: c.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return "", errs.New(errs.KindStorageFatal, "backup.CommitPointer.Latest", err)
	}
	if len(resp.Items) == 0 {
		return "", nil
	}

	keyAttr, ok := resp.Items[0]["snapshot_key"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errs.New(errs.KindCorruptState, "backup.CommitPointer.Latest", errors.New("missing snapshot_key attribute"))
	}
	return keyAttr.Value, nil
}

// Commit advances the pointer to snapshotKey at the next version,
// failing with ErrConcurrentModification if another writer committed
// that version first.
func (c *CommitPointer) Commit(ctx context.Context, version int64, snapshotKey string) error {
	_, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			"base_uri":     &types.AttributeValueMemberS{Value: c.baseURI},
			"version":      &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", version)},
			"snapshot_key": &types.AttributeValueMemberS{Value: snapshotKey},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return errs.New(errs.KindStorageFatal, "backup.CommitPointer.Commit", err)
	}
	return nil
}
