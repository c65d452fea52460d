package s3

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spikego/blobstore"
)

// fakeCommitLog implements DDBClient over an in-memory version table.
// beforePut, when set, runs between the caller's read and its conditional
// write to simulate a concurrent publisher.
type fakeCommitLog struct {
	mu        sync.Mutex
	rows      map[uint64]string
	queryErr  error
	putErr    error
	beforePut func(l *fakeCommitLog)
}

var _ DDBClient = (*fakeCommitLog)(nil)

func newFakeCommitLog() *fakeCommitLog {
	return &fakeCommitLog{rows: make(map[uint64]string)}
}

func (l *fakeCommitLog) insert(version uint64, manifestPath string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows[version] = manifestPath
}

func (l *fakeCommitLog) Query(_ context.Context, _ *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.queryErr != nil {
		return nil, l.queryErr
	}

	var latest uint64
	for version := range l.rows {
		if version > latest {
			latest = version
		}
	}
	if latest == 0 {
		return &dynamodb.QueryOutput{}, nil
	}

	return &dynamodb.QueryOutput{Items: []map[string]types.AttributeValue{{
		"version":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", latest)},
		"manifest_path": &types.AttributeValueMemberS{Value: l.rows[latest]},
	}}}, nil
}

func (l *fakeCommitLog) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if l.beforePut != nil {
		l.beforePut(l)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.putErr != nil {
		return nil, l.putErr
	}

	versionAttr := params.Item["version"].(*types.AttributeValueMemberN)
	var version uint64
	if _, err := fmt.Sscanf(versionAttr.Value, "%d", &version); err != nil {
		return nil, err
	}
	if _, exists := l.rows[version]; exists {
		return nil, &types.ConditionalCheckFailedException{}
	}

	l.rows[version] = params.Item["manifest_path"].(*types.AttributeValueMemberS).Value
	return &dynamodb.PutItemOutput{}, nil
}

func readCurrent(t *testing.T, store *CommitStore) string {
	t.Helper()

	blob, err := store.Open(context.Background(), CurrentName)
	require.NoError(t, err)
	defer blob.Close()

	buf := make([]byte, blob.Size())
	n, err := blob.ReadAt(context.Background(), buf, 0)
	require.NoError(t, err)

	return string(buf[:n])
}

func TestCommitStore(t *testing.T) {
	ctx := context.Background()

	t.Run("fresh log has no current version", func(t *testing.T) {
		store := NewCommitStore(nil, newFakeCommitLog(), "commits", "s3://bucket/a1")

		_, err := store.Open(ctx, CurrentName)
		require.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("commits are versioned and current follows the latest", func(t *testing.T) {
		log := newFakeCommitLog()
		store := NewCommitStore(nil, log, "commits", "s3://bucket/a1")

		require.NoError(t, store.Put(ctx, CurrentName, []byte("v1/manifest.json")))
		assert.Equal(t, "v1/manifest.json", readCurrent(t, store))

		require.NoError(t, store.Put(ctx, CurrentName, []byte("v2/manifest.json")))
		assert.Equal(t, "v2/manifest.json", readCurrent(t, store))
		assert.Len(t, log.rows, 2)
	})

	t.Run("concurrent publisher loses the conditional write", func(t *testing.T) {
		log := newFakeCommitLog()
		log.insert(1, "v1/manifest.json")
		log.beforePut = func(l *fakeCommitLog) {
			l.insert(2, "other-writer/manifest.json")
			l.beforePut = nil
		}
		store := NewCommitStore(nil, log, "commits", "s3://bucket/a1")

		err := store.Put(ctx, CurrentName, []byte("v2/manifest.json"))
		require.ErrorIs(t, err, ErrConcurrentCommit)

		// The winning writer's version stands; a retry lands on top of it.
		assert.Equal(t, "other-writer/manifest.json", readCurrent(t, store))
		require.NoError(t, store.Put(ctx, CurrentName, []byte("v2/manifest.json")))
		assert.Equal(t, "v2/manifest.json", readCurrent(t, store))
	})

	t.Run("query errors propagate", func(t *testing.T) {
		log := newFakeCommitLog()
		log.queryErr = assert.AnError
		store := NewCommitStore(nil, log, "commits", "s3://bucket/a1")

		_, err := store.Open(ctx, CurrentName)
		require.ErrorIs(t, err, assert.AnError)
		require.ErrorIs(t, store.Put(ctx, CurrentName, []byte("v1/manifest.json")), assert.AnError)
	})

	t.Run("non-conditional put errors propagate", func(t *testing.T) {
		log := newFakeCommitLog()
		log.putErr = assert.AnError
		store := NewCommitStore(nil, log, "commits", "s3://bucket/a1")

		err := store.Put(ctx, CurrentName, []byte("v1/manifest.json"))
		require.ErrorIs(t, err, assert.AnError)
		require.NotErrorIs(t, err, ErrConcurrentCommit)
	})
}
