package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/docvoice/internal/session"
)

var testTables = Tables{StandardTTS: "tts_jobs", VoiceClone: "voice_clone_jobs"}

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	calls []execCall
	err   error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, f.err
}

func TestPostgresInsertRoutesByFlow(t *testing.T) {
	db := &fakeExecer{}
	s := &PostgresStore{db: db, tables: testTables}
	ctx := context.Background()

	require.NoError(t, s.InsertJob(ctx, Record{
		Flow: session.FlowStandardTTS, UserID: "42", DocumentURL: "https://cdn/doc.docx",
		VoiceID: "en-US-AriaNeural", Status: StatusQueued,
	}))
	require.NoError(t, s.InsertJob(ctx, Record{
		Flow: session.FlowVoiceClone, UserID: "42", DocumentURL: "https://cdn/doc.docx",
		ReferenceAudioURL: "https://x/y/z.mp3", Status: StatusQueued,
	}))

	require.Len(t, db.calls, 2)
	require.Contains(t, db.calls[0].sql, `INSERT INTO "tts_jobs"`)
	require.Contains(t, db.calls[0].sql, "voice_id")
	require.Equal(t, "en-US-AriaNeural", db.calls[0].args[3])
	require.Equal(t, "Queued", db.calls[0].args[4])
	require.NotEmpty(t, db.calls[0].args[0])

	require.Contains(t, db.calls[1].sql, `INSERT INTO "voice_clone_jobs"`)
	require.Contains(t, db.calls[1].sql, "reference_audio_url")
	require.Equal(t, "https://x/y/z.mp3", db.calls[1].args[3])
}

func TestPostgresInsertWrapsError(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection refused")}
	s := &PostgresStore{db: db, tables: testTables}
	err := s.InsertJob(context.Background(), Record{Flow: session.FlowStandardTTS, UserID: "1", Status: StatusQueued})
	require.ErrorContains(t, err, "insert job")

	err = s.InsertJob(context.Background(), Record{Flow: "bogus"})
	require.ErrorIs(t, err, ErrUnknownFlow)
}

func TestPostgresUpdateOnlyTouchesVoiceTable(t *testing.T) {
	db := &fakeExecer{}
	s := &PostgresStore{db: db, tables: testTables}
	ctx := context.Background()

	require.NoError(t, s.UpdateJob(ctx, session.FlowVoiceClone, "42", Patch{VoiceID: "x"}))
	require.NoError(t, s.UpdateJob(ctx, session.FlowStandardTTS, "42", Patch{}))
	require.Empty(t, db.calls)

	require.NoError(t, s.UpdateJob(ctx, session.FlowStandardTTS, "42", Patch{VoiceID: "fr-FR-HenriNeural"}))
	require.Len(t, db.calls, 1)
	require.True(t, strings.HasPrefix(db.calls[0].sql, `UPDATE "tts_jobs"`))
	require.Contains(t, db.calls[0].sql, "status <> $3")
	require.Equal(t, []any{"fr-FR-HenriNeural", "42", "Queued"}, db.calls[0].args)
}

func TestPostgresInitSchemaSanitizesNames(t *testing.T) {
	db := &fakeExecer{}
	s := &PostgresStore{db: db, tables: Tables{StandardTTS: "DbextraData", VoiceClone: "DbextraData_elevenlabs"}}
	require.NoError(t, s.initSchema(context.Background()))
	require.Len(t, db.calls, 4)
	require.Contains(t, db.calls[0].sql, `"DbextraData"`)
	require.Contains(t, db.calls[2].sql, `"DbextraData_elevenlabs"`)
}

type stubDynamo struct {
	puts    []*dynamodb.PutItemInput
	queries []*dynamodb.QueryInput
	updates []*dynamodb.UpdateItemInput
	pages     []*dynamodb.QueryOutput
	putErr    error
	updateErr error
}

func (s *stubDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	s.puts = append(s.puts, in)
	return &dynamodb.PutItemOutput{}, s.putErr
}

func (s *stubDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	s.queries = append(s.queries, in)
	if len(s.pages) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

func (s *stubDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	s.updates = append(s.updates, in)
	return &dynamodb.UpdateItemOutput{}, s.updateErr
}

func TestNewDynamoStoreValidates(t *testing.T) {
	_, err := NewDynamoStore(nil, testTables)
	require.Error(t, err)
	_, err = NewDynamoStore(&stubDynamo{}, Tables{StandardTTS: "a"})
	require.Error(t, err)
}

func TestDynamoInsertJob(t *testing.T) {
	api := &stubDynamo{}
	s, err := NewDynamoStore(api, testTables)
	require.NoError(t, err)

	created := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertJob(context.Background(), Record{
		ID: "job-1", Flow: session.FlowVoiceClone, UserID: "42",
		DocumentURL: "https://cdn/doc.docx", ReferenceAudioURL: "https://x/y/z.mp3",
		Status: StatusQueued, CreatedAt: created,
	}))

	require.Len(t, api.puts, 1)
	in := api.puts[0]
	require.Equal(t, "voice_clone_jobs", *in.TableName)
	require.Equal(t, "USER#42", in.Item["PK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "JOB#2026-10-17T09:00:00Z#job-1", in.Item["SK"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "https://x/y/z.mp3", in.Item["referenceAudioUrl"].(*types.AttributeValueMemberS).Value)
	require.Equal(t, "Queued", in.Item["status"].(*types.AttributeValueMemberS).Value)
	_, hasVoice := in.Item["voiceId"]
	require.False(t, hasVoice)
}

func TestDynamoInsertJobWrapsError(t *testing.T) {
	api := &stubDynamo{putErr: errors.New("throttled")}
	s, err := NewDynamoStore(api, testTables)
	require.NoError(t, err)
	err = s.InsertJob(context.Background(), Record{Flow: session.FlowStandardTTS, UserID: "1"})
	require.ErrorContains(t, err, "throttled")
}

func TestDynamoUpdateJobPaginates(t *testing.T) {
	key := func(sk string) map[string]types.AttributeValue {
		return map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: "USER#42"},
			"SK": &types.AttributeValueMemberS{Value: sk},
		}
	}
	api := &stubDynamo{pages: []*dynamodb.QueryOutput{
		{Items: []map[string]types.AttributeValue{key("JOB#1")}, LastEvaluatedKey: key("JOB#1")},
		{Items: []map[string]types.AttributeValue{key("JOB#2")}},
	}}
	s, err := NewDynamoStore(api, testTables)
	require.NoError(t, err)

	require.NoError(t, s.UpdateJob(context.Background(), session.FlowStandardTTS, "42", Patch{VoiceID: "en-US-AriaNeural"}))
	require.Len(t, api.queries, 2)
	require.Nil(t, api.queries[0].ExclusiveStartKey)
	require.NotNil(t, api.queries[1].ExclusiveStartKey)
	require.Len(t, api.updates, 2)
	require.Equal(t, "tts_jobs", *api.updates[0].TableName)
	require.Equal(t, "en-US-AriaNeural", api.updates[1].ExpressionAttributeValues[":voice"].(*types.AttributeValueMemberS).Value)
}

func TestDynamoUpdateJobSkipsQueuedItems(t *testing.T) {
	item := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "USER#42"},
		"SK": &types.AttributeValueMemberS{Value: "JOB#1"},
	}
	api := &stubDynamo{
		pages:     []*dynamodb.QueryOutput{{Items: []map[string]types.AttributeValue{item}}},
		updateErr: &types.ConditionalCheckFailedException{Message: aws.String("queued")},
	}
	s, err := NewDynamoStore(api, testTables)
	require.NoError(t, err)

	require.NoError(t, s.UpdateJob(context.Background(), session.FlowStandardTTS, "42", Patch{VoiceID: "en-US-AriaNeural"}))
	q := api.queries[0]
	require.Equal(t, "#status <> :queued", *q.FilterExpression)
	require.Equal(t, "status", q.ExpressionAttributeNames["#status"])
	require.Equal(t, "Queued", q.ExpressionAttributeValues[":queued"].(*types.AttributeValueMemberS).Value)
	require.Len(t, api.updates, 1)
	require.Equal(t, "#status <> :queued", *api.updates[0].ConditionExpression)

	api = &stubDynamo{
		pages:     []*dynamodb.QueryOutput{{Items: []map[string]types.AttributeValue{item}}},
		updateErr: errors.New("throttled"),
	}
	s, err = NewDynamoStore(api, testTables)
	require.NoError(t, err)
	require.ErrorContains(t, s.UpdateJob(context.Background(), session.FlowStandardTTS, "42", Patch{VoiceID: "x"}), "throttled")
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.InsertJob(ctx, Record{Flow: session.FlowStandardTTS, UserID: "1", VoiceID: "a", Status: StatusCompleted}))
	require.NoError(t, s.InsertJob(ctx, Record{Flow: session.FlowStandardTTS, UserID: "2", VoiceID: "a", Status: StatusCompleted}))
	require.NoError(t, s.InsertJob(ctx, Record{Flow: session.FlowStandardTTS, UserID: "1", VoiceID: "a", Status: StatusQueued}))
	require.ErrorIs(t, s.InsertJob(ctx, Record{Flow: "nope"}), ErrUnknownFlow)

	require.NoError(t, s.UpdateJob(ctx, session.FlowStandardTTS, "1", Patch{VoiceID: "b"}))
	rows := s.Jobs()
	require.Len(t, rows, 3)
	require.Equal(t, "b", rows[0].VoiceID)
	require.Equal(t, "a", rows[1].VoiceID)
	require.Equal(t, "a", rows[2].VoiceID, "queued rows are never patched")
	require.NotEmpty(t, rows[0].ID)
	require.False(t, rows[0].CreatedAt.IsZero())
}

func TestNewStoreSelection(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(ctx, Options{})
	require.NoError(t, err)
	require.IsType(t, &InMemoryStore{}, s)

	_, err = NewStore(ctx, Options{Backend: "postgres"})
	require.Error(t, err)

	s, err = NewStore(ctx, Options{Backend: "dynamodb", Dynamo: &stubDynamo{}, Tables: testTables})
	require.NoError(t, err)
	require.IsType(t, &DynamoStore{}, s)

	_, err = NewStore(ctx, Options{Backend: "mongo"})
	require.Error(t, err)
}

func TestResolveBackend(t *testing.T) {
	require.Equal(t, BackendMemory, ResolveBackend("", ""))
	require.Equal(t, BackendPostgres, ResolveBackend(" ", "postgres://db"))
	require.Equal(t, BackendDynamoDB, ResolveBackend("DynamoDB", "postgres://db"))
}
