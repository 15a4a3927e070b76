package export

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/reportcheck/internal/objectstore"
	"github.com/alexisbeaulieu97/reportcheck/internal/review"
	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

func sampleItem(skipFeedback bool) Item {
	started := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	input := workflow.RunState{Passport: "passport", Report: "report body", Criteria: "criteria", SkipFeedback: skipFeedback}
	final := input.Clone()
	final.StructuredCriteria = workflow.Text("adapted")
	final.CheckResults = workflow.Text("findings")
	if !skipFeedback {
		final.Feedback = workflow.Text("well done")
	}

	record := &workflow.RunRecord{
		ID:        "run-1",
		Model:     "DeepSeek Chat",
		Input:     input,
		StartedAt: started,
		Snapshots: []workflow.Snapshot{
			{State: workflow.RubricAdapted, Stage: workflow.StageRubricAdapter, RunState: final, Duration: time.Second, ModelCalls: 1, At: started.Add(time.Second)},
		},
		Terminal:   &workflow.Terminal{State: workflow.End, Reached: workflow.RubricAdapted},
		FinishedAt: started.Add(2 * time.Second),
	}
	doc := review.NewDocument(record, []string{"My Report.docx"}, review.PromptsInfo{})
	return Item{Name: "My Report.docx", Result: &review.Result{Record: record, State: final, Document: doc}}
}

func TestObjectSinkUploadsFolder(t *testing.T) {
	t.Parallel()

	bucket := objectstore.NewMemory()
	sink := NewObjectSink(bucket, "exports")
	item := sampleItem(false)

	require.NoError(t, sink.Publish(context.Background(), item))

	folder := "exports/20240309_140506_My_Report/"
	assert.Equal(t, folder, sink.Folder(item))

	keys, err := bucket.List(context.Background(), folder)
	require.NoError(t, err)
	assert.Equal(t, []string{
		folder + "inputs/criteria.txt",
		folder + "inputs/passport.txt",
		folder + "inputs/report.txt",
		folder + "outputs/check_results.md",
		folder + "outputs/criteria.md",
		folder + "outputs/feedback.md",
		folder + "results.json",
		folder + "run.log",
	}, keys)

	obj, ok := bucket.Object(folder + "results.json")
	require.True(t, ok)
	assert.Equal(t, "application/json", obj.ContentType)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(obj.Data, &doc))
	assert.Equal(t, "run-1", doc["session_id"])

	log, ok := bucket.Object(folder + "run.log")
	require.True(t, ok)
	assert.Contains(t, string(log.Data), "stage RubricAdapter -> RubricAdapted")
	assert.Contains(t, string(log.Data), "run run-1 END")
}

func TestObjectSinkSkipsMissingFeedback(t *testing.T) {
	t.Parallel()

	bucket := objectstore.NewMemory()
	sink := NewObjectSink(bucket, "")
	item := sampleItem(true)

	require.NoError(t, sink.Publish(context.Background(), item))
	_, ok := bucket.Object(sink.Folder(item) + "outputs/feedback.md")
	assert.False(t, ok)
}

func TestPublishRequiresResult(t *testing.T) {
	t.Parallel()

	err := NewObjectSink(objectstore.NewMemory(), "").Publish(context.Background(), Item{Name: "a.txt"})
	require.Error(t, err)
}

func TestBuildQueries(t *testing.T) {
	t.Parallel()

	pg, err := buildQueries(DriverPostgres, "reviews")
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO reviews (session_id, created_at, llm, status, failed_stage, document) VALUES ($1, $2, $3, $4, $5, $6)", pg.insert)
	assert.Equal(t, "UPDATE reviews SET rating = $1, comment = $2 WHERE session_id = $3", pg.feedback)
	assert.Contains(t, pg.create, "JSONB")

	my, err := buildQueries(DriverMySQL, "reviews")
	require.NoError(t, err)
	assert.Equal(t, "INSERT INTO reviews (session_id, created_at, llm, status, failed_stage, document) VALUES (?, ?, ?, ?, ?, ?)", my.insert)
	assert.Contains(t, my.create, "DATETIME(6)")
}

func TestBuildQueriesRejectsBadInput(t *testing.T) {
	t.Parallel()

	var validationErr *rcerrors.ValidationError

	_, err := buildQueries(DriverPostgres, "reviews; DROP TABLE x")
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "export.table", validationErr.Field)

	_, err = buildQueries("sqlite", "reviews")
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "export.driver", validationErr.Field)
}

func TestUpdateFeedbackValidatesRating(t *testing.T) {
	t.Parallel()

	sink, err := NewSQLSink(nil, DriverMySQL, "reviews")
	require.NoError(t, err)

	err = sink.UpdateFeedback(context.Background(), "run-1", review.UserFeedback{Rating: 7})
	var validationErr *rcerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

type failingSink struct{ calls int }

func (f *failingSink) Publish(context.Context, Item) error {
	f.calls++
	return stdErrors.New("unreachable")
}

func TestMySQLDSNCountsMatchedRows(t *testing.T) {
	t.Parallel()

	dsn, err := mysqlDSN("review:secret@tcp(db:3306)/reports?parseTime=true")
	require.NoError(t, err)
	assert.Contains(t, dsn, "clientFoundRows=true")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "tcp(db:3306)/reports")

	_, err = mysqlDSN("not a dsn")
	var validationErr *rcerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "export.dsn", validationErr.Field)
}

func TestFanoutContinuesPastFailures(t *testing.T) {
	t.Parallel()

	first, second := &failingSink{}, &failingSink{}
	err := Fanout{Sinks: []Sink{first, second}}.Publish(context.Background(), sampleItem(false))
	require.NoError(t, err)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestReportBase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "team_alpha", reportBase("dir/team alpha.pdf"))
	assert.Equal(t, "report", reportBase(""))
}
