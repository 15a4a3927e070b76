package export

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/alexisbeaulieu97/reportcheck/internal/objectstore"
	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
)

// KeyTimeLayout formats the timestamp prefix of an export folder.
const KeyTimeLayout = "20060102_150405"

// ObjectSink uploads the inputs, outputs, results document and a run log of
// each review under <prefix><timestamp>_<report>/.
type ObjectSink struct {
	bucket objectstore.Bucket
	prefix string
}

// NewObjectSink builds a sink writing under prefix.
func NewObjectSink(bucket objectstore.Bucket, prefix string) *ObjectSink {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ObjectSink{bucket: bucket, prefix: prefix}
}

// Folder returns the key prefix used for item.
func (s *ObjectSink) Folder(item Item) string {
	return fmt.Sprintf("%s%s_%s/", s.prefix, item.Result.Document.Timestamp.UTC().Format(KeyTimeLayout), reportBase(item.Name))
}

// Publish implements Sink.
func (s *ObjectSink) Publish(ctx context.Context, item Item) error {
	if err := validate(item); err != nil {
		return err
	}
	doc := item.Result.Document
	folder := s.Folder(item)

	type object struct {
		key         string
		body        []byte
		contentType string
	}
	var objects []object
	text := func(key, content string) {
		if strings.TrimSpace(content) == "" {
			return
		}
		objects = append(objects, object{key: key, body: []byte(content), contentType: "text/plain; charset=utf-8"})
	}

	text("inputs/report.txt", doc.Inputs.Content.Report)
	text("inputs/passport.txt", doc.Inputs.Content.Passport)
	text("inputs/criteria.txt", doc.Inputs.Content.Criteria)
	text("outputs/check_results.md", doc.Outputs.Content.CheckResults)
	text("outputs/criteria.md", doc.Outputs.Content.CheckCriteria)
	if doc.Outputs.Content.Feedback != nil {
		text("outputs/feedback.md", *doc.Outputs.Content.Feedback)
	}

	results, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	objects = append(objects,
		object{key: "results.json", body: results, contentType: "application/json"},
		object{key: "run.log", body: RunLog(item.Result.Record), contentType: "text/plain; charset=utf-8"},
	)

	for _, obj := range objects {
		if err := s.bucket.Put(ctx, path.Join(folder, obj.key), obj.body, obj.contentType); err != nil {
			return fmt.Errorf("upload %s: %w", obj.key, err)
		}
	}
	return nil
}

// RunLog renders a record as one line per stage plus the outcome.
func RunLog(record *workflow.RunRecord) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run %s started model=%s\n", record.StartedAt.UTC().Format(time.RFC3339), record.ID, record.Model)
	for _, snap := range record.Snapshots {
		fmt.Fprintf(&b, "%s stage %s -> %s duration=%s model_calls=%d\n",
			snap.At.UTC().Format(time.RFC3339), snap.Stage, snap.State, snap.Duration.Round(time.Millisecond), snap.ModelCalls)
	}
	if t := record.Terminal; t != nil {
		line := fmt.Sprintf("%s run %s %s", record.FinishedAt.UTC().Format(time.RFC3339), record.ID, t.State)
		if t.FailedStage != "" {
			line += fmt.Sprintf(" stage=%s error=%q", t.FailedStage, t.Error)
		}
		b.WriteString(line + "\n")
	}
	return []byte(b.String())
}
