package runstore

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alexisbeaulieu97/reportcheck/internal/objectstore"
	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// Object stores records as JSON objects under a key prefix in a bucket.
type Object struct {
	bucket objectstore.Bucket
	prefix string
	mu     sync.Mutex
}

// NewObject returns a store writing to <prefix><id>.json in bucket.
func NewObject(bucket objectstore.Bucket, prefix string) *Object {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Object{bucket: bucket, prefix: prefix}
}

func (o *Object) key(id string) string {
	return o.prefix + id + ".json"
}

// Save uploads record unless a final version already exists.
func (o *Object) Save(ctx context.Context, record *workflow.RunRecord) error {
	if err := validateID(record.ID); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	existing, err := o.read(ctx, record.ID)
	if err != nil && !isNotFound(err) {
		return err
	}
	if err := checkWritable(existing, record); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	return o.bucket.Put(ctx, o.key(record.ID), data, "application/json")
}

// Load fetches the record with id.
func (o *Object) Load(ctx context.Context, id string) (*workflow.RunRecord, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return o.read(ctx, id)
}

// List summarises every record under the prefix, newest first.
func (o *Object) List(ctx context.Context) ([]Summary, error) {
	keys, err := o.bucket.List(ctx, o.prefix)
	if err != nil {
		return nil, err
	}
	var out []Summary
	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(key, o.prefix), ".json")
		if validateID(id) != nil {
			continue
		}
		record, err := o.read(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, Summarize(record))
	}
	sortSummaries(out)
	return out, nil
}

func (o *Object) read(ctx context.Context, id string) (*workflow.RunRecord, error) {
	data, err := o.bucket.Get(ctx, o.key(id))
	if err != nil {
		if isNotFound(err) {
			return nil, rcerrors.NewNotFoundError("run", id)
		}
		return nil, err
	}
	var record workflow.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, rcerrors.NewParseError(o.key(id), 0, err)
	}
	return &record, nil
}

func isNotFound(err error) bool {
	var notFound *rcerrors.NotFoundError
	return stdErrors.As(err, &notFound)
}
