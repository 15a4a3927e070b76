// Package export hands finished reviews to external record keepers: a SQL
// table and an object store. Export never decides the outcome of a review.
package export

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alexisbeaulieu97/reportcheck/internal/logger"
	"github.com/alexisbeaulieu97/reportcheck/internal/review"
)

// Item is a finished review ready for export.
type Item struct {
	// Name is the report file name the review was run for.
	Name   string
	Result *review.Result
}

// Sink stores an exported review.
type Sink interface {
	Publish(ctx context.Context, item Item) error
}

// Fanout publishes to every sink, logging failures instead of returning them.
type Fanout struct {
	Sinks []Sink
	Log   *logger.Logger
}

// Publish implements Sink. It always returns nil.
func (f Fanout) Publish(ctx context.Context, item Item) error {
	for _, sink := range f.Sinks {
		if err := sink.Publish(ctx, item); err != nil {
			f.Log.Error(err, "export failed", "report", item.Name, "sink", fmt.Sprintf("%T", sink))
		}
	}
	return nil
}

func validate(item Item) error {
	if item.Result == nil || item.Result.Record == nil {
		return fmt.Errorf("export %q: no review result", item.Name)
	}
	return nil
}

// reportBase is the report name without directory or extension, with path
// separators and spaces replaced so it can be used in object keys.
func reportBase(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ':
			return '_'
		}
		return r
	}, base)
	if base == "" || base == "." {
		return "report"
	}
	return base
}
