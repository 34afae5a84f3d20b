package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/alanyoungcy/etherfuse-arb/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// Archiver implements domain.Archiver. Rows older than the cutoff are
// appended to a monthly JSONL object and then removed from the store.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	opps   domain.OpportunityStore
	execs  domain.ExecutionStore
	audit  domain.AuditStore
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver. reader may be nil, in which case an
// existing monthly object is overwritten instead of extended.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, opps domain.OpportunityStore, execs domain.ExecutionStore, audit domain.AuditStore) *Archiver {
	return &Archiver{writer: writer, reader: reader, opps: opps, execs: execs, audit: audit}
}

// ArchiveOpportunities moves opportunities detected before the cutoff to
// archive/opportunities/YYYY-MM.jsonl.
func (a *Archiver) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.opps.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	return archive(ctx, a, "opportunities", before, opps, a.opps.DeleteBefore)
}

// ArchiveExecutions moves executions to archive/executions/YYYY-MM.jsonl.
// An execution goes when it started before the cutoff or when its
// opportunity was detected before it, since pruning that opportunity
// removes its executions too.
func (a *Archiver) ArchiveExecutions(ctx context.Context, before time.Time) (int64, error) {
	execs, err := a.execs.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions query: %w", err)
	}

	opps, err := a.opps.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions opportunities query: %w", err)
	}
	oppIDs := make([]string, 0, len(opps))
	for _, o := range opps {
		oppIDs = append(oppIDs, o.ID)
	}
	linked, err := a.execs.ListByOpportunities(ctx, oppIDs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive executions by opportunity: %w", err)
	}
	execs = mergeExecutions(execs, linked)

	prune := func(ctx context.Context, before time.Time) (int64, error) {
		n, err := a.execs.DeleteBefore(ctx, before)
		if err != nil {
			return n, err
		}
		m, err := a.execs.DeleteByOpportunities(ctx, oppIDs)
		return n + m, err
	}
	return archive(ctx, a, "executions", before, execs, prune)
}

// mergeExecutions returns the union of both lists by id, oldest first.
func mergeExecutions(a, b []domain.Execution) []domain.Execution {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]domain.Execution, 0, len(a)+len(b))
	for _, e := range slices.Concat(a, b) {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		out = append(out, e)
	}
	slices.SortStableFunc(out, func(x, y domain.Execution) int { return x.StartedAt.Compare(y.StartedAt) })
	return out
}

func archive[T any](ctx context.Context, a *Archiver, kind string, before time.Time, records []T, prune func(context.Context, time.Time) (int64, error)) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := ArchivePath(kind, before)
	existing, err := a.existing(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s read %s: %w", kind, path, err)
	}
	body := append(existing, buf...)

	if err := a.writer.Put(ctx, path, bytes.NewReader(body), jsonlContentType); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(records))
	deleted, err := prune(ctx, before)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive %s prune: %w", kind, err)
	}

	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"path":    path,
		"count":   count,
		"deleted": deleted,
		"before":  before.UTC().Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}
	return count, nil
}

// existing returns the current contents of path, or nil when the object is
// absent.
func (a *Archiver) existing(ctx context.Context, path string) ([]byte, error) {
	if a.reader == nil {
		return nil, nil
	}
	rc, err := a.reader.Get(ctx, path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if n := len(data); n > 0 && data[n-1] != '\n' {
		data = append(data, '\n')
	}
	return data, nil
}

// ArchivePath is the object key for kind in the month of the cutoff:
//
//	archive/opportunities/2026-01.jsonl
func ArchivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.UTC().Format("2006-01"))
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
