package items

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/pivotstack/worktrack/pkg/types"
)

// Rate-limit retry policy for individual field writes. Transport-level
// retries (timeouts, 5xx) live in the client; this layer only handles the
// remote's application-level throttling.
const (
	writeMaxRetries = 3
	writeRetryBase  = time.Second
)

// UpdateRequest names the edits of one update call. Zero-valued fixed
// fields are skipped; Extra carries arbitrary field-name → value pairs and
// is the place for explicit clears (empty value on a multi-select field).
type UpdateRequest struct {
	Name        string
	Priority    string
	Description string
	Status      string
	Assignee    string
	Extra       map[string]any
}

func (r UpdateRequest) empty() bool {
	return r.Name == "" && r.Priority == "" && r.Description == "" &&
		r.Status == "" && r.Assignee == "" && len(r.Extra) == 0
}

// UpdateIssue edits one work item with per-field fault tolerance.
func (p *Provider) UpdateIssue(ctx context.Context, id int64, req UpdateRequest) ([]types.UpdateResult, error) {
	return p.BatchUpdateIssues(ctx, []int64{id}, req)
}

// BatchUpdateIssues applies the same edits to several work items. Every
// named field is resolved exactly once; a field that fails to resolve
// becomes a failed result replicated per target and is excluded from the
// writes. A single target gets one optimistic compound write, falling back
// to per-field writes on any failure; multiple targets always write per
// (target, field). Partial failure is reported in the results, never as an
// error; the call errors only when no field resolved at all.
func (p *Provider) BatchUpdateIssues(ctx context.Context, ids []int64, req UpdateRequest) ([]types.UpdateResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if req.empty() {
		return nil, types.ErrNothingToUpdate
	}
	wsKey, typeKey, err := p.scope(ctx)
	if err != nil {
		return nil, err
	}

	patches, failed := p.resolveUpdateFields(ctx, wsKey, typeKey, req)

	var results []types.UpdateResult
	for _, id := range ids {
		for _, f := range failed {
			f.IssueID = id
			results = append(results, f)
		}
	}
	if len(patches) == 0 {
		if len(results) > 0 {
			return results, nil
		}
		return nil, types.ErrNothingToUpdate
	}

	if len(ids) == 1 {
		id := ids[0]
		if err := p.compoundWrite(ctx, wsKey, typeKey, id, patches); err == nil {
			for _, patch := range patches {
				results = append(results, types.UpdateResult{
					Success:   true,
					IssueID:   id,
					FieldName: patch.Name,
					Message:   "updated",
					Value:     patch.Value.Wire(),
				})
			}
			p.itemNames.Delete(id)
			return results, nil
		} else {
			p.logger.Warn("compound update failed, retrying per field",
				slog.Int64("id", id),
				slog.Bool("rate_limited", types.IsRateLimited(err)),
				slog.String("error", err.Error()))
		}
	}

	// Per-(target, field) writes. Failures never cancel siblings; each
	// slot reports its own result.
	slots := make([]types.UpdateResult, len(ids)*len(patches))
	var wg sync.WaitGroup
	for i, id := range ids {
		for j, patch := range patches {
			wg.Add(1)
			go func(slot int, id int64, patch types.FieldPatch) {
				defer wg.Done()
				slots[slot] = p.writeField(ctx, wsKey, typeKey, id, patch)
			}(i*len(patches)+j, id, patch)
		}
	}
	wg.Wait()
	for _, slot := range slots {
		if slot.Success {
			p.itemNames.Delete(slot.IssueID)
		}
	}
	return append(results, slots...), nil
}

func (p *Provider) compoundWrite(ctx context.Context, wsKey, typeKey string, id int64, patches []types.FieldPatch) error {
	if err := p.writeSem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.writeSem.Release(1)
	return p.api.UpdateItem(ctx, wsKey, typeKey, id, patches)
}

// writeField writes one field of one item, retrying with exponential
// backoff plus jitter on rate-limit responses only.
func (p *Provider) writeField(ctx context.Context, wsKey, typeKey string, id int64, patch types.FieldPatch) types.UpdateResult {
	result := types.UpdateResult{
		IssueID:   id,
		FieldName: patch.Name,
		Value:     patch.Value.Wire(),
	}
	for attempt := 0; attempt <= writeMaxRetries; attempt++ {
		err := p.compoundWrite(ctx, wsKey, typeKey, id, []types.FieldPatch{patch})
		if err == nil {
			result.Success = true
			result.Message = "updated"
			return result
		}
		if !types.IsRateLimited(err) {
			result.Message = fmt.Sprintf("update of %q failed: %s", patch.Name, err.Error())
			return result
		}
		if attempt == writeMaxRetries {
			break
		}
		p.logger.Warn("rate limited, backing off",
			slog.Int64("id", id),
			slog.String("field", patch.Name),
			slog.Int("attempt", attempt+1))
		if serr := sleepJittered(ctx, p.retryBase<<attempt); serr != nil {
			result.Message = serr.Error()
			return result
		}
	}
	result.Message = "retries exhausted"
	return result
}

// sleepJittered waits delay plus proportional jitter, honoring ctx.
func sleepJittered(ctx context.Context, delay time.Duration) error {
	delay += time.Duration(rand.Int63n(int64(delay) + 1))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// resolveUpdateFields turns the request into write-ready patches, collecting
// failed resolutions as result templates (IssueID filled in by the caller).
func (p *Provider) resolveUpdateFields(ctx context.Context, wsKey, typeKey string, req UpdateRequest) ([]types.FieldPatch, []types.UpdateResult) {
	var patches []types.FieldPatch
	var failed []types.UpdateResult

	fail := func(fieldName string, err error) {
		p.logger.Warn("field resolution failed",
			slog.String("field", fieldName), slog.String("error", err.Error()))
		failed = append(failed, types.UpdateResult{
			FieldName: fieldName,
			Message:   fmt.Sprintf("resolution failed: %s", err.Error()),
		})
	}

	add := func(fieldName string, value any, fixedKey string) {
		key := fixedKey
		if key == "" {
			resolved, err := p.meta.ResolveFieldKey(ctx, wsKey, typeKey, fieldName)
			if err != nil {
				fail(fieldName, err)
				return
			}
			key = resolved
		}
		shaped, err := p.resolveWriteValue(ctx, wsKey, typeKey, key, fieldName, value)
		if err != nil {
			fail(fieldName, err)
			return
		}
		patches = append(patches, types.FieldPatch{Key: key, Name: fieldName, Value: shaped})
	}

	// Title and assignee live on fixed built-in keys.
	if req.Name != "" {
		patches = append(patches, types.FieldPatch{Key: "name", Name: "name", Value: types.ScalarValue(req.Name)})
	}
	if req.Description != "" {
		add("description", req.Description, "")
	}
	if req.Priority != "" {
		add("priority", req.Priority, "")
	}
	if req.Status != "" {
		add("status", req.Status, "")
	}
	if req.Assignee != "" {
		userKey, err := p.meta.ResolveUserKey(ctx, req.Assignee)
		if err != nil {
			fail("assignee", err)
		} else {
			patches = append(patches, types.FieldPatch{Key: "owner", Name: "assignee", Value: types.UserValue(userKey)})
		}
	}
	for _, fieldName := range sortedNames(req.Extra) {
		add(fieldName, req.Extra[fieldName], "")
	}
	return patches, failed
}

func sortedNames(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
