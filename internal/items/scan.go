package items

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/pivotstack/worktrack/internal/remote"
	"github.com/pivotstack/worktrack/pkg/types"
)

// Relation scan bounds. The remote query language cannot filter by "related
// to item X", so relations are matched client-side over a bounded window;
// the bounds keep a pathological workspace from being paged forever.
const (
	scanMaxItems        = 500
	scanMaxPages        = 10
	scanPageSize        = 50
	scanConcurrentPages = 3
)

// Low-yield warning thresholds: scanning this much for so few matches means
// the caller should narrow the query.
const (
	scanYieldWarnFetched = 200
	scanYieldWarnFound   = 5
)

// scanRelated pages through the workspace's items of one type, keeping the
// ones that reference relatedTo. Pages are fetched in waves of
// scanConcurrentPages; a wave that sees a short page (end of data) or an
// errored page stops the scan, since continuing past a page that might hide
// data would silently drop matches. The returned Page always carries a Hint
// describing how much was scanned.
func (p *Provider) scanRelated(ctx context.Context, wsKey, typeKey string, relatedTo int64) (types.Page, error) {
	p.logger.Warn("relation filter requires a bounded client-side scan; "+
		"add a name keyword, status, or priority to narrow it",
		slog.Int64("related_to", relatedTo))

	var found []types.Item
	fetched := 0

	for firstPage := 1; fetched < scanMaxItems && firstPage <= scanMaxPages; firstPage += scanConcurrentPages {
		lastPage := firstPage + scanConcurrentPages - 1
		if lastPage > scanMaxPages {
			lastPage = scanMaxPages
		}

		pages := make([][]types.Item, lastPage-firstPage+1)
		var g errgroup.Group
		for i := range pages {
			i := i
			pageNum := firstPage + i
			g.Go(func() error {
				raw, err := p.api.FilterItems(ctx, wsKey, []string{typeKey}, remote.FilterOptions{
					PageNum:  pageNum,
					PageSize: scanPageSize,
				})
				if err != nil {
					p.logger.Error("scan page failed",
						slog.Int("page", pageNum), slog.String("error", err.Error()))
					return err
				}
				pages[i] = raw.Normalize(pageNum, scanPageSize).Items
				return nil
			})
		}
		waveErr := g.Wait()

		stop := waveErr != nil
		for _, items := range pages {
			fetched += len(items)
			for i := range items {
				if isRelatedTo(&items[i], relatedTo) {
					found = append(found, items[i])
				}
			}
			if len(items) < scanPageSize {
				stop = true
			}
		}
		if stop {
			break
		}
	}

	p.logger.Info("relation scan finished",
		slog.Int("fetched", fetched), slog.Int("matches", len(found)),
		slog.Int64("related_to", relatedTo))
	if fetched > scanYieldWarnFetched && len(found) < scanYieldWarnFound {
		p.logger.Warn("relation scan yield is poor; narrow the query",
			slog.Int("fetched", fetched), slog.Int("matches", len(found)))
	}

	if found == nil {
		found = []types.Item{}
	}
	return types.Page{
		Items:    found,
		Total:    len(found),
		PageNum:  1,
		PageSize: len(found),
		Hint: fmt.Sprintf(
			"found %d items related to %d (scanned %d items, max %d); add a name keyword, status, or priority to search further",
			len(found), relatedTo, fetched, scanMaxItems),
	}, nil
}
