package convert

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/markmuse/markmuse/store"
)

// assemble sorts rewritten pages by index, joins them with a blank-line
// separator and persists the document. This is the only step whose failure
// aborts the conversion: without it there is no output at all.
func (c *Converter) assemble(ctx context.Context, pages []RewrittenPage, opts Options) (store.Locator, error) {
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })

	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Text
	}
	document := strings.Join(parts, "\n\n")

	key := documentKey(opts.DocKey, c.remoteCapable())
	loc, err := c.cfg.Store.Put(ctx, []byte(document), key, "text/markdown")
	if err != nil {
		return store.Locator{}, fmt.Errorf("assemble: persist document: %w", err)
	}

	c.cfg.Logger.Info("document assembled", "key", key, "pages", len(pages), "remote", loc.IsRemote)
	return loc, nil
}

// documentKey places the document next to its image folder: "<doc>.md"
// locally, "<doc>/<doc>.md" when the store is remote-capable so the bucket
// groups a conversion's artifacts under one prefix.
func documentKey(docKey string, remote bool) string {
	if remote {
		return docKey + "/" + docKey + ".md"
	}
	return docKey + ".md"
}

func (c *Converter) remoteCapable() bool {
	r, ok := c.cfg.Store.(*store.Router)
	return ok && r.Remote != nil
}
