// Package merger assembles the per-page artifacts of a finished batch into a
// single document, inserting explicit page separator markers between units.
//
// The merger consumes an index-ordered BatchResult and verifies that order
// instead of trusting it: output is never derived from completion order.
package merger

import (
	"bytes"
	"fmt"

	"github.com/pagedoc/pagedoc/pkg/scheduler"
)

// PageBreak is the separator inserted between pages. Print-aware CSS keeps
// one source page per output page when the merged document is rendered or
// re-exported.
const PageBreak = `<div class="page-break" style="page-break-after: always; break-after: page;"></div>`

// Options configures a merge.
type Options struct {
	// Separator between pages; PageBreak when empty.
	Separator string

	// PageMarkers inserts an HTML comment naming each page before its
	// content.
	PageMarkers bool
}

// Merge joins the artifacts of result in index order. Failed pages yield a
// visible placeholder block instead of silently dropping the page, so the
// merged document keeps one section per source page.
//
// Returns an error when result is not a well-formed batch result
// (result[i].Index == i for all i).
func Merge(result scheduler.BatchResult, opts Options) ([]byte, error) {
	sep := opts.Separator
	if sep == "" {
		sep = PageBreak
	}

	var buf bytes.Buffer
	for i, o := range result {
		if o.Index != i {
			return nil, fmt.Errorf("malformed batch result: entry %d has index %d", i, o.Index)
		}

		if i > 0 {
			buf.WriteString("\n")
			buf.WriteString(sep)
			buf.WriteString("\n")
		}

		if opts.PageMarkers {
			fmt.Fprintf(&buf, "<!-- PAGE %d -->\n", i+1)
		}

		if o.Failed() {
			fmt.Fprintf(&buf, `<div class="page-placeholder">[PAGE %d UNAVAILABLE: conversion failed]</div>`, i+1)
			buf.WriteString("\n")
			continue
		}

		buf.Write(o.Artifact)
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}
