// Package models defines the domain records shared across the pipeline:
// raw documents, factor and signal artifacts, judge scores, and the final
// weight result. All persisted types carry JSON tags matching the on-disk
// artifact layout.
package models

import "strings"

// Document is one raw row fetched from a data source.
// Lifetime is a single data-agent batch; documents survive only inside the
// reference lists of persisted artifacts.
type Document struct {
	// ID is assigned by the data agent during preprocessing (1..N, stable
	// within a single run). Zero for rows fresh off a data source.
	ID      int    `json:"id,omitempty"`
	Title   string `json:"title"`
	Content string `json:"content"`
	PubTime string `json:"pub_time"`
	URL     string `json:"url,omitempty"`
}

// Empty reports whether the row lacks usable text and should be dropped
// during preprocessing.
func (d Document) Empty() bool {
	return strings.TrimSpace(d.Title) == "" || strings.TrimSpace(d.Content) == ""
}
