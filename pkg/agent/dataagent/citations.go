package dataagent

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/quantfleet/quantfleet/pkg/models"
)

// citationRe matches [N] citations in summary text.
var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// CitedIDs returns the distinct integer ids cited in text, sorted.
func CitedIDs(text string) []int {
	seen := make(map[int]bool)
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			seen[n] = true
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// citedDocuments resolves the citations in text against the given rows.
// Citations outside the rows' id space are ignored.
func citedDocuments(text string, rows []models.Document) []models.Document {
	byID := make(map[int]models.Document, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	var refs []models.Document
	for _, id := range CitedIDs(text) {
		if doc, ok := byID[id]; ok {
			refs = append(refs, doc)
		}
	}
	return refs
}

// unionReferences deduplicates documents across batch references and the
// extra ids cited by the final summary, ordered by id.
func unionReferences(byID map[int]models.Document, batchRefs [][]models.Document, finalText string) []models.Document {
	seen := make(map[int]bool)
	var refs []models.Document

	add := func(doc models.Document) {
		if !seen[doc.ID] {
			seen[doc.ID] = true
			refs = append(refs, doc)
		}
	}
	for _, batch := range batchRefs {
		for _, doc := range batch {
			add(doc)
		}
	}
	for _, id := range CitedIDs(finalText) {
		if doc, ok := byID[id]; ok {
			add(doc)
		}
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}
