package pipeline

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kadirpekel/prodigy/internal/mapreduce/model"
	"github.com/kadirpekel/prodigy/internal/mrerrors"
)

// Config is the work-item pipeline's declarative configuration, taken
// directly from the workflow YAML's map.input section.
type Config struct {
	JSONPath  string `json:"json_path,omitempty" yaml:"json_path,omitempty"`
	Filter    string `json:"filter,omitempty" yaml:"filter,omitempty"`
	SortBy    string `json:"sort_by,omitempty" yaml:"sort_by,omitempty"`
	Distinct  string `json:"distinct,omitempty" yaml:"distinct,omitempty"`
	MaxItems  int    `json:"max_items,omitempty" yaml:"max_items,omitempty"`
	Offset    int    `json:"offset,omitempty" yaml:"offset,omitempty"`

	// IDField names the field used as each work item's stable id; "id"
	// if unset. When an item lacks that field, its pipeline index
	// (stringified) is used instead, so every item still gets an id.
	IDField string `json:"id_field,omitempty" yaml:"id_field,omitempty"`
}

// Pipeline is a Config compiled once (filter parsed, sort keys parsed)
// so repeated runs against different documents don't re-parse
// expressions — extraction is deterministic, and determinism shouldn't
// cost a re-parse every time.
type Pipeline struct {
	cfg       Config
	pathOps   []pathOp
	filter    *Filter
	sortKeys  []sortKey
}

// Compile validates and compiles cfg.
func Compile(cfg Config) (*Pipeline, error) {
	pathOps, err := parseJSONPath(cfg.JSONPath)
	if err != nil {
		return nil, err
	}
	filter, err := ParseFilter(cfg.Filter)
	if err != nil {
		return nil, err
	}
	sortKeys, err := parseSortKeys(cfg.SortBy)
	if err != nil {
		return nil, err
	}
	return &Pipeline{cfg: cfg, pathOps: pathOps, filter: filter, sortKeys: sortKeys}, nil
}

// Run extracts, filters, sorts, dedups, and paginates doc into an
// ordered list of WorkItems. Same (doc, Config) always produces the
// same output (spec §4.5 determinism invariant).
func (p *Pipeline) Run(doc []byte) ([]model.WorkItem, error) {
	var root any
	if err := json.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("%w: unmarshal input document: %s", mrerrors.ErrConfiguration, err)
	}

	var items []any
	if p.pathOps == nil {
		arr, ok := root.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: input document is not a JSON array and no json_path was given", mrerrors.ErrConfiguration)
		}
		items = arr
	} else {
		items = extractJSONPath(root, p.pathOps)
	}

	var filtered []any
	for _, item := range items {
		if p.filter.Match(item) {
			filtered = append(filtered, item)
		}
	}

	stableSortBy(filtered, p.sortKeys)

	if p.cfg.Distinct != "" {
		filtered = distinctBy(filtered, p.cfg.Distinct)
	}

	filtered = paginate(filtered, p.cfg.Offset, p.cfg.MaxItems)

	return toWorkItems(filtered, p.idField())
}

func (p *Pipeline) idField() string {
	if p.cfg.IDField != "" {
		return p.cfg.IDField
	}
	return "id"
}

// distinctBy deduplicates items by the value at path, keeping the first
// occurrence after sort (spec §4.5 step 4).
func distinctBy(items []any, path string) []any {
	seen := make(map[string]bool, len(items))
	var out []any
	for _, item := range items {
		v, ok := lookupFieldPath(item, path)
		key := fmt.Sprintf("%v", v)
		if !ok {
			key = "\x00absent"
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

// paginate applies offset then limit (0 max means unbounded).
func paginate(items []any, offset, max int) []any {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if max > 0 && max < len(items) {
		items = items[:max]
	}
	return items
}

func toWorkItems(items []any, idField string) ([]model.WorkItem, error) {
	out := make([]model.WorkItem, 0, len(items))
	for i, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal work item: %s", mrerrors.ErrConfiguration, err)
		}
		id := strconv.Itoa(i)
		if v, ok := lookupFieldPath(item, idField); ok {
			id = fmt.Sprintf("%v", v)
		}
		out = append(out, model.WorkItem{
			ID:     id,
			Data:   data,
			Status: model.WorkItemPending,
		})
	}
	return out, nil
}
