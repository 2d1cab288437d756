package annotations

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// MarshalYAML emits the same shape as MarshalJSON, pages in numeric order and
// empty pages as null.
func (t *Table) MarshalYAML() (any, error) {
	pages := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range t.PageNumbers() {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: PageKey(p)}

		items := t.Pages[p]
		if items == nil {
			pages.Content = append(pages.Content, key, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"})
			continue
		}
		val := &yaml.Node{}
		if err := val.Encode(items); err != nil {
			return nil, fmt.Errorf("encode %s: %w", PageKey(p), err)
		}
		pages.Content = append(pages.Content, key, val)
	}

	return &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Tag: "!!str", Value: t.Document},
			pages,
		},
	}, nil
}
