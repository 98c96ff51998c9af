package forum

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bytedance/gg/gmap"
	"github.com/bytedance/sonic"
)

// TagMap maps textual tag names to platform tag ids. The file is seeded from
// a template once, on first run, and treated as read-only afterwards so
// operators can correct ids by hand without the process overwriting them.
type TagMap struct {
	tags map[string]string
}

// LoadTagMap reads the tag map at path, writing template there first if no
// file exists. An existing file is never overwritten.
func LoadTagMap(path string, template map[string]string) (*TagMap, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := seedTagMap(path, template); err != nil {
			return nil, err
		}
		return &TagMap{tags: gmap.Clone(template)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tag map: %w", err)
	}

	tags := make(map[string]string)
	if err := sonic.Unmarshal(data, &tags); err != nil {
		return nil, fmt.Errorf("unmarshal tag map %s: %w", path, err)
	}
	return &TagMap{tags: tags}, nil
}

func seedTagMap(path string, template map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create tag map directory: %w", err)
	}
	data, err := sonic.MarshalIndent(template, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tag map template: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("seed tag map: %w", err)
	}
	return nil
}

// ID resolves a tag name to its platform id.
func (m *TagMap) ID(name string) (string, bool) {
	id, ok := m.tags[name]
	return id, ok
}

// Names returns all known tag names, sorted for deterministic iteration.
func (m *TagMap) Names() []string {
	names := gmap.Keys(m.tags)
	sort.Strings(names)
	return names
}
