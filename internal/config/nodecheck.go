package config

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// NodeConfigChecker verifies that every search node runs with the same
// configuration. The first YAML document it sees becomes the reference;
// later documents must decode to an equal value. Key order and formatting
// are not significant.
type NodeConfigChecker struct {
	mu        sync.Mutex
	reference map[string]interface{}
	raw       string
}

// NewNodeConfigChecker creates a checker with no reference yet.
func NewNodeConfigChecker() *NodeConfigChecker {
	return &NodeConfigChecker{}
}

// Check compares doc against the reference, adopting it as the reference
// if none is set. It returns a nil error when the document agrees.
func (c *NodeConfigChecker) Check(doc string) error {
	var parsed map[string]interface{}
	if err := yaml.Unmarshal([]byte(doc), &parsed); err != nil {
		return fmt.Errorf("failed to parse node config: %w", err)
	}
	if parsed == nil {
		parsed = map[string]interface{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.reference == nil {
		c.reference = parsed
		c.raw = doc
		return nil
	}
	if !reflect.DeepEqual(c.reference, parsed) {
		return fmt.Errorf("node config differs from reference: %s", diffKeys(c.reference, parsed))
	}
	return nil
}

// Reference returns the YAML document adopted as reference, if any.
func (c *NodeConfigChecker) Reference() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raw, c.reference != nil
}

// Reset forgets the reference configuration.
func (c *NodeConfigChecker) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reference = nil
	c.raw = ""
}

// diffKeys names the top-level keys that differ between two documents.
func diffKeys(a, b map[string]interface{}) string {
	var keys []string
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !reflect.DeepEqual(av, bv) {
			keys = append(keys, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return fmt.Sprintf("%v", keys)
}
