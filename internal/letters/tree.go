package letters

import (
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Root is the sentinel combination handed to players before their first escalation.
const Root = "root"

// Node is one level of the letter-combination tree. Keys are single lowercase
// letters; a nil value marks a leaf.
type Node map[string]Node

// Tree is the fixed prefix tree over letter combinations. Immutable after load
// and safe for concurrent readers.
type Tree struct {
	root Node
}

// Load reads the letter tree from a YAML file of nested single-letter maps.
func Load(path string) (*Tree, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read letter tree: %w", err)
	}
	var root Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("parse letter tree: %w", err)
	}
	if len(root) == 0 {
		return nil, fmt.Errorf("letter tree %s is empty", path)
	}
	if err := validate(root); err != nil {
		return nil, fmt.Errorf("letter tree %s: %w", path, err)
	}
	return &Tree{root: root}, nil
}

// NewTree wraps an already-built node map. Used by tests.
func NewTree(root Node) *Tree { return &Tree{root: root} }

func validate(n Node) error {
	for key, child := range n {
		if len(key) != 1 || key < "a" || key > "z" {
			return fmt.Errorf("invalid node key %q", key)
		}
		if child != nil {
			if err := validate(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// CombinationsAfter returns every next-tier combination reachable from current:
// current plus exactly one letter. The Root sentinel yields the first-level keys.
// A combination that is not a prefix path in the tree yields an empty set, which
// callers treat as "cannot escalate further", not an error.
func (t *Tree) CombinationsAfter(current string) []string {
	cur := strings.ToLower(strings.TrimSpace(current))

	node := t.root
	prefix := ""
	if cur != Root {
		for _, r := range cur {
			child, ok := node[string(r)]
			if !ok {
				return nil
			}
			node = child
		}
		prefix = cur
	}

	if len(node) == 0 {
		return nil
	}
	out := make([]string, 0, len(node))
	for letter := range node {
		out = append(out, prefix+letter)
	}
	sort.Strings(out)
	return out
}

// Escalate picks the next-tier combination for a player uniformly at random.
// When the tree has nothing past current, the current combination is returned
// unchanged: maximum difficulty is bounded by tree depth.
func (t *Tree) Escalate(current string) string {
	next := t.CombinationsAfter(current)
	if len(next) == 0 {
		return strings.ToLower(strings.TrimSpace(current))
	}
	return next[rand.Intn(len(next))]
}
