package validate

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Checker reports whether a document stream is well formed.
type Checker interface {
	Check(r io.Reader) error
}

// YAML checks yaml syntax as permissively as still makes sense: streams may
// hold several documents, duplicate mapping keys are allowed, and tags are
// kept opaque instead of being resolved to types. The structure under a tag
// is still checked, and standard tags must sit on the node kind they name.
type YAML struct{}

func (YAML) Check(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	for i := 1; ; i++ {
		// Decoding into a Node parses without constructing values, so
		// neither tag resolution nor duplicate key checks happen.
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := checkNode(&doc); err != nil {
			return fmt.Errorf("yaml: document %d: %w", i, err)
		}
	}
}

// kindTags are the standard tags that only make sense on one node kind.
var kindTags = map[string]yaml.Kind{
	"!!map":       yaml.MappingNode,
	"!!omap":      yaml.SequenceNode,
	"!!pairs":     yaml.SequenceNode,
	"!!set":       yaml.MappingNode,
	"!!seq":       yaml.SequenceNode,
	"!!str":       yaml.ScalarNode,
	"!!int":       yaml.ScalarNode,
	"!!float":     yaml.ScalarNode,
	"!!bool":      yaml.ScalarNode,
	"!!null":      yaml.ScalarNode,
	"!!binary":    yaml.ScalarNode,
	"!!timestamp": yaml.ScalarNode,
	"!!merge":     yaml.ScalarNode,
}

var kindNames = map[yaml.Kind]string{
	yaml.MappingNode:  "mapping",
	yaml.SequenceNode: "sequence",
	yaml.ScalarNode:   "scalar",
}

// checkNode walks one document. Anchors are scoped to their document, so an
// alias must point at a node of the same document.
func checkNode(root *yaml.Node) error {
	var aliases []*yaml.Node
	nodes := make(map[*yaml.Node]bool)

	stack := []*yaml.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes[n] = true

		if want, ok := kindTags[n.Tag]; ok && n.Kind != want && n.Kind != yaml.AliasNode {
			return fmt.Errorf("line %d: %s tag on a %s", n.Line, n.Tag, kindName(n.Kind))
		}

		switch n.Kind {
		case 0, yaml.ScalarNode:
			continue
		case yaml.AliasNode:
			// aliases aren't followed; their anchors are checked where
			// they're defined.
			if n.Alias == nil {
				return fmt.Errorf("line %d: alias %q has no anchor", n.Line, n.Value)
			}
			aliases = append(aliases, n)
			continue
		case yaml.MappingNode:
			if len(n.Content)%2 != 0 {
				return fmt.Errorf("line %d: mapping key without a value", n.Line)
			}
		case yaml.DocumentNode, yaml.SequenceNode:
		default:
			return fmt.Errorf("line %d: unexpected node kind %d", n.Line, n.Kind)
		}
		stack = append(stack, n.Content...)
	}

	for _, a := range aliases {
		if !nodes[a.Alias] {
			return fmt.Errorf("line %d: alias %q refers to an anchor in another document", a.Line, a.Value)
		}
	}
	return nil
}

func kindName(k yaml.Kind) string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("node of kind %d", k)
}
