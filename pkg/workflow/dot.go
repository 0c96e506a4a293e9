package workflow

import (
	"fmt"
	"sort"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"

	"github.com/avanrossum/diffract/pkg/core"
	"github.com/avanrossum/diffract/pkg/plugin"
)

// ParseDOT builds a workflow tree from a Graphviz DOT description. Every
// node carries a "type" attribute naming a registered plugin; all other
// attributes are passed to the plugin factory as parameters. Edges run
// parent → child.
func ParseDOT(src string, reg *plugin.Registry) (*Tree, error) {
	graphAst, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("dot parse error: %w", err)
	}

	// A permissive collector that accepts any attribute name without the
	// strict validation gographviz.Graph performs.
	collector := newDOTCollector()
	if err := gographviz.Analyse(graphAst, collector); err != nil {
		return nil, fmt.Errorf("dot analyse error: %w", err)
	}
	if len(collector.nodes) == 0 {
		return nil, core.Configf("workflow definition has no nodes")
	}

	// Tree shape check: every node has at most one parent, exactly one
	// node has none.
	parents := make(map[string]string)
	children := make(map[string][]string)
	for _, e := range collector.edges {
		if _, ok := collector.nodes[e.from]; !ok {
			return nil, core.Configf("edge references unknown node %q", e.from)
		}
		if _, ok := collector.nodes[e.to]; !ok {
			return nil, core.Configf("edge references unknown node %q", e.to)
		}
		if prev, ok := parents[e.to]; ok {
			return nil, core.Configf("node %q has two parents (%q and %q)", e.to, prev, e.from)
		}
		parents[e.to] = e.from
		children[e.from] = append(children[e.from], e.to)
	}
	var roots []string
	for name := range collector.nodes {
		if _, ok := parents[name]; !ok {
			roots = append(roots, name)
		}
	}
	if len(roots) != 1 {
		sort.Strings(roots)
		return nil, core.Configf("workflow must have exactly one root node, found %d (%s)",
			len(roots), strings.Join(roots, ", "))
	}

	tree := NewTree()

	var build func(name string, parent int) error
	build = func(name string, parent int) error {
		attrs := collector.nodes[name]
		typeName := attrs["type"]
		if typeName == "" {
			return core.Configf("node %q has no plugin type attribute", name)
		}
		params := make(plugin.Params, len(attrs))
		for k, v := range attrs {
			if k == "type" || k == "label" {
				continue
			}
			params[k] = v
		}
		pl, err := reg.Create(typeName, params)
		if err != nil {
			return fmt.Errorf("node %q: %w", name, err)
		}
		opts := []InsertOption{WithParams(params)}
		if parent != NoParent {
			opts = append(opts, WithParent(parent))
		}
		id, err := tree.Insert(pl, opts...)
		if err != nil {
			return fmt.Errorf("node %q: %w", name, err)
		}
		for _, child := range children[name] {
			if err := build(child, id); err != nil {
				return err
			}
		}
		return nil
	}
	if err := build(roots[0], NoParent); err != nil {
		return nil, err
	}
	return tree, nil
}

// ExportDOT renders the tree as a Graphviz DOT string that ParseDOT can
// reconstruct. Node names encode the node ids.
func ExportDOT(t *Tree, name string) (string, error) {
	root := t.Root()
	if root == nil {
		return "", core.Configf("workflow tree has no nodes")
	}
	if name == "" {
		name = "workflow"
	}

	g := gographviz.NewGraph()
	if err := g.SetName(name); err != nil {
		return "", err
	}
	if err := g.SetDir(true); err != nil {
		return "", err
	}

	var addErr error
	root.walk(func(n *Node) {
		if addErr != nil {
			return
		}
		attrs := map[string]string{"type": quote(n.plugin.Name())}
		keys := make([]string, 0, len(n.params))
		for k := range n.params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs[k] = quote(n.params[k])
		}
		if err := g.AddNode(name, dotName(n.id), attrs); err != nil {
			addErr = err
		}
	})
	if addErr != nil {
		return "", addErr
	}
	root.walk(func(n *Node) {
		if addErr != nil {
			return
		}
		for _, c := range n.children {
			if err := g.AddEdge(dotName(n.id), dotName(c.id), true, nil); err != nil {
				addErr = err
			}
		}
	})
	if addErr != nil {
		return "", addErr
	}
	return g.String(), nil
}

func dotName(id int) string { return fmt.Sprintf("n%d", id) }

func quote(s string) string { return `"` + s + `"` }

// ─── permissive DOT collector ─────────────────────────────────────────────────

type rawEdge struct {
	from, to string
}

// dotCollector implements gographviz.Interface without attribute validation.
type dotCollector struct {
	name       string
	nodes      map[string]map[string]string // name → attrs
	edges      []rawEdge
	graphAttrs map[string]string
}

func newDOTCollector() *dotCollector {
	return &dotCollector{
		nodes:      make(map[string]map[string]string),
		graphAttrs: make(map[string]string),
	}
}

func (c *dotCollector) SetStrict(_ bool) error { return nil }
func (c *dotCollector) SetDir(_ bool) error    { return nil }
func (c *dotCollector) SetName(n string) error { c.name = unquote(n); return nil }
func (c *dotCollector) String() string         { return c.name }

func (c *dotCollector) AddNode(_ string, name string, attrs map[string]string) error {
	id := unquote(name)
	if _, ok := c.nodes[id]; !ok {
		c.nodes[id] = make(map[string]string, len(attrs))
	}
	for k, v := range attrs {
		c.nodes[id][k] = unquote(v)
	}
	return nil
}

func (c *dotCollector) AddEdge(src, dst string, _ bool, _ map[string]string) error {
	from, to := unquote(src), unquote(dst)
	c.ensureNode(from)
	c.ensureNode(to)
	c.edges = append(c.edges, rawEdge{from: from, to: to})
	return nil
}

func (c *dotCollector) AddPortEdge(src, _, dst, _ string, directed bool, attrs map[string]string) error {
	return c.AddEdge(src, dst, directed, attrs)
}

func (c *dotCollector) AddAttr(_ string, field, value string) error {
	c.graphAttrs[field] = unquote(value)
	return nil
}

func (c *dotCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

func (c *dotCollector) ensureNode(name string) {
	if _, ok := c.nodes[name]; !ok {
		c.nodes[name] = make(map[string]string)
	}
}

// unquote strips surrounding double-quotes from a DOT attribute value.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
