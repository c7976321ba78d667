package cachecontrol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// DirectiveName is the name of the cache hint directive.
const DirectiveName = "cacheControl"

const (
	scopeSDL = `enum CacheControlScope {
  PUBLIC
  PRIVATE
}
`
	directiveSDL = `directive @cacheControl(
  maxAge: Int
  scope: CacheControlScope
  inheritMaxAge: Boolean
) on FIELD_DEFINITION | OBJECT | INTERFACE | UNION
`
)

// SDL declares the cache hint directive and its scope enum.
const SDL = scopeSDL + "\n" + directiveSDL

// ErrOperationNotFound is returned when a document has no operation with the
// requested name.
var ErrOperationNotFound = errors.New("genwire: operation not found")

// Scope tells whether a result may be shared between users.
type Scope string

// Cache scopes.
const (
	ScopePublic  Scope = "PUBLIC"
	ScopePrivate Scope = "PRIVATE"
)

// Options tunes the computation.
type Options struct {
	// DefaultMaxAge, in seconds, applies to root fields and fields returning
	// composite types that carry no hint. Zero makes them uncacheable.
	DefaultMaxAge int
	// DefaultScope is the scope of operations without private fields.
	// Empty means PUBLIC.
	DefaultScope Scope
}

func (o Options) withDefaults() Options {
	if o.DefaultScope == "" {
		o.DefaultScope = ScopePublic
	}
	return o
}

// Result is the cache hint of one operation.
type Result struct {
	Operation string
	Kind      ast.Operation
	MaxAge    int // seconds
	Scope     Scope
}

// Cacheable reports whether the result of the operation may be cached.
// Only queries are.
func (r *Result) Cacheable() bool {
	return r != nil && r.Kind == ast.Query && r.MaxAge > 0
}

// HeaderValue renders the hint as an HTTP Cache-Control value.
func (r *Result) HeaderValue() string {
	if !r.Cacheable() {
		return "no-store"
	}
	return fmt.Sprintf("max-age=%d, %s", r.MaxAge, strings.ToLower(string(r.Scope)))
}

// WithDirectives returns sources followed by the declarations of SDL that
// sources do not declare themselves.
func WithDirectives(sources ...*ast.Source) []*ast.Source {
	hasScope, hasDirective := false, false
	if doc, err := parser.ParseSchemas(sources...); err == nil {
		hasScope = doc.Definitions.ForName("CacheControlScope") != nil
		hasDirective = doc.Directives.ForName(DirectiveName) != nil
	}
	out := append([]*ast.Source(nil), sources...)
	if !hasScope {
		out = append(out, &ast.Source{Name: "cachecontrol_scope.graphqls", Input: scopeSDL})
	}
	if !hasDirective {
		out = append(out, &ast.Source{Name: "cachecontrol_directive.graphqls", Input: directiveSDL})
	}
	return out
}

// Compute returns the cache hint of every operation in doc, in document
// order. doc must have been validated against schema.
func Compute(schema *ast.Schema, doc *ast.QueryDocument, opts Options) []Result {
	opts = opts.withDefaults()
	results := make([]Result, 0, len(doc.Operations))
	for _, op := range doc.Operations {
		results = append(results, compute(schema, doc, op, opts))
	}
	return results
}

// ForOperation returns the cache hint of the named operation. An empty name
// selects the only operation of doc.
func ForOperation(schema *ast.Schema, doc *ast.QueryDocument, name string, opts Options) (*Result, error) {
	op, err := Operation(doc, name)
	if err != nil {
		return nil, err
	}
	r := compute(schema, doc, op, opts.withDefaults())
	return &r, nil
}

// Operation looks up the named operation. An empty name selects the only
// operation of doc.
func Operation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0], nil
		}
		return nil, fmt.Errorf("%w: document has %d operations and no name was given", ErrOperationNotFound, len(doc.Operations))
	}
	for _, op := range doc.Operations {
		if op.Name == name {
			return op, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrOperationNotFound, name)
}

func compute(schema *ast.Schema, doc *ast.QueryDocument, op *ast.OperationDefinition, opts Options) Result {
	v := &visitor{
		schema:   schema,
		doc:      doc,
		opts:     opts,
		visiting: make(map[string]bool),
	}
	v.selections(op.SelectionSet, rootType(schema, op.Operation), true)

	r := Result{Operation: op.Name, Kind: op.Operation, Scope: opts.DefaultScope}
	if v.private {
		r.Scope = ScopePrivate
	}
	if v.hasMaxAge {
		r.MaxAge = v.maxAge
	} else {
		r.MaxAge = opts.DefaultMaxAge
	}
	return r
}

func rootType(schema *ast.Schema, op ast.Operation) *ast.Definition {
	switch op {
	case ast.Mutation:
		return schema.Mutation
	case ast.Subscription:
		return schema.Subscription
	default:
		return schema.Query
	}
}

type visitor struct {
	schema *ast.Schema
	doc    *ast.QueryDocument
	opts   Options

	maxAge    int
	hasMaxAge bool
	private   bool
	visiting  map[string]bool // fragments on the current path
}

func (v *visitor) constrain(maxAge int) {
	if !v.hasMaxAge || maxAge < v.maxAge {
		v.maxAge = maxAge
		v.hasMaxAge = true
	}
}

func (v *visitor) selections(set ast.SelectionSet, parent *ast.Definition, root bool) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			v.field(s, parent, root)
		case *ast.InlineFragment:
			v.selections(s.SelectionSet, v.typeOr(s.TypeCondition, parent), root)
		case *ast.FragmentSpread:
			frag := s.Definition
			if frag == nil {
				frag = v.doc.Fragments.ForName(s.Name)
			}
			if frag == nil || v.visiting[s.Name] {
				continue
			}
			v.visiting[s.Name] = true
			v.selections(frag.SelectionSet, v.typeOr(frag.TypeCondition, parent), root)
			delete(v.visiting, s.Name)
		}
	}
}

func (v *visitor) typeOr(name string, def *ast.Definition) *ast.Definition {
	if t := v.schema.Types[name]; t != nil {
		return t
	}
	return def
}

func (v *visitor) field(f *ast.Field, parent *ast.Definition, root bool) {
	if strings.HasPrefix(f.Name, "__") {
		return
	}
	def := f.Definition
	if def == nil && parent != nil {
		def = parent.Fields.ForName(f.Name)
	}
	if def == nil {
		return
	}
	target := v.schema.Types[def.Type.Name()]
	composite := isComposite(target)

	fh := hintOf(def.Directives)
	var th hint
	if composite {
		th = hintOf(target.Directives)
	}
	if fh.private || th.private {
		v.private = true
	}
	switch {
	case fh.maxAge != nil:
		v.constrain(*fh.maxAge)
	case fh.inherit:
	case th.maxAge != nil:
		v.constrain(*th.maxAge)
	case root || composite:
		v.constrain(v.opts.DefaultMaxAge)
	}
	if composite {
		v.selections(f.SelectionSet, target, false)
	}
}

func isComposite(def *ast.Definition) bool {
	if def == nil {
		return false
	}
	switch def.Kind {
	case ast.Object, ast.Interface, ast.Union:
		return true
	default:
		return false
	}
}

type hint struct {
	maxAge  *int
	private bool
	inherit bool
}

func hintOf(list ast.DirectiveList) hint {
	var h hint
	d := list.ForName(DirectiveName)
	if d == nil {
		return h
	}
	if a := d.Arguments.ForName("maxAge"); a != nil && a.Value != nil {
		if n, err := strconv.Atoi(a.Value.Raw); err == nil {
			h.maxAge = &n
		}
	}
	if a := d.Arguments.ForName("scope"); a != nil && a.Value != nil {
		h.private = Scope(a.Value.Raw) == ScopePrivate
	}
	if a := d.Arguments.ForName("inheritMaxAge"); a != nil && a.Value != nil {
		h.inherit = a.Value.Raw == "true"
	}
	return h
}
