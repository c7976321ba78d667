package generator

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/dave/jennifer/jen"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/syssam/genwire/cachecontrol"
)

// emitter turns a loaded project into Go files.
type emitter struct {
	cfg     *Config
	pkg     string
	schema  *ast.Schema
	scalars map[string]GoType
	hints   bool
}

func (e *emitter) newFile() *jen.File {
	f := jen.NewFile(e.pkg)
	if e.cfg.Header != "" {
		f.HeaderComment(e.cfg.Header)
	}
	return f
}

// =============================================================================
// models.go
// =============================================================================

// usage collects the named schema types the generated code refers to.
type usage struct {
	schema *ast.Schema
	enums  map[string]bool
	inputs map[string]bool
}

func newUsage(schema *ast.Schema) *usage {
	return &usage{schema: schema, enums: make(map[string]bool), inputs: make(map[string]bool)}
}

func (u *usage) addType(t *ast.Type) {
	def := u.schema.Types[t.Name()]
	if def == nil || def.BuiltIn {
		return
	}
	switch def.Kind {
	case ast.Enum:
		u.enums[def.Name] = true
	case ast.InputObject:
		if u.inputs[def.Name] {
			return
		}
		u.inputs[def.Name] = true
		for _, f := range def.Fields {
			u.addType(f.Type)
		}
	}
}

func (u *usage) addSelections(set ast.SelectionSet) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			if s.Definition != nil {
				u.addType(s.Definition.Type)
			}
			u.addSelections(s.SelectionSet)
		case *ast.InlineFragment:
			u.addSelections(s.SelectionSet)
		}
	}
}

func (u *usage) addDocument(doc *ast.QueryDocument) {
	for _, op := range doc.Operations {
		for _, v := range op.VariableDefinitions {
			u.addType(v.Type)
		}
		u.addSelections(op.SelectionSet)
	}
	for _, frag := range doc.Fragments {
		u.addSelections(frag.SelectionSet)
	}
}

func (u *usage) empty() bool {
	return len(u.enums) == 0 && len(u.inputs) == 0
}

// models emits the enums and input objects used by the documents.
func (e *emitter) models(u *usage) *jen.File {
	f := e.newFile()
	for _, name := range sortedNames(u.enums) {
		e.enum(f, e.schema.Types[name])
	}
	for _, name := range sortedNames(u.inputs) {
		def := e.schema.Types[name]
		comment(f, pascal(def.Name), def.Description, "is the "+def.Name+" input object.")
		fields := make([]jen.Code, 0, len(def.Fields))
		for _, fd := range def.Fields {
			fields = append(fields, jen.Id(pascal(fd.Name)).Add(e.inputType(fd.Type)).Tag(jsonTag(fd.Name, !fd.Type.NonNull)))
		}
		f.Type().Id(pascal(def.Name)).Struct(fields...)
	}
	return f
}

func (e *emitter) enum(f *jen.File, def *ast.Definition) {
	name := pascal(def.Name)
	comment(f, name, def.Description, "is the "+def.Name+" enum.")
	f.Type().Id(name).String()

	consts := make([]jen.Code, 0, len(def.EnumValues))
	values := make([]jen.Code, 0, len(def.EnumValues))
	for _, v := range def.EnumValues {
		id := enumValue(def.Name, v.Name)
		consts = append(consts, jen.Id(id).Id(name).Op("=").Lit(v.Name))
		values = append(values, jen.Id(id))
	}
	f.Const().Defs(consts...)

	f.Commentf("IsValid reports whether e is a known %s.", name)
	f.Func().Params(jen.Id("e").Id(name)).Id("IsValid").Params().Bool().Block(
		jen.Switch(jen.Id("e")).Block(
			jen.Case(values...).Block(jen.Return(jen.True())),
		),
		jen.Return(jen.False()),
	)

	f.Func().Params(jen.Id("e").Id(name)).Id("String").Params().String().Block(
		jen.Return(jen.String().Call(jen.Id("e"))),
	)
}

// =============================================================================
// Operation files
// =============================================================================

// operation is the generated view of one operation.
type operation struct {
	def  *ast.OperationDefinition
	text string // printed operation and the fragments it uses
	hash string
	hint cachecontrol.Result
}

func (e *emitter) operations(d *document) []operation {
	ops := make([]operation, 0, len(d.doc.Operations))
	for i, op := range d.doc.Operations {
		text := printOperation(d.doc, op)
		ops = append(ops, operation{def: op, text: text, hash: sha256Hex(text), hint: d.hints[i]})
	}
	return ops
}

// document emits the file for one operation document.
func (e *emitter) document(d *document, ops []operation) *jen.File {
	f := e.newFile()
	f.Commentf("Operations of %s.", d.name)
	f.Line()
	for _, op := range ops {
		e.operation(f, d, op)
	}
	return f
}

func (e *emitter) operation(f *jen.File, d *document, op operation) {
	name := pascal(op.def.Name)

	defs := []jen.Code{
		jen.Comment(name + "Document is the text of the " + op.def.Name + " " + string(op.def.Operation) + "."),
		jen.Id(name + "Document").Op("=").Add(rawString(op.text)),
		jen.Comment(name + "OperationName is the name to send along with " + name + "Document."),
		jen.Id(name + "OperationName").Op("=").Lit(op.def.Name),
		jen.Comment(name + "DocumentHash identifies " + name + "Document in persisted query manifests."),
		jen.Id(name + "DocumentHash").Op("=").Lit(op.hash),
	}
	if e.hints && op.def.Operation == ast.Query {
		defs = append(defs,
			jen.Comment(name+"MaxAge is how long a result of "+op.def.Name+" may be cached."),
			jen.Id(name+"MaxAge").Op("=").Lit(op.hint.MaxAge).Op("*").Qual("time", "Second"),
			jen.Comment(name+"CacheScope tells whether a result may be shared between users."),
			jen.Id(name+"CacheScope").Op("=").Lit(string(op.hint.Scope)),
		)
	}
	f.Const().Defs(defs...)

	if len(op.def.VariableDefinitions) > 0 {
		fields := make([]jen.Code, 0, len(op.def.VariableDefinitions))
		for _, v := range op.def.VariableDefinitions {
			fields = append(fields, jen.Id(pascal(v.Variable)).Add(e.inputType(v.Type)).Tag(jsonTag(v.Variable, !v.Type.NonNull)))
		}
		f.Commentf("%sVariables are the variables of %s.", name, op.def.Name)
		f.Type().Id(name + "Variables").Struct(fields...)
	}

	root := rootDefinition(e.schema, op.def.Operation)
	f.Commentf("%sResponse is the data returned by %s.", name, op.def.Name)
	f.Type().Id(name + "Response").Add(e.selectionStruct(d.doc, []ast.SelectionSet{op.def.SelectionSet}, root))
}

// selected is one response key of a selection set. Fields selected several
// times under the same key are merged.
type selected struct {
	key      string
	def      *ast.FieldDefinition
	optional bool // selected only for some concrete types
	sets     []ast.SelectionSet
}

func (e *emitter) collect(doc *ast.QueryDocument, set ast.SelectionSet, parent *ast.Definition, optional bool, out *[]*selected, index map[string]*selected, seen map[string]bool) {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			key := s.Alias
			if key == "" {
				key = s.Name
			}
			def := s.Definition
			if def == nil && parent != nil {
				def = parent.Fields.ForName(s.Name)
			}
			if s.Name == "__typename" {
				def = typenameField
			}
			if def == nil {
				continue
			}
			if cur, ok := index[key]; ok {
				cur.optional = cur.optional && optional
				cur.sets = append(cur.sets, s.SelectionSet)
				continue
			}
			it := &selected{key: key, def: def, optional: optional, sets: []ast.SelectionSet{s.SelectionSet}}
			index[key] = it
			*out = append(*out, it)
		case *ast.InlineFragment:
			e.collect(doc, s.SelectionSet, e.narrow(parent, s.TypeCondition), optional || narrows(parent, s.TypeCondition), out, index, seen)
		case *ast.FragmentSpread:
			frag := s.Definition
			if frag == nil {
				frag = doc.Fragments.ForName(s.Name)
			}
			if frag == nil || seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			e.collect(doc, frag.SelectionSet, e.narrow(parent, frag.TypeCondition), optional || narrows(parent, frag.TypeCondition), out, index, seen)
			delete(seen, s.Name)
		}
	}
}

var typenameField = &ast.FieldDefinition{Name: "__typename", Type: ast.NonNullNamedType("String", nil)}

func (e *emitter) narrow(parent *ast.Definition, cond string) *ast.Definition {
	if def := e.schema.Types[cond]; def != nil {
		return def
	}
	return parent
}

// narrows reports whether a fragment on cond applies to only some values of
// parent.
func narrows(parent *ast.Definition, cond string) bool {
	return cond != "" && parent != nil && cond != parent.Name
}

func (e *emitter) selectionStruct(doc *ast.QueryDocument, sets []ast.SelectionSet, parent *ast.Definition) *jen.Statement {
	var (
		items []*selected
		index = make(map[string]*selected)
	)
	for _, set := range sets {
		e.collect(doc, set, parent, false, &items, index, make(map[string]bool))
	}
	used := make(map[string]int)
	fields := make([]jen.Code, 0, len(items))
	for _, it := range items {
		id := pascal(it.key)
		if n := used[id]; n > 0 {
			used[id]++
			id = fmt.Sprintf("%s%d", id, n+1)
		} else {
			used[id] = 1
		}
		typ := e.outputType(doc, it.def.Type, it.sets, it.optional || !it.def.Type.NonNull)
		if it.def == typenameField {
			typ = jen.String()
		}
		fields = append(fields, jen.Id(id).Add(typ).Tag(map[string]string{"json": it.key}))
	}
	return jen.Struct(fields...)
}

func (e *emitter) outputType(doc *ast.QueryDocument, t *ast.Type, sets []ast.SelectionSet, nullable bool) *jen.Statement {
	if t.Elem != nil {
		return jen.Index().Add(e.outputType(doc, t.Elem, sets, !t.Elem.NonNull))
	}
	var base *jen.Statement
	if def := e.schema.Types[t.NamedType]; isComposite(def) {
		base = e.selectionStruct(doc, sets, def)
	} else {
		base = e.namedType(t.NamedType)
	}
	if nullable {
		return jen.Op("*").Add(base)
	}
	return base
}

func (e *emitter) inputType(t *ast.Type) *jen.Statement {
	if t.Elem != nil {
		return jen.Index().Add(e.inputType(t.Elem))
	}
	s := e.namedType(t.NamedType)
	if !t.NonNull {
		return jen.Op("*").Add(s)
	}
	return s
}

// namedType returns the Go type of a scalar, enum or input object.
func (e *emitter) namedType(name string) *jen.Statement {
	if gt, ok := e.scalars[name]; ok {
		if gt.Path == "" {
			return jen.Id(gt.Name)
		}
		return jen.Qual(gt.Path, gt.Name)
	}
	switch name {
	case "ID", "String":
		return jen.String()
	case "Int":
		return jen.Int()
	case "Float":
		return jen.Float64()
	case "Boolean":
		return jen.Bool()
	}
	if def := e.schema.Types[name]; def != nil && (def.Kind == ast.Enum || def.Kind == ast.InputObject) {
		return jen.Id(pascal(name))
	}
	return jen.Qual("encoding/json", "RawMessage")
}

// =============================================================================
// Helpers
// =============================================================================

func rootDefinition(schema *ast.Schema, op ast.Operation) *ast.Definition {
	switch op {
	case ast.Mutation:
		return schema.Mutation
	case ast.Subscription:
		return schema.Subscription
	default:
		return schema.Query
	}
}

func isComposite(def *ast.Definition) bool {
	if def == nil {
		return false
	}
	return def.Kind == ast.Object || def.Kind == ast.Interface || def.Kind == ast.Union
}

// printOperation prints op and the fragments it uses, in document order.
func printOperation(doc *ast.QueryDocument, op *ast.OperationDefinition) string {
	used := make(map[string]bool)
	var walk func(set ast.SelectionSet)
	walk = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *ast.Field:
				walk(s.SelectionSet)
			case *ast.InlineFragment:
				walk(s.SelectionSet)
			case *ast.FragmentSpread:
				if used[s.Name] {
					continue
				}
				used[s.Name] = true
				if frag := doc.Fragments.ForName(s.Name); frag != nil {
					walk(frag.SelectionSet)
				}
			}
		}
	}
	walk(op.SelectionSet)

	out := &ast.QueryDocument{Operations: ast.OperationList{op}}
	for _, frag := range doc.Fragments {
		if used[frag.Name] {
			out.Fragments = append(out.Fragments, frag)
		}
	}
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(out)
	return strings.TrimSpace(buf.String())
}

// rawString renders s as a raw string literal when it can be one.
func rawString(s string) *jen.Statement {
	if strings.Contains(s, "`") {
		return jen.Lit(s)
	}
	return jen.Id("`" + s + "`")
}

func jsonTag(name string, omitEmpty bool) map[string]string {
	if omitEmpty {
		return map[string]string{"json": name + ",omitempty"}
	}
	return map[string]string{"json": name}
}

func comment(f *jen.File, name, description, fallback string) {
	if description = strings.TrimSpace(description); description != "" {
		f.Comment(description)
		return
	}
	f.Comment(name + " " + fallback)
}

func sortedNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
