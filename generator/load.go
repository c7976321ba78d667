package generator

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/genwire/cachecontrol"
	"github.com/syssam/genwire/protocol"
)

// SchemaExt is the file extension of schema documents. Every other file is
// read as an operation document.
const SchemaExt = ".graphqls"

// sourceFile is one input file of a request.
type sourceFile struct {
	name string // as given in the request
	path string // resolved against the root directory
	text string
}

// document is a validated operation document.
type document struct {
	sourceFile
	doc   *ast.QueryDocument
	hints []cachecontrol.Result // one per operation, in document order
}

// project is everything loaded for one request.
type project struct {
	root      string
	schema    *ast.Schema
	documents []*document
}

// readFiles reads the documents named by req.
func readFiles(req *protocol.GeneratorRequest) ([]sourceFile, error) {
	if len(req.DocumentFileNames) == 0 {
		return nil, NewConfigError("DocumentFileNames", nil, "no documents given")
	}
	root := req.RootDirectory
	if root == "" {
		root = "."
	}
	var (
		files = make([]sourceFile, 0, len(req.DocumentFileNames))
		errs  Errors
	)
	for _, name := range req.DocumentFileNames {
		path := name
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, name)
		}
		buf, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, NewGenerationError("load", name, "read document", err))
			continue
		}
		files = append(files, sourceFile{name: name, path: path, text: string(buf)})
	}
	return files, errs.orNil()
}

// load parses the schema and validates every operation document against it.
func load(files []sourceFile, opts cachecontrol.Options) (*project, error) {
	var (
		sources []*ast.Source
		ops     []sourceFile
	)
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f.name), SchemaExt) {
			sources = append(sources, &ast.Source{Name: f.name, Input: f.text})
		} else {
			ops = append(ops, f)
		}
	}
	if len(sources) == 0 {
		return nil, NewConfigError("DocumentFileNames", nil, "no schema document (*"+SchemaExt+") given")
	}
	schema, err := gqlparser.LoadSchema(cachecontrol.WithDirectives(sources...)...)
	if err != nil {
		return nil, schemaErrors(err)
	}

	p := &project{schema: schema}
	var errs Errors
	defined := make(map[string]string) // operation name to file
	for _, f := range ops {
		doc, list := gqlparser.LoadQuery(schema, f.text)
		if len(list) > 0 {
			errs = append(errs, documentErrors(f.name, list)...)
			continue
		}
		for _, op := range doc.Operations {
			if op.Name == "" {
				errs = append(errs, located(NewDocumentError(f.name, "", "operations must be named"), op.Position))
				continue
			}
			if other, ok := defined[op.Name]; ok {
				errs = append(errs, located(NewDocumentError(f.name, op.Name, "operation already defined in "+other), op.Position))
				continue
			}
			defined[op.Name] = f.name
		}
		p.documents = append(p.documents, &document{
			sourceFile: f,
			doc:        doc,
			hints:      cachecontrol.Compute(schema, doc, opts),
		})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	sort.SliceStable(p.documents, func(i, j int) bool {
		return p.documents[i].name < p.documents[j].name
	})
	return p, nil
}

func located(e *DocumentError, pos *ast.Position) *DocumentError {
	if pos != nil {
		e.Line, e.Column = pos.Line, pos.Column
	}
	return e
}
