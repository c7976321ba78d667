package generator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"go/token"
	"maps"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dave/jennifer/jen"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/imports"

	"github.com/syssam/genwire"
	"github.com/syssam/genwire/cachecontrol"
	"github.com/syssam/genwire/protocol"
	"github.com/syssam/genwire/worker"
)

// Request options understood by the generator.
const (
	OptionDefaultMaxAge = "cacheControl.defaultMaxAge"
	OptionDefaultScope  = "cacheControl.defaultScope"
	// OptionCacheHints set to "false" omits the MaxAge and CacheScope constants.
	OptionCacheHints = "cacheControl.hints"
	// OptionScalarPrefix maps a custom scalar to a Go type:
	// "scalar.Time" = "time.Time". A type without a package is predeclared.
	OptionScalarPrefix = "scalar."
)

const (
	// DefaultPackage is used when a request names no package.
	DefaultPackage = "graphql"
	// ManifestName is the file name of the persisted query manifest.
	ManifestName = "persisted-queries.json"
	// ModelsName is the file holding the enums and input objects.
	ModelsName = "models.go"

	cacheScope = "generate"
)

// Generator turns GraphQL documents into Go client code.
type Generator struct {
	cfg *Config
}

var _ worker.Generator = (*Generator)(nil)

// New returns a Generator configured by opts.
func New(opts ...Option) (*Generator, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg}, nil
}

// Config returns the generator configuration.
func (g *Generator) Config() *Config {
	return g.cfg
}

// Generate implements worker.Generator. Failures are returned as Errors so
// that every problem reaches the client with its code and location.
func (g *Generator) Generate(ctx context.Context, req *protocol.GeneratorRequest) (*protocol.GeneratorResponse, error) {
	if req == nil {
		return nil, Errors{NewConfigError("Request", nil, "request cannot be nil")}
	}
	docs, err := g.generate(ctx, req)
	if err != nil {
		return nil, asErrors(err)
	}
	return &protocol.GeneratorResponse{Documents: docs}, nil
}

func (g *Generator) generate(ctx context.Context, req *protocol.GeneratorRequest) ([]protocol.SourceDocument, error) {
	start := time.Now()
	pkg := req.Package
	if pkg == "" {
		pkg = DefaultPackage
	}
	if !token.IsIdentifier(pkg) {
		return nil, NewConfigError("Package", pkg, "not a valid Go package name")
	}
	ccOpts, hints, err := g.cacheControl(req)
	if err != nil {
		return nil, err
	}
	scalars, err := g.scalars(req)
	if err != nil {
		return nil, err
	}
	files, err := readFiles(req)
	if err != nil {
		return nil, err
	}

	key, err := g.cacheKey(req, pkg, files)
	if err != nil {
		return nil, err
	}
	if docs, ok := g.cached(ctx, key); ok {
		g.cfg.Logger.Debug("genwire: served from cache", "package", pkg)
		return docs, nil
	}

	p, err := load(files, ccOpts)
	if err != nil {
		return nil, err
	}
	p.root = req.RootDirectory
	docs, err := g.emit(ctx, &emitter{cfg: g.cfg, pkg: pkg, schema: p.schema, scalars: scalars, hints: hints}, p)
	if err != nil {
		return nil, err
	}
	if req.PersistedQueryDirectory != "" {
		m, err := manifest(p, req)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *m)
	}
	g.store(ctx, key, docs)

	g.cfg.Logger.Info("genwire: generated",
		"package", pkg,
		"documents", len(p.documents),
		"files", len(docs),
		"duration", time.Since(start),
	)
	return docs, nil
}

// cacheControl applies the request overrides to the configured defaults.
func (g *Generator) cacheControl(req *protocol.GeneratorRequest) (cachecontrol.Options, bool, error) {
	opts := g.cfg.CacheControl
	if v := req.Option(OptionDefaultMaxAge, ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, false, NewConfigError(OptionDefaultMaxAge, v, "must be a non-negative integer")
		}
		opts.DefaultMaxAge = n
	}
	if v := req.Option(OptionDefaultScope, ""); v != "" {
		switch s := cachecontrol.Scope(v); s {
		case cachecontrol.ScopePublic, cachecontrol.ScopePrivate:
			opts.DefaultScope = s
		default:
			return opts, false, NewConfigError(OptionDefaultScope, v, "use PUBLIC or PRIVATE")
		}
	}
	hints := true
	if v := req.Option(OptionCacheHints, ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, false, NewConfigError(OptionCacheHints, v, "must be a boolean")
		}
		hints = b
	}
	return opts, hints, nil
}

// scalars merges the scalar mappings of the request into the configured ones.
func (g *Generator) scalars(req *protocol.GeneratorRequest) (map[string]GoType, error) {
	out := maps.Clone(g.cfg.Scalars)
	if out == nil {
		out = make(map[string]GoType)
	}
	for k, v := range req.Options {
		name, ok := strings.CutPrefix(k, OptionScalarPrefix)
		if !ok {
			continue
		}
		gt, err := ParseGoType(v)
		if err != nil || name == "" {
			return nil, NewConfigError(k, v, "use an import path and a type name, such as time.Time")
		}
		out[name] = gt
	}
	return out, nil
}

// ParseGoType parses a qualified Go type such as "time.Time" or
// "github.com/google/uuid.UUID". A name without a package, such as "string",
// is a predeclared type.
func ParseGoType(s string) (GoType, error) {
	i := strings.LastIndex(s, ".")
	if i < 0 {
		if !token.IsIdentifier(s) {
			return GoType{}, fmt.Errorf("invalid type %q", s)
		}
		return GoType{Name: s}, nil
	}
	gt := GoType{Path: s[:i], Name: s[i+1:]}
	if gt.Path == "" || strings.HasSuffix(gt.Path, "/") || !token.IsExported(gt.Name) {
		return GoType{}, fmt.Errorf("invalid type %q", s)
	}
	return gt, nil
}

// emit renders every file of the project in parallel.
func (g *Generator) emit(ctx context.Context, e *emitter, p *project) ([]protocol.SourceDocument, error) {
	type task struct {
		name   string
		render func() *jen.File
	}
	var (
		tasks []task
		errs  Errors
	)
	names := make([]string, len(p.documents))
	for i, d := range p.documents {
		names[i] = d.name
	}
	// models.go is reserved even when no model is emitted.
	owner := map[string]string{ModelsName: ""}
	u := newUsage(p.schema)
	for i, name := range fileNames(p.root, names) {
		d := p.documents[i]
		if other, ok := owner[name]; ok {
			msg := "output file " + name + " is reserved"
			if other != "" {
				msg = "output file " + name + " is also generated for " + other
			}
			errs = append(errs, NewGenerationError("emit", d.name, msg, nil))
			continue
		}
		owner[name] = d.name
		u.addDocument(d.doc)
		ops := e.operations(d)
		tasks = append(tasks, task{
			name:   name,
			render: func() *jen.File { return e.document(d, ops) },
		})
	}
	if len(errs) > 0 {
		return nil, errs
	}
	if !u.empty() {
		tasks = append(tasks, task{name: ModelsName, render: func() *jen.File { return e.models(u) }})
	}

	docs := make([]protocol.SourceDocument, len(tasks))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for i, t := range tasks {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := t.render().Render(&buf); err != nil {
				return NewGenerationError("emit", t.name, "render", err)
			}
			src, err := imports.Process(t.name, buf.Bytes(), nil)
			if err != nil {
				return NewGenerationError("emit", t.name, "format", err)
			}
			docs[i] = protocol.SourceDocument{
				Name:       t.name,
				Path:       t.name,
				Kind:       protocol.DocumentGo,
				SourceText: string(src),
				Hash:       sha256Hex(string(src)),
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// ManifestEntry is one operation of the persisted query manifest.
type ManifestEntry struct {
	Operation string `json:"operation"`
	Kind      string `json:"kind"`
	Document  string `json:"document"`
	MaxAge    int    `json:"maxAge"`
	Scope     string `json:"scope,omitempty"`
}

// manifest builds the persisted query manifest, keyed by document hash. Its
// path is absolute since it lives outside the output directory.
func manifest(p *project, req *protocol.GeneratorRequest) (*protocol.SourceDocument, error) {
	entries := make(map[string]ManifestEntry)
	for _, d := range p.documents {
		for i, op := range d.doc.Operations {
			text := printOperation(d.doc, op)
			entry := ManifestEntry{Operation: op.Name, Kind: string(op.Operation), Document: text}
			if hint := d.hints[i]; hint.Cacheable() {
				entry.MaxAge = hint.MaxAge
				entry.Scope = string(hint.Scope)
			}
			entries[sha256Hex(text)] = entry
		}
	}
	buf, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, NewGenerationError("manifest", ManifestName, "encode", err)
	}
	dir := req.PersistedQueryDirectory
	if !filepath.IsAbs(dir) {
		root := req.RootDirectory
		if root == "" {
			root = "."
		}
		dir = filepath.Join(root, dir)
	}
	abs, err := filepath.Abs(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, NewGenerationError("manifest", ManifestName, "resolve path", err)
	}
	text := string(append(buf, '\n'))
	return &protocol.SourceDocument{
		Name:       ManifestName,
		Path:       abs,
		Kind:       protocol.DocumentPersistedQueries,
		SourceText: text,
		Hash:       sha256Hex(text),
	}, nil
}

// =============================================================================
// Result cache
// =============================================================================

// cacheInput is everything a generated result depends on.
type cacheInput struct {
	Package   string               `msgpack:"package"`
	PQDir     string               `msgpack:"pqDir"`
	Root      string               `msgpack:"root"`
	Options   map[string]string    `msgpack:"options"`
	Header    string               `msgpack:"header"`
	Scalars   map[string]GoType    `msgpack:"scalars"`
	Defaults  cachecontrol.Options `msgpack:"defaults"`
	Documents []cacheFile          `msgpack:"documents"`
}

type cacheFile struct {
	Name string `msgpack:"name"`
	Text string `msgpack:"text"`
}

func (g *Generator) cacheKey(req *protocol.GeneratorRequest, pkg string, files []sourceFile) (string, error) {
	if g.cfg.Cache == nil {
		return "", nil
	}
	in := cacheInput{
		Package:  pkg,
		PQDir:    req.PersistedQueryDirectory,
		Root:     req.RootDirectory,
		Options:  req.Options,
		Header:   g.cfg.Header,
		Scalars:  g.cfg.Scalars,
		Defaults: g.cfg.CacheControl,
	}
	for _, f := range files {
		in.Documents = append(in.Documents, cacheFile{Name: f.name, Text: f.text})
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(&in); err != nil {
		return "", NewGenerationError("cache", "", "hash inputs", err)
	}
	sum := sha256.Sum256(buf.Bytes())
	return genwire.CacheKey{Scope: cacheScope, Document: hex.EncodeToString(sum[:]), Operation: pkg}.String(), nil
}

func (g *Generator) cached(ctx context.Context, key string) ([]protocol.SourceDocument, bool) {
	if key == "" {
		return nil, false
	}
	buf, err := g.cfg.Cache.Get(ctx, key)
	if err != nil {
		g.cfg.Logger.Warn("genwire: cache get failed", "error", err)
		return nil, false
	}
	if buf == nil {
		return nil, false
	}
	var docs []protocol.SourceDocument
	if err := msgpack.Unmarshal(buf, &docs); err != nil {
		g.cfg.Logger.Warn("genwire: dropping unreadable cache entry", "error", err)
		_ = g.cfg.Cache.Delete(ctx, key)
		return nil, false
	}
	return docs, true
}

func (g *Generator) store(ctx context.Context, key string, docs []protocol.SourceDocument) {
	if key == "" {
		return
	}
	buf, err := msgpack.Marshal(docs)
	if err == nil {
		err = g.cfg.Cache.Set(ctx, key, buf, g.cfg.CacheTTL)
	}
	if err != nil {
		g.cfg.Logger.Warn("genwire: cache set failed", "error", err)
	}
}

// asErrors wraps a single error so its code survives the trip to the client.
func asErrors(err error) Errors {
	var list Errors
	if errors.As(err, &list) {
		return list
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Errors{NewGenerationError("emit", "", "canceled", err)}
	}
	return Errors{err}
}
