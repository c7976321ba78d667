package protocol

import "fmt"

// Kind is the frame discriminator of a Message.
type Kind uint8

// Message kinds as they appear on the wire.
const (
	KindRequest  Kind = 1
	KindResponse Kind = 2
	KindClose    Kind = 3
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindClose:
		return "close"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is a protocol unit. The set of implementations is closed:
// *GeneratorRequest, *GeneratorResponse and *CloseMessage.
type Message interface {
	Kind() Kind
	message()
}

// GeneratorRequest asks the worker to generate code.
type GeneratorRequest struct {
	// ID correlates the request with its response. The client fills it in
	// when empty.
	ID string `msgpack:"id,omitempty"`

	ConfigFileName          string            `msgpack:"configFileName,omitempty"`
	RootDirectory           string            `msgpack:"rootDirectory,omitempty"`
	Package                 string            `msgpack:"package,omitempty"`
	PersistedQueryDirectory string            `msgpack:"persistedQueryDirectory,omitempty"`
	DocumentFileNames       []string          `msgpack:"documentFileNames,omitempty"`
	Options                 map[string]string `msgpack:"options,omitempty"`
}

// Kind implements Message.
func (*GeneratorRequest) Kind() Kind { return KindRequest }

func (*GeneratorRequest) message() {}

// Option returns the named request option, or def when it is unset.
func (r *GeneratorRequest) Option(name, def string) string {
	if v, ok := r.Options[name]; ok {
		return v
	}
	return def
}

// GeneratorResponse carries the result of one GeneratorRequest.
type GeneratorResponse struct {
	// ID echoes GeneratorRequest.ID. Workers that do not correlate leave it empty.
	ID string `msgpack:"id,omitempty"`

	Documents []SourceDocument `msgpack:"documents,omitempty"`
	Errors    []GeneratorError `msgpack:"errors,omitempty"`
}

// Kind implements Message.
func (*GeneratorResponse) Kind() Kind { return KindResponse }

func (*GeneratorResponse) message() {}

// HasErrors reports whether the worker reported any error.
func (r *GeneratorResponse) HasErrors() bool { return len(r.Errors) > 0 }

// CloseMessage asks the worker to shut down.
type CloseMessage struct{}

// Kind implements Message.
func (*CloseMessage) Kind() Kind { return KindClose }

func (*CloseMessage) message() {}

// DocumentKind classifies a generated document.
type DocumentKind string

// Document kinds produced by the generator.
const (
	DocumentGo               DocumentKind = "go"
	DocumentPersistedQueries DocumentKind = "persisted-queries"
)

// SourceDocument is one generated artifact.
type SourceDocument struct {
	Name       string       `msgpack:"name"`
	Path       string       `msgpack:"path,omitempty"` // relative to the output directory
	Kind       DocumentKind `msgpack:"kind"`
	SourceText string       `msgpack:"sourceText"`
	Hash       string       `msgpack:"hash,omitempty"`
}

// GeneratorError reports a problem found while generating.
type GeneratorError struct {
	Code     string `msgpack:"code"`
	Message  string `msgpack:"message"`
	FilePath string `msgpack:"filePath,omitempty"`
	Line     int    `msgpack:"line,omitempty"`
	Column   int    `msgpack:"column,omitempty"`
}

// Error implements the error interface.
func (e GeneratorError) Error() string {
	switch {
	case e.FilePath != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d:%d: %s (%s)", e.FilePath, e.Line, e.Column, e.Message, e.Code)
	case e.FilePath != "":
		return fmt.Sprintf("%s: %s (%s)", e.FilePath, e.Message, e.Code)
	default:
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
}
