package generator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/syssam/genwire/protocol"
)

// Sentinel errors for common failure cases.
var (
	// ErrInvalidSchema indicates a schema that does not load.
	ErrInvalidSchema = errors.New("genwire: invalid schema")
	// ErrInvalidDocument indicates an operation document that does not validate.
	ErrInvalidDocument = errors.New("genwire: invalid document")
	// ErrMissingConfig indicates a configuration error.
	ErrMissingConfig = errors.New("genwire: missing configuration")
	// ErrGenerationFailed indicates a code generation failure.
	ErrGenerationFailed = errors.New("genwire: code generation failed")
)

// Error codes reported in protocol.GeneratorError.
const (
	CodeSchema     = "SCHEMA_INVALID"
	CodeDocument   = "DOCUMENT_INVALID"
	CodeConfig     = "CONFIG_INVALID"
	CodeGeneration = "GENERATION_FAILED"
)

// SchemaError represents a schema definition error.
type SchemaError struct {
	File    string
	Line    int
	Column  int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("genwire: schema error")
	writeLocation(&b, e.File, e.Line, e.Column)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches the sentinel error for SchemaError.
func (e *SchemaError) Is(target error) bool {
	return target == ErrInvalidSchema
}

// GeneratorError converts the error for the wire.
func (e *SchemaError) GeneratorError() protocol.GeneratorError {
	return protocol.GeneratorError{Code: CodeSchema, Message: e.Message, FilePath: e.File, Line: e.Line, Column: e.Column}
}

// NewSchemaError creates a new SchemaError.
func NewSchemaError(file, message string, cause error) *SchemaError {
	return &SchemaError{File: file, Message: message, Cause: cause}
}

// DocumentError represents an invalid operation document.
type DocumentError struct {
	File      string
	Operation string
	Line      int
	Column    int
	Message   string
}

// Error implements the error interface.
func (e *DocumentError) Error() string {
	var b strings.Builder
	b.WriteString("genwire: document error")
	writeLocation(&b, e.File, e.Line, e.Column)
	if e.Operation != "" {
		b.WriteString(" in operation ")
		b.WriteString(e.Operation)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// Is reports whether the target matches the sentinel error for DocumentError.
func (e *DocumentError) Is(target error) bool {
	return target == ErrInvalidDocument
}

// GeneratorError converts the error for the wire.
func (e *DocumentError) GeneratorError() protocol.GeneratorError {
	return protocol.GeneratorError{Code: CodeDocument, Message: e.Message, FilePath: e.File, Line: e.Line, Column: e.Column}
}

// NewDocumentError creates a new DocumentError.
func NewDocumentError(file, operation, message string) *DocumentError {
	return &DocumentError{File: file, Operation: operation, Message: message}
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Option  string
	Value   any
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("genwire: config error for %q (value: %v): %s", e.Option, e.Value, e.Message)
	}
	return fmt.Sprintf("genwire: config error for %q: %s", e.Option, e.Message)
}

// Is reports whether the target matches the sentinel error for ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrMissingConfig
}

// GeneratorError converts the error for the wire.
func (e *ConfigError) GeneratorError() protocol.GeneratorError {
	return protocol.GeneratorError{Code: CodeConfig, Message: e.Error()}
}

// NewConfigError creates a new ConfigError.
func NewConfigError(option string, value any, message string) *ConfigError {
	return &ConfigError{Option: option, Value: value, Message: message}
}

// GenerationError represents a code generation error.
type GenerationError struct {
	Phase   string // "emit", "cache", "manifest"
	File    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	var b strings.Builder
	b.WriteString("genwire: generation error")
	if e.Phase != "" {
		b.WriteString(" in phase ")
		b.WriteString(e.Phase)
	}
	if e.File != "" {
		b.WriteString(" (file: ")
		b.WriteString(e.File)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches the sentinel error for GenerationError.
func (e *GenerationError) Is(target error) bool {
	return target == ErrGenerationFailed
}

// GeneratorError converts the error for the wire.
func (e *GenerationError) GeneratorError() protocol.GeneratorError {
	return protocol.GeneratorError{Code: CodeGeneration, Message: e.Error(), FilePath: e.File}
}

// NewGenerationError creates a new GenerationError.
func NewGenerationError(phase, file, message string, cause error) *GenerationError {
	return &GenerationError{Phase: phase, File: file, Message: message, Cause: cause}
}

// Errors collects the problems found in one request.
type Errors []error

// Error implements the error interface.
func (e Errors) Error() string {
	switch len(e) {
	case 0:
		return "genwire: no errors"
	case 1:
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("genwire: %d errors:\n%s", len(e), strings.Join(msgs, "\n"))
}

// Unwrap returns the collected errors.
func (e Errors) Unwrap() []error {
	return e
}

// GeneratorErrors converts every collected error for the wire.
func (e Errors) GeneratorErrors() []protocol.GeneratorError {
	out := make([]protocol.GeneratorError, 0, len(e))
	for _, err := range e {
		out = append(out, toGeneratorError(err))
	}
	return out
}

func toGeneratorError(err error) protocol.GeneratorError {
	var conv interface{ GeneratorError() protocol.GeneratorError }
	if errors.As(err, &conv) {
		return conv.GeneratorError()
	}
	return protocol.GeneratorError{Code: CodeGeneration, Message: err.Error()}
}

// orNil returns nil for an empty list so callers can return it as error.
func (e Errors) orNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// schemaErrors converts a gqlparser schema error.
func schemaErrors(err error) Errors {
	var list gqlerror.List
	if errors.As(err, &list) {
		out := make(Errors, 0, len(list))
		for _, e := range list {
			out = append(out, schemaError(e))
		}
		return out
	}
	var single *gqlerror.Error
	if errors.As(err, &single) {
		return Errors{schemaError(single)}
	}
	return Errors{NewSchemaError("", err.Error(), nil)}
}

func schemaError(e *gqlerror.Error) *SchemaError {
	se := &SchemaError{Message: e.Message}
	if file, ok := e.Extensions["file"].(string); ok {
		se.File = file
	}
	if len(e.Locations) > 0 {
		se.Line = e.Locations[0].Line
		se.Column = e.Locations[0].Column
	}
	return se
}

// documentErrors converts the validation errors of one document.
func documentErrors(file string, list gqlerror.List) Errors {
	out := make(Errors, 0, len(list))
	for _, e := range list {
		de := &DocumentError{File: file, Message: e.Message}
		if len(e.Locations) > 0 {
			de.Line = e.Locations[0].Line
			de.Column = e.Locations[0].Column
		}
		out = append(out, de)
	}
	return out
}

func writeLocation(b *strings.Builder, file string, line, col int) {
	if file == "" {
		return
	}
	b.WriteString(" in ")
	b.WriteString(file)
	if line > 0 {
		fmt.Fprintf(b, ":%d:%d", line, col)
	}
}

// IsSchemaError reports whether the error is a SchemaError.
func IsSchemaError(err error) bool {
	var schemaErr *SchemaError
	return errors.As(err, &schemaErr)
}

// IsDocumentError reports whether the error is a DocumentError.
func IsDocumentError(err error) bool {
	var docErr *DocumentError
	return errors.As(err, &docErr)
}

// IsConfigError reports whether the error is a ConfigError.
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}

// IsGenerationError reports whether the error is a GenerationError.
func IsGenerationError(err error) bool {
	var genErr *GenerationError
	return errors.As(err, &genErr)
}
