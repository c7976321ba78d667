// Package generator turns GraphQL operation documents into Go client code.
//
// A Generator implements worker.Generator, so it can be served over the
// genwire protocol or called directly. For every request it:
//
//   - reads the schema (*.graphqls) and operation documents named by the request
//   - validates the operations against the schema
//   - emits one Go file per operation document plus models.go
//     (users/get.graphql and posts/get.graphql become users_get.go and
//     posts_get.go; two documents mapping to one file is an error)
//   - optionally emits a persisted query manifest
//
// # Generated Code
//
// For an operation named GetUser the document file declares:
//
//	const (
//		GetUserDocument      = `query GetUser($id: ID!) { ... }`
//		GetUserOperationName = "GetUser"
//		GetUserDocumentHash  = "3b1f..."
//		GetUserMaxAge        = 300 * time.Second
//		GetUserCacheScope    = "PUBLIC"
//	)
//
//	type GetUserVariables struct { ... }
//	type GetUserResponse struct { ... }
//
// Fragments are flattened into the response structs. Fields only selected
// for some concrete types are pointers.
//
// # Cache Hints
//
// MaxAge and CacheScope come from the @cacheControl directives of the
// schema, see package cachecontrol. The request options
// cacheControl.defaultMaxAge, cacheControl.defaultScope and
// cacheControl.hints override the configured defaults.
//
// # Result Cache
//
// WithCache stores generated documents keyed by a hash of every input, so an
// unchanged project is answered without parsing it again.
package generator
