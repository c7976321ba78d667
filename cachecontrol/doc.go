// Package cachecontrol computes cache hints for GraphQL operations.
//
// Hints come from the @cacheControl directive on schema fields and types:
//
//	type Query {
//	  me: User @cacheControl(maxAge: 30, scope: PRIVATE)
//	  posts: [Post!]!
//	}
//
//	type Post @cacheControl(maxAge: 300) {
//	  title: String!
//	  author: User @cacheControl(inheritMaxAge: true)
//	}
//
// The hint of an operation is the smallest maxAge of every selected field
// and is PRIVATE when any selected field is. Fields returning scalars and
// fields marked inheritMaxAge follow their parent; root fields and fields
// returning composite types without a hint fall back to
// Options.DefaultMaxAge.
//
// Middleware uses the computed hints to serve repeated queries from a
// genwire.Cache.
package cachecontrol
