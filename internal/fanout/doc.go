// Package fanout executes procedure calls against sites.
//
// Ownership boundary:
// - single-site invocation through a site's connection pool
// - concurrent broadcast of one logical call to many sites under one
//   shared deadline
//
// Single-site failures stay inside their RPCResult; a broadcast fails as a
// whole only when it has no sites or no site answers before the deadline.
package fanout
