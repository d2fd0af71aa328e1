// Package broker owns one authenticated session to one site.
//
// Ownership boundary:
// - connection state machine (connect, login, set-context, execute, bye)
// - transport deadlines and teardown rules
// - the client-side error taxonomy
//
// A Connection is not safe for concurrent use; the pool guarantees exactly
// one execute in flight per connection.
package broker
