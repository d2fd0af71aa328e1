// Package aggregate assembles merged cross-site patient records.
//
// Ownership boundary:
// - clinical domain catalogue (procedure names, line layouts, dedupe keys)
// - identity-indexed fan-out per domain
// - entry deduplication, conflict flagging, and merge policy
// - FileMan date handling
//
// The aggregator treats partial failure as the normal case: every site or
// domain that did not contribute is named in the record's error list, and
// everything that did arrive stands on its own. Output ordering is fully
// deterministic so two runs against identical data render identically.
package aggregate
