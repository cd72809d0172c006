// Package intel implements the scatter-gather intelligence aggregation
// engine: a polymorphic source interface, a concurrent fan-out aggregator
// with per-query timeouts and per-source fault metrics, and a key-value
// backed coalescing cache.
//
// The aggregation contract is deliberately forgiving: a query never fails
// because a source misbehaves. Sources that error, time out, or return
// invalid items contribute zero results and a metrics increment; the merged
// list is always returned, sorted by (priority asc, confidence desc,
// registration order) with a stable sort.
package intel
