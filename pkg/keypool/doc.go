// Package keypool hands out small, reusable, non-negative integer handles.
//
// Free handles are tracked as a sorted list of disjoint, non-adjacent closed
// ranges (RangeSet), so memory grows with the number of fragmentation
// boundaries rather than with the size of the domain or the number of live
// handles. Allocation always returns the lowest free handle, which keeps
// handle numbering reproducible across runs.
//
// A Pool is not safe for concurrent use. It is meant to be owned by a single
// logical thread of control, such as an event loop.
package keypool
