// Package exposure records which beams delivered data during which
// 10-second bins of a UTC day, and persists one grid per day.
//
// A Tracker is owned by exactly one frame assembler; none of the types in
// this package are safe for concurrent mutation.
package exposure
