// Package outliers flags anatomically implausible marker positions.
//
// Detection treats every skeleton pair as a rigid segment and compares its
// length between consecutive frames. A relative change above the threshold
// flags both endpoints, since a length violation cannot be attributed to a
// single marker without more constraints. Missing samples and zero-length
// segments are skipped, not reported.
//
// The mask is always rebuilt from scratch; callers rerun Detect after any
// edit to the store.
package outliers
