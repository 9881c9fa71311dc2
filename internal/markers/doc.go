// Package markers holds the position table every other part of the engine
// reads from.
//
// A Store is indexed by frame (0-based, contiguous) and holds X, Y and Z
// columns per marker. Missing samples are NaN and are an ordinary state:
// reads for a valid frame never fail because data is absent. Errors are
// reserved for malformed requests, such as an unknown marker or a frame
// outside the capture.
//
// The package also defines the error taxonomy shared by the detection,
// repair, filter and report packages. Every typed error unwraps to one of
// the Err* sentinels so callers can use errors.Is for coarse matching and
// errors.As for the offending field.
package markers
