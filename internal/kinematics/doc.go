// Package kinematics derives motion and geometry from marker positions.
//
// Velocity is a second-order central difference and acceleration differences
// the velocities either side of a frame, so the first and last frame lose a
// velocity and the first and last two lose an acceleration. Any missing
// position inside a stencil makes the result unavailable rather than wrong.
//
// Segment and joint angles use the three-point formula: the angle between
// the rays from a vertex to the two other points. All functions are pure
// reads of the store; the Engine fans series out across goroutines from a
// snapshot.
package kinematics
