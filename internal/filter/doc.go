// Package filter smooths marker trajectories. Five filter families are
// available: zero-phase Butterworth low-pass, constant-acceleration Kalman,
// Gaussian kernel, LOESS and running median. Every filter works on the
// contiguous runs of finite samples and leaves gaps untouched.
package filter
