// Package trc reads and writes the tab-separated TRC marker trajectory
// format.
package trc
