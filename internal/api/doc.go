// Package api serves marker editing sessions over HTTP: opening TRC files
// from a data directory, applying deletes, repairs and filters, and
// returning reports, charts and the edited data.
package api
