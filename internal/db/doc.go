// Package db persists editing sessions in SQLite: session headers, the
// ordered edit history recorded through session.Recorder, and generated
// reports with their flattened summary rows. The schema is managed by
// embedded golang-migrate migrations.
package db
