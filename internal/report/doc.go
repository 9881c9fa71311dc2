// Package report aggregates a marker session into summary statistics and
// renders them as JSON, CSV, PNG plots and interactive HTML charts.
//
// Every statistic skips missing samples. A quantity with no finite sample
// at all is reported as "no data" rather than zero.
package report
