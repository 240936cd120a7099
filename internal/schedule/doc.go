// Package schedule turns the poll cadence settings into a sleep duration.
package schedule
