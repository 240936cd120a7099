// Package watch implements the poll-detect-notify loop.
//
// One iteration fetches the statuses newer than the cursor, validates the
// payload, interprets the newest record and delivers the resulting text
// unless it equals the last delivered message. Every failure except missing
// configuration is contained: it is logged, reported once to the operator
// channel and retried on the next iteration.
package watch
