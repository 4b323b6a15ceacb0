// Package feed ingests earthquake reports from the directory feed written by
// the product distribution client and purges expired feed directories.
//
// The feed layout is
//
//	root/<event-name>/<event-name[0:2]>/<time-partition>/{eqxml.xml, quakeml.xml}
//
// A partition is marked as processed by a sentinel file (eqxml.txt) holding
// the word "Done", written before the report is parsed.
package feed

import "errors"

const (
	SentinelFile    = "eqxml.txt"
	SentinelContent = "Done"
	EQXMLFile       = "eqxml.xml"
	QuakeMLFile     = "quakeml.xml"
)

// ErrMalformedReport marks a partition whose report could not be turned into
// an event. It wraps model.ErrMissingField when required fields are absent.
var ErrMalformedReport = errors.New("malformed event report")

// partitionPrefix returns the second-level directory name for an event.
func partitionPrefix(eventName string) string {
	if len(eventName) <= 2 {
		return eventName
	}
	return eventName[:2]
}
