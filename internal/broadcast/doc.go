// Package broadcast fans timeline messages out to connected viewers.
//
// Each subscriber gets a bounded queue and its own write goroutine, so one
// slow viewer never stalls the ingest path or other viewers. A subscriber
// whose queue fills up or whose send fails is dropped and closed.
package broadcast
