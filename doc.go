// Package meshtel ingests telemetry from a mesh of field devices into a
// queryable reading store.
//
// # Data flow
//
// Devices publish JSON readings onto an MQTT topic hierarchy:
//
//	<base>/gateway/<mac>      gateway link-quality (RSSI) readings
//	<base>/temperature/<mac>  temperature sensor readings
//
// The mqtt input subscribes both wildcard filters and hands every delivery to
// the ingest pipeline, which classifies the message by topic, validates and
// coerces the payload, resolves the sender against the pre-provisioned device
// directory, and appends the reading to the sqlite store. Each message ends in
// exactly one of three ways: accepted and persisted, rejected with a
// structured reason, or dropped as a logged no-op for off-hierarchy topics.
// Storage faults are the only errors that propagate past the pipeline.
//
// On the transport path the payload timestamp is replaced with the arrival
// time, since field devices carry no reliable clock. Readings submitted
// through the HTTP API keep their caller-supplied timestamp.
//
// # Layout
//
//   - ingest: classifier, validator, pipeline and outcomes
//   - device: device directory and class resolution
//   - store: append-only sqlite reading store with range queries
//   - input/mqtt: broker subscription and delivery handling
//   - output/livefeed: websocket fan-out of accepted readings
//   - api: HTTP submission, query, device listing, health and metrics
//   - cmd/meshtel: service entry point
package meshtel
