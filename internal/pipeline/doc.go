// Package pipeline runs plugin hooks for the telemetry client.
//
// Plugins are invoked in registration order, synchronously with the event
// that triggers them:
//   - OnInteractionStart: after an interaction is registered and made current
//   - OnInteractionEnd, OnSpan, OnTrace: before the record is rendered, so
//     mutations (for example redaction) are reflected in what is sent
//   - Flush, Shutdown: sequentially, before the transport flushes or closes
//
// A hook that returns an error or panics is logged and skipped. It never
// prevents later plugins from running and never aborts the record.
package pipeline
