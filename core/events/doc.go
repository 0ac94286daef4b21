// Package events defines the allocation related events emitted on the event
// bus and forwarded to the notification sink.
//
// Available event types:
//   - AllocationCommitted: a fulfillment transaction succeeded
//   - RequestRejected: a request was cancelled by an operator
//   - DispatchStatusChanged: a shipment status update was applied
package events
