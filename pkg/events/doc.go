/*
Package events provides an in-memory broker for convergence progress.

The reconciler publishes one event per step of a run (run started, artifact
observed, changed, failed or skipped, service refreshed, run finished). The
CLI subscribes to print live progress; tests subscribe to assert ordering.

	Reconciler ──Publish──▶ event channel (256) ──▶ broadcast loop
	                                                   │
	                                   ┌───────────────┼───────────────┐
	                                   ▼               ▼               ▼
	                              Subscriber      Subscriber      Subscriber
	                              (buffer 128)    (buffer 128)    (buffer 128)

Delivery is best effort: a subscriber whose buffer is full misses events.
Stop flushes events that were already published, then closes every
subscriber channel, so a consumer can simply range over its Subscriber.

Events carry artifact IDs and redacted messages only. Commands of sensitive
artifacts never appear in an event.
*/
package events
