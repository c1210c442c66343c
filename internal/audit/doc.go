// Package audit relays security events from the engine to sinks asynchronously.
//
// # Components
//
//   - [Event] is the structured record: time, type, user, session, jti, IP, outcome.
//   - [Sink] receives events. Provided sinks: [NoOpSink], [ChannelSink],
//     [JSONWriterSink] and [ZapSink].
//   - [Dispatcher] buffers events and either drops or blocks when full.
//     Critical event types, such as refresh_reuse_detected, are never dropped.
//
// # What this package must NOT do
//
//   - Decide which events to emit; the engine and flows do that.
//   - Import authcore or any sibling internal package.
package audit
