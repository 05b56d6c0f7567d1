// Package audit delivers session lifecycle events to a caller-supplied sink
// off the request path.
//
// The [Dispatcher] owns buffering and delivery only. Which events are emitted
// is decided by the goToken Manager. Sinks provided here write to a channel,
// a JSON line stream or an slog logger.
//
// This package must not import goToken or any sibling internal package.
package audit
