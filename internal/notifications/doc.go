// Package notifications pushes operator alerts for trust violations.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when no topic is set. Only HIGH and
// CRITICAL escalations and halted workflows are pushed; routine blocking
// reasons stay in the logs.
package notifications
