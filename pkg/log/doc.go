/*
Package log provides structured logging for the orchestration core using
zerolog.

The global Logger is configured once at process startup by Init, which
chooses between a JSON writer (for production, machine-parsed logs) and a
zerolog.ConsoleWriter (human-readable output for interactive runs). Component loggers
produced by WithComponent, WithAgentName, WithWorkloadName and WithInstance
attach structured fields without repeating them at every call site, so a
log line from deep inside a control loop still carries enough context to
be grepped back to the workload instance that produced it.
*/
package log
