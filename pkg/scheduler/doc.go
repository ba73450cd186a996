/*
Package scheduler runs the bounded worker pool that every processing job
passes through between admission and a terminal status.

Submit acquires one of Config.MaxConcurrentJobs slots from a semaphore
channel, or returns a Busy error once AdmissionTimeout elapses — the
admission-control behavior the HTTP layer surfaces as 503. Once admitted,
a job runs in its own goroutine under a context deadline set from
Config.ProcessingTimeout; the deadline wraps the entire Processor call,
including any subprocess it spawns, so a hung soffice or wkhtmltopdf
invocation cannot hold a slot forever.

Unlike a periodic reconciliation loop that repeatedly compares desired
state against actual state, this Scheduler dispatches eagerly: there is
no ticker, and a job runs exactly once from admission to a terminal
status (Completed or Failed), with Cancel available at any point before
that. Stop drains in-flight jobs for up to Config.ShutdownGrace before
force-cancelling stragglers, so a process restart never leaves a job
stuck in Processing.
*/
package scheduler
