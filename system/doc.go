/*
Package system manages the startup, running, metrics and shutdown of the collector service.

Services are run in parallel alongside a termination handler and an optional metrics loop.
The first of them to return an error ends the run, and every registered cleanup is then
called by Cleanup.
*/
package system
