// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration loading and runtime metrics for the server binary and the
// reactor. LVREACTOR_* environment variables override the YAML file, which
// overrides defaults. Metrics are optional: without a registry the reactor
// records into a no-op sink.
package control
