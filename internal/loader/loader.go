// Package loader defines the configuration-source contract (spec §4.2,
// grounded on original_source's loader::ConfLoader trait): something that
// can hand the registry plans, connections, app settings and script
// source text, independent of where that data actually lives.
package loader

import "github.com/ErlanBelekov/dist-job-scheduler/internal/plan"

// Loader abstracts where plan/connection/app/script definitions come from.
// internal/registry depends only on this interface so a future source
// (a database catalog, a remote config service) can stand in for
// tomlloader without registry changes.
type Loader interface {
	LoadAppConfig() ([]byte, error)
	LoadConnections() (map[string]plan.ConnectionInfo, error)
	LoadPlans() (map[string]plan.Plan, error)
	LoadScriptSource(file string) (string, error)
}
