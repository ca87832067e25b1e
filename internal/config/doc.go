// Package config provides configuration loading for skillgate.
//
// Configuration is sourced from a YAML file with environment variable
// overrides (koanf). The promotion policy portion has weaker failure
// semantics than the rest of the tree: LoadPolicy never returns an
// error, because a corrupt policy source must not block promotion
// decisions. It degrades to built-in defaults instead.
//
// PolicyWatcher hot-reloads the policy when the config file changes,
// publishing new snapshots through an atomic pointer so concurrent
// evaluations never observe a half-written policy.
package config
