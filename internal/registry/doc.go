// Package registry tracks production skills and their manifests.
//
// A Manifest is the static descriptor the runtime guard consumes:
// retry bounds, ordered fallbacks with argument maps, and visibility
// rules. Manifests load from per-skill TOML files; the Registry itself
// is an in-memory map safe for concurrent use.
package registry
