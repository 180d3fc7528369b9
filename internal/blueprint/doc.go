// Package blueprint parses declarative topology files and assembles them
// into a running pipeline.
//
// A topology names the buffers, the processors that connect them, and
// optional synthetic sources. Files may be JSON, YAML, or TOML; the format
// is chosen by extension. Transforms are looked up in a built-in registry
// so topologies stay purely declarative.
package blueprint
