// Package plan arranges discovered migration units into an execution order.
//
// Two orderings are supported. BuildExecutionPlan applies a hand-maintained
// priority list followed by the remaining units in lexicographic order.
// BuildDependencyPlan orders units from declared prerequisites, breaking ties
// lexicographically, so schema-creating units run before the units that alter
// them. Declarations can be loaded from YAML, TOML, or JSON manifests.
package plan
