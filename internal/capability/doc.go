// Package capability implements the registry of loadable command modules and
// the Context object they receive.
//
// A capability is registered by name with a constructor. Loading constructs
// it, measures the free-heap delta across construction, hands it the current
// output stream and calls Setup. Loaded capabilities get Loop on every
// cooperative tick and Execute for each of their verbs. The Registry itself
// is a command.Source, so the dispatcher consults capabilities in
// registration order after the built-in tables.
package capability
