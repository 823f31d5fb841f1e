// Package tables registers the publ CSV sources with the core registry.
// Import this package to ensure all sources are registered.
package tables

// This file exists to provide a single import point.
// Each source file uses init() to register its definition.
