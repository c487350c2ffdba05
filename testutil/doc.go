// Package testutil provides shared fixtures for package tests: a definition
// registry built from the default catalog, small catalogs for edge cases, and
// serialized flows in every supported shape.
package testutil
