// Package domain contains the core model types and the interfaces the
// application layer depends on. It has no dependencies on adapters;
// adapters depend on it.
package domain
