// Package atomicx provides the two lock-free building blocks the ripple
// propagation engine is composed from: a versioned atomic cell and a
// copy-on-write registry.
//
// Every CAS retry loop in the repository lives in this package. The rest of
// the engine composes Cell and Registry; no node ever takes a lock.
package atomicx
