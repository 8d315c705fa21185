// Package l2frames owns Layer 2 (Frames) of the sifter data model.
//
// Responsibilities: buffering per-beam L1 reports, deciding when a chunk
// is complete or a beam is lost, and recording daily beam exposure.
// Key types: FrameAssembler, AssemblerConfig, Liveness.
//
// Dependency rule: L2 may depend on frb and exposure, but never on L3+.
package l2frames
