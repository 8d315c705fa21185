// Package frb holds the shared record types of the FRB sifter: per-beam
// detections (L1), assembled frames (L2) and multi-beam groups (L3).
//
// Responsibilities: detection, frame and group records, beam-grid
// decoding and the sentinel errors shared by the assembler and grouper.
//
// Dependency rule: frb may not import any of its layer subpackages.
package frb
