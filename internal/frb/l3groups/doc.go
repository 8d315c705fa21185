// Package l3groups owns Layer 3 (Groups) of the sifter data model.
//
// Responsibilities: correcting UTC stamps from the FPGA counter, linking
// the coherent detections of a frame into multi-beam groups, attaching
// incoherent detections, and computing the frame activity statistics
// that travel with every group.
// Key types: EventGrouper, GrouperConfig, TimeCorrector.
//
// Dependency rule: L3 may depend on frb, but never on l2frames.
package l3groups
