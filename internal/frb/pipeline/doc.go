// Package pipeline runs the sifter: one worker owns the frame assembler,
// a second owns the event grouper, and a bounded queue carries frames
// between them. Finished groups go to GroupSinks.
//
// The pipeline does not own domain logic; it delegates to l2frames and
// l3groups and keeps counters for the debug pages.
package pipeline
