package frb

// Frame is the set of detections belonging to one FPGA chunk together with
// the expected beams that did not report. It is produced once by the frame
// assembler and consumed once by the event grouper.
type Frame struct {
	Cutoff       uint64          // every detection has FPGATime < Cutoff
	MissingBeams []int           // ascending
	Detections   []BeamDetection // ownership moves with the frame
	Forced       bool            // dumped because a beam was declared lost
}

// Len returns the number of detections in the frame.
func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Detections)
}
