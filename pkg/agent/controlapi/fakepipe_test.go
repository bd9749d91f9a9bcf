package controlapi

import "io"

// fakePipePair stands in for a pair of opened named pipes on platforms
// without syscall.Mkfifo (or simply to avoid touching the filesystem in
// tests), mirroring the build-tag split elsewhere in this package between a real
// platform-backed implementation and an in-memory test double.
type fakePipePair struct {
	workloadToAgent *io.PipeReader
	workloadWriter  *io.PipeWriter

	agentToWorkload *io.PipeReader
	agentWriter     *io.PipeWriter
}

func newFakePipePair() *fakePipePair {
	wr, ww := io.Pipe()
	ar, aw := io.Pipe()
	return &fakePipePair{
		workloadToAgent: wr,
		workloadWriter:  ww,
		agentToWorkload: ar,
		agentWriter:     aw,
	}
}

// agentSide returns the endpoints a Session would be given: reads what the
// workload writes, writes what the workload reads.
func (p *fakePipePair) agentSide() (io.ReadCloser, io.WriteCloser) {
	return p.workloadToAgent, p.agentWriter
}

// workloadSide returns the endpoints a test acting as the workload uses.
func (p *fakePipePair) workloadSide() (io.ReadCloser, io.WriteCloser) {
	return p.agentToWorkload, p.workloadWriter
}
