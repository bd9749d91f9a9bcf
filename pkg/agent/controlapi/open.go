package controlapi

import (
	"fmt"
	"os"
)

// openResult carries the outcome of one blocking pipe open.
type openResult struct {
	f   *os.File
	err error
}

// OpenPipes opens both ends of a PipeDir's named pipes. Opening a FIFO for
// read blocks until a writer opens its other end and vice versa, so both
// opens run concurrently rather than in sequence to avoid deadlocking
// against the workload process doing the same on its side.
func OpenPipes(pd *PipeDir) (*os.File, *os.File, error) {
	inCh := make(chan openResult, 1)
	outCh := make(chan openResult, 1)

	go func() {
		f, err := os.OpenFile(pd.Inbound, os.O_RDONLY, 0)
		inCh <- openResult{f, err}
	}()
	go func() {
		f, err := os.OpenFile(pd.Outbound, os.O_WRONLY, 0)
		outCh <- openResult{f, err}
	}()

	in := <-inCh
	out := <-outCh

	if in.err != nil || out.err != nil {
		if in.f != nil {
			in.f.Close()
		}
		if out.f != nil {
			out.f.Close()
		}
		return nil, nil, fmt.Errorf("open control interface pipes: in=%v out=%v", in.err, out.err)
	}

	return in.f, out.f, nil
}
