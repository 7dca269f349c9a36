package host

import (
	"context"

	"golang.org/x/sync/errgroup"

	"cpudevice/kernel"
	"cpudevice/ndrange"
)

// Submission is one independent kernel launch to fan out via RunAll.
type Submission struct {
	Kernel    Kernel
	NDRange   ndrange.NDRange
	Registers *kernel.RegisterFrame
}

// RunAll submits every entry in subs to d concurrently and waits for all
// of them to finish, stopping at the first error. A host program commonly
// has several independent kernels ready to go at once; Device.Run itself
// serializes submissions against the device, so this only parallelizes
// the host side's waiting on them.
func RunAll(ctx context.Context, d *Device, subs []Submission) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range subs {
		s := s
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return d.Run(s.Kernel, s.NDRange, s.Registers)
		})
	}
	return g.Wait()
}
