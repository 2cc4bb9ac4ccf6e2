// Package profile provides optional runtime profiling for tmplfrag.
//
// Profiling uses [github.com/pkg/profile] and is compiled in only with the
// pprof build tag:
//
//	go build -tags pprof .
//
// Without the tag, [Profiler.Start] returns a no-op and [Modes] is empty.
//
//	p := profile.Profiler{Mode: "cpu", Path: "/tmp/profiles", Quiet: true}
//	defer p.Start().Stop()
//
// The modes are allocs, block, clock, cpu, goroutine, heap, mem, mutex,
// thread and trace. Profiles are written to Path (or a temporary directory
// when empty) when Stop is called.
package profile
