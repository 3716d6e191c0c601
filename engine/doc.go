// Package engine runs core WebAssembly modules that target WASI preview1.
//
// The guest's stdio is bridged onto the host's stdio streams and its
// preopens are mounted from the same WASI configuration the async facades
// use, so a guest and native tasks share one view of the world:
//
//	eng, err := engine.New(ctx, nil)
//	if err != nil {
//		return err
//	}
//	defer eng.Close(ctx)
//
//	mod, err := eng.Load(ctx, wasmBytes)
//	if err != nil {
//		return err
//	}
//	code, err := mod.Run(ctx, h)
//
// Guest stdio calls block the calling goroutine. Each read or write runs
// inside executor.BlockOn, so Run may be called from an executor task
// without other tasks' pollables being touched.
package engine
