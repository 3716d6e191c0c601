// Package host bundles the preview2 host interfaces over one resource table
// and keeps a registry of their functions by WIT namespace and name.
//
//	w := wasi.New().WithInheritedStdio()
//	h := host.New(w)
//	defer h.Close()
//
//	reg := host.NewRegistry()
//	if err := h.Register(reg); err != nil {
//		return err
//	}
//	fn, _ := reg.Lookup("wasi:io/poll@0.2.0", "poll")
//
// WASIHost also satisfies the executor's Poller, so async code can suspend
// on any pollable handle the hosts return.
package host
