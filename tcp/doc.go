// Package tcp provides TCP listeners and connections on top of the
// wasi:sockets host.
//
// Every blocking step (bind, listen, accept, connect, read, write) waits on
// a pollable through the executor, so calls must run inside an executor task
// or a BlockOn frame:
//
//	stack := tcp.NewStack(h)
//	l, err := stack.Bind(ctx, netip.MustParseAddrPort("127.0.0.1:8080"))
//	if err != nil {
//		return err
//	}
//	defer l.Close()
//	for {
//		conn, _, err := l.Accept(ctx)
//		if err != nil {
//			return err
//		}
//		executor.Spawn(ctx, "conn", func(ctx context.Context) error {
//			defer conn.Close()
//			_, err := stream.Copy(ctx, conn, conn)
//			return err
//		})
//	}
package tcp
