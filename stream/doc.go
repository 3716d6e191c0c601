// Package stream provides task-friendly readers and writers over WASI
// input and output streams.
//
// Reads and writes never block the host: an empty read or a zero write
// permit suspends the calling task on the stream's subscription until the
// host reports progress. Every call must run inside an executor task or a
// BlockOn call.
//
//	in := stream.Stdin(h)
//	out := stream.Stdout(h)
//	for line, err := range in.Lines(ctx) {
//		if err != nil {
//			return err
//		}
//		out.WriteString(ctx, line+"\n")
//	}
//	return out.Flush(ctx)
//
// Subscriptions are children of their stream in the host's resource table.
// Close drops the subscription before the stream so the host never sees a
// parent dropped ahead of its child.
package stream
