// Package resource provides handle tables with ownership-aware lifecycle management.
//
// Resources are opaque handles representing host-side values: streams,
// pollables, descriptors, sockets. A guest only ever sees the integer handle.
//
// # Ownership
//
// A resource may be created as the child of another resource. A pollable
// obtained by subscribing to a stream is the stream's child; an input stream
// obtained from a socket is the socket's child. A parent can never be dropped
// while it still has live children:
//
//	table := resource.NewTable()
//
//	stream := table.Insert(StreamTypeID, s)
//	sub, _ := table.InsertChild(stream, PollableTypeID, p)
//
//	_, err := table.Remove(stream) // ErrHasChildren
//	table.Remove(sub)
//	table.Remove(stream)           // ok
//
// RemoveTree drops a whole subtree, deepest resources first. Clear and Close
// use the same ordering for the entire table.
//
// # Borrows
//
// Borrow pins a handle for the duration of an operation. A borrowed handle
// cannot be dropped until every borrow is returned:
//
//	if table.Borrow(h) {
//	    defer table.ReturnBorrow(h)
//	    // use the resource
//	}
//
// # Observers
//
// Register observers to track resource lifecycle events:
//
//	table.Subscribe(observer)
//
// Dropped events carry the parent handle, so an observer can verify that
// children are always released before their owners.
//
// # Memory Management
//
// Resources are not garbage collected. The owner must call Remove when a
// handle is dropped, and Close when the table is retired.
package resource
