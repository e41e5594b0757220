// Package project builds the ignore-aware view of a project directory.
//
// A scan pass discovers every file under the root, filters it through the
// project's nested ignore files, and builds a sorted tree from what survives:
//
//	fsys, err := project.OpenFS("/path/to/project")
//	if err != nil {
//	    return err
//	}
//	snap, err := project.Scan(ctx, fsys, project.ScanOptions{})
//	manifest := tree.Flatten(snap.Tree)
//
// A Monitor keeps a view current. It runs one pass at start, then watches
// the root and reruns the pass when the filesystem changes:
//
//	m, err := project.NewMonitor(root, project.MonitorOptions{})
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//	m.Subscribe(func(s project.Snapshot) { render(s.Tree) })
//	if err := m.Start(ctx); err != nil {
//	    return err
//	}
//
// # Refresh scheduling
//
// The monitor runs at most one pass at a time. Triggers that arrive while a
// pass is running collapse into a single pending pass. When a pass finishes
// with a newer trigger already pending, its result is stale and is dropped
// in favour of the pending pass, so a burst of changes yields one delivery
// that reflects the latest state.
//
// # Failure policy
//
// Unreadable entries and ignore files are skipped and reported in
// Snapshot.Errors. A root that cannot be listed yields an empty tree with
// Snapshot.Err set. A failed pass never stops the monitor.
//
// # Thread Safety
//
// Scan has no shared state. Monitor methods are safe for concurrent use.
// Subscribers are called from a single goroutine, one at a time, and each
// receives its own copy of the tree.
package project
