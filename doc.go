// Package pak mounts Quake II PAK archives into one merged filesystem and
// indexes the assets inside them.
//
// This package provides the high-level API through [Explorer]. The building
// blocks live in subpackages: [core] parses archives, dispatch parses them
// on a background worker, mount and vfs merge them by priority, and xref
// and entity scan the merged files.
//
// # Quick Start
//
// Load archives and read a file:
//
//	e, err := pak.New(pak.WithCacheDir("/var/cache/pak"))
//	if err != nil {
//	    return err
//	}
//	defer e.Close()
//
//	if _, err := e.LoadFile(ctx, "baseq2/pak0.pak"); err != nil {
//	    return err
//	}
//	if _, err := e.LoadFile(ctx, "mymod/pak0.pak", pak.LoadWithPriority(100)); err != nil {
//	    return err
//	}
//	data, err := e.ReadFile("pics/colormap.pcx")
//
// # Overrides
//
// Every path resolves to exactly one archive: the one with the highest
// priority, and among equal priorities the one loaded (or reordered) last.
// [Explorer.IsOverridden] reports whether an archive's copy of a path is
// shadowed by an archive with strictly higher priority.
//
// # Scans
//
// Find the assets that use a texture:
//
//	usages, err := e.CrossRefs().FindTextureUsage(ctx, "textures/e1u1/floor1_3.wal")
//
// Collect the entities of every map:
//
//	records, err := e.Entities().ScanAllMaps(ctx, nil)
//
// Scans read one filesystem snapshot; archives mounted while a scan runs do
// not affect it.
package pak
