// Package ring implements the snapshot ring rotation algorithm (§4.4):
// it ages numbered slots base.0 .. base.{max-1} within a single tier.
package ring

import (
	"context"
	"fmt"
)

// FileSystem is the narrow slice of FileSystemPort the rotator needs.
type FileSystem interface {
	IsDir(ctx context.Context, path string) (isDir bool, exists bool, err error)
	RemoveAll(ctx context.Context, path string) error
	Rename(ctx context.Context, oldpath, newpath string) error
	Join(elem ...string) string
}

// Rotate ages the slots under basePath: base.0 .. base.{max-1}.
//
// If max == 1 and rotateAll is false, Rotate is a no-op — there is
// nothing to age when the tier has a single slot and the caller is
// preserving slot 0.
//
// Otherwise:
//  1. If base.{max-1} exists, it is removed.
//  2. For i from max-2 down to smallest (0 if rotateAll, else 1), if
//     base.i exists it is renamed to base.{i+1}.
//
// Hourly rotation (rotateAll=false) preserves slot 0 in place so it
// can later be cloned to slot 1 and overwritten by the sync. Daily /
// weekly / monthly rotation (rotateAll=true) also ages slot 0, making
// room for a fresh promotion clone.
func Rotate(ctx context.Context, fs FileSystem, basePath string, max int, rotateAll bool) error {
	if max <= 0 {
		return fmt.Errorf("ring: max must be positive, got %d", max)
	}
	if max == 1 && !rotateAll {
		return nil
	}

	oldest := fs.Join(fmt.Sprintf("%s.%d", basePath, max-1))
	if _, exists, err := fs.IsDir(ctx, oldest); err != nil {
		return fmt.Errorf("stat %s: %w", oldest, err)
	} else if exists {
		if err := fs.RemoveAll(ctx, oldest); err != nil {
			return fmt.Errorf("remove %s: %w", oldest, err)
		}
	}

	smallest := 1
	if rotateAll {
		smallest = 0
	}

	for i := max - 2; i >= smallest; i-- {
		from := fmt.Sprintf("%s.%d", basePath, i)
		to := fmt.Sprintf("%s.%d", basePath, i+1)
		if _, exists, err := fs.IsDir(ctx, from); err != nil {
			return fmt.Errorf("stat %s: %w", from, err)
		} else if !exists {
			continue
		}
		if err := fs.Rename(ctx, from, to); err != nil {
			return fmt.Errorf("rename %s -> %s: %w", from, to, err)
		}
	}
	return nil
}

// SlotPath returns the path of slot n under basePath ("base.N").
func SlotPath(basePath string, n int) string {
	return fmt.Sprintf("%s.%d", basePath, n)
}
