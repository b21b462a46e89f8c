// Package destination implements the multi-destination LRU selector
// (§4.2): it chooses the target volume for a (host, directory) pair.
package destination

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/snapback/snapback2/internal/usecase"
)

// Stat is the narrow FileSystemPort slice the selector needs.
type Stat interface {
	Stat(ctx context.Context, path string) (modTime time.Time, ok bool, err error)
	Join(elem ...string) string
}

// Select resolves DestinationPolicy into a concrete destination root.
//
// If the policy carries a non-empty candidate list whose first entry
// is not literally "none" (case-insensitive), each candidate's
// slot-0 mtime under host/directory/hourlyDirName.0 is compared; the
// candidate with the smallest mtime wins (missing treated as time
// zero, so an empty/never-used target wins over any used one). Ties
// are broken by the candidate's position in the list.
//
// Otherwise the fixed Destination is returned. An empty result from
// both paths is ErrMissingDestination.
func Select(ctx context.Context, fs Stat, policy usecase.DestinationPolicy, host, directory, hourlyDirName string) (string, error) {
	if policy.Kind == usecase.DestinationLRU && len(policy.Candidates) > 0 &&
		!strings.EqualFold(strings.TrimSpace(policy.Candidates[0]), "none") {
		return selectLRU(ctx, fs, policy.Candidates, host, directory, hourlyDirName)
	}
	if strings.TrimSpace(policy.Fixed) == "" {
		return "", fmt.Errorf("%w", usecase.ErrMissingDestination)
	}
	return policy.Fixed, nil
}

func selectLRU(ctx context.Context, fs Stat, candidates []string, host, directory, hourlyDirName string) (string, error) {
	var best string
	var bestTime time.Time
	haveBest := false

	for _, candidate := range candidates {
		slot0 := fs.Join(candidate, host, directory, hourlyDirName+".0")
		modTime, ok, err := fs.Stat(ctx, slot0)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", slot0, err)
		}
		if !ok {
			modTime = time.Time{}
		}
		if !haveBest || modTime.Before(bestTime) {
			best = candidate
			bestTime = modTime
			haveBest = true
		}
	}
	if !haveBest {
		return "", fmt.Errorf("%w", usecase.ErrMissingDestination)
	}
	return best, nil
}
