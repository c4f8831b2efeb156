package redis

import (
	"context"
	"fmt"
)

// ActiveWindows counts identifiers that currently hold a window
// Keys expire with their window, so a SCAN over the prefix is enough
func (s *Store) ActiveWindows(ctx context.Context) (int64, error) {
	pattern := s.prefix + ":*"

	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return 0, fmt.Errorf("scanning window keys: %w", err)
		}
		total += int64(len(keys))

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return total, nil
}

// Markers returns how many requests identifier has inside its window
func (s *Store) Markers(ctx context.Context, identifier string) (int64, error) {
	n, err := s.client.ZCard(ctx, s.key(identifier)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting markers: %w", err)
	}
	return n, nil
}
