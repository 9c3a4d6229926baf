package store

import (
	"context"

	"github.com/verte-zerg/tuisplit/internal/model"
)

// BestSegmentsUpdate is one emission of a best-segment stream.
type BestSegmentsUpdate struct {
	GroupID  int64
	Segments []model.BestSegment
	Err      error
}

// WatchBestSegments streams the best-segment aggregate of a group. The current value is sent
// immediately and again after every write that touches the group. The channel is closed once
// ctx is done.
func (s *Store) WatchBestSegments(ctx context.Context, groupID int64) <-chan BestSegmentsUpdate {
	out := make(chan BestSegmentsUpdate, 1)
	signal := s.subscribe(groupID)

	go func() {
		defer close(out)
		defer s.unsubscribe(groupID, signal)
		for {
			segments, err := s.GetBestSegments(ctx, groupID)
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- BestSegmentsUpdate{GroupID: groupID, Segments: segments, Err: err}:
			case <-ctx.Done():
				return
			}
			select {
			case <-signal:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (s *Store) subscribe(groupID int64) chan struct{} {
	signal := make(chan struct{}, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.watchers[groupID]
	if !ok {
		set = map[chan struct{}]struct{}{}
		s.watchers[groupID] = set
	}
	set[signal] = struct{}{}
	return signal
}

func (s *Store) unsubscribe(groupID int64, signal chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.watchers[groupID]
	delete(set, signal)
	if len(set) == 0 {
		delete(s.watchers, groupID)
	}
}

func (s *Store) notify(groupID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for signal := range s.watchers[groupID] {
		select {
		case signal <- struct{}{}:
		default:
			// A refresh is already pending for this watcher.
		}
	}
}

func (s *Store) notifyAll() {
	s.mu.Lock()
	groups := make([]int64, 0, len(s.watchers))
	for id := range s.watchers {
		groups = append(groups, id)
	}
	s.mu.Unlock()
	for _, id := range groups {
		s.notify(id)
	}
}
