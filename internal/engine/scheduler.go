package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"factoryline/internal/domain"
)

// Scheduler proposes a task plan for a confirmed production order. The
// engine calls it outside any database transaction; implementations may
// block until ctx is done.
type Scheduler interface {
	Propose(ctx context.Context, order domain.Order) (domain.Schedule, error)
}

// SequentialScheduler is the in-process default. It lays the order's
// module lines out back to back on their manufacturing workstations, in
// item order, one slot per line.
type SequentialScheduler struct {
	// Now is overridable in tests. Defaults to time.Now.
	Now func() time.Time
	// SlotDuration is the planned length of one task. Defaults to an hour.
	SlotDuration time.Duration
}

func (s *SequentialScheduler) Propose(ctx context.Context, order domain.Order) (domain.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return domain.Schedule{}, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	slot := s.SlotDuration
	if slot <= 0 {
		slot = time.Hour
	}

	lines := make([]domain.OrderLine, len(order.Lines))
	copy(lines, order.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ItemID < lines[j].ItemID })

	start := now().UTC()
	sched := domain.Schedule{OrderID: order.ID, ProposedAt: start.Format(time.RFC3339)}
	for _, l := range lines {
		if l.ItemType != domain.ItemModule {
			return domain.Schedule{}, fmt.Errorf("scheduler: unexpected %s line on production order %s", l.ItemType, order.ID)
		}
		end := start.Add(slot)
		sched.Tasks = append(sched.Tasks, domain.ScheduleTask{
			WorkstationID: partsWorkstationFor(l.ItemID),
			ItemType:      l.ItemType,
			ItemID:        l.ItemID,
			Quantity:      l.RequestedQty,
			Start:         start.Format(time.RFC3339),
			End:           end.Format(time.RFC3339),
		})
		start = end
	}
	return sched, nil
}
