package trigger

import "container/heap"

type TaskID uint64

// TaskFunc runs when a scheduled task comes due.
type TaskFunc func(ctx *Context) error

type task struct {
	id    TaskID
	due   uint64
	seq   uint64
	fn    TaskFunc
	index int
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Scheduler orders tasks by due tick, then by insertion.
type Scheduler struct {
	h      taskHeap
	byID   map[TaskID]*task
	nextID TaskID
	seq    uint64
}

func NewScheduler() *Scheduler {
	return &Scheduler{byID: map[TaskID]*task{}}
}

func (s *Scheduler) Add(due uint64, fn TaskFunc) TaskID {
	s.nextID++
	s.seq++
	t := &task{id: s.nextID, due: due, seq: s.seq, fn: fn}
	heap.Push(&s.h, t)
	s.byID[t.id] = t
	return t.id
}

// Cancel removes a pending task. Unknown or already fired ids return false.
func (s *Scheduler) Cancel(id TaskID) bool {
	t, ok := s.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&s.h, t.index)
	delete(s.byID, id)
	return true
}

// PopDue removes and returns the next task due at or before now.
func (s *Scheduler) PopDue(now uint64) (TaskID, TaskFunc, bool) {
	if len(s.h) == 0 || s.h[0].due > now {
		return 0, nil, false
	}
	t := heap.Pop(&s.h).(*task)
	delete(s.byID, t.id)
	return t.id, t.fn, true
}

func (s *Scheduler) Len() int { return len(s.h) }

type PendingTask struct {
	ID  TaskID `json:"id"`
	Due uint64 `json:"due"`
}

// Pending lists tasks in firing order.
func (s *Scheduler) Pending() []PendingTask {
	tmp := append(taskHeap(nil), s.h...)
	out := make([]PendingTask, 0, len(tmp))
	for len(tmp) > 0 {
		best := 0
		for i := range tmp {
			if tmp.Less(i, best) {
				best = i
			}
		}
		out = append(out, PendingTask{ID: tmp[best].id, Due: tmp[best].due})
		tmp = append(tmp[:best], tmp[best+1:]...)
	}
	return out
}
