package seq

import "fmt"

// Queue is a handle on a subsystem tick queue. Queues are shared: any client
// may schedule on, start or stop a queue, only the allocating client may
// free it. State may change between calls through other clients.
type Queue struct {
	c     *Client
	id    int
	owner bool
}

func (q *Queue) ID() int { return q.id }

// SetTempo sets resolution and tempo (microseconds per quarter) together,
// immediately.
func (q *Queue) SetTempo(ppq, tempo int) error {
	if ppq <= 0 || tempo <= 0 {
		return fmt.Errorf("queue %d ppq=%d tempo=%d: %w", q.id, ppq, tempo, ErrInvalidParameter)
	}
	if err := q.c.usable(); err != nil {
		return err
	}
	return q.c.t.QueueSetTempo(q.c.handle, q.id, ppq, tempo)
}

// SetPPQ changes the resolution and keeps the current tempo.
func (q *Queue) SetPPQ(ppq int) error {
	if ppq <= 0 {
		return fmt.Errorf("queue %d ppq=%d: %w", q.id, ppq, ErrInvalidParameter)
	}
	st, err := q.Status()
	if err != nil {
		return err
	}
	return q.SetTempo(ppq, st.Tempo)
}

// ChangeTempo sets the tempo. With a trigger the change happens when the
// trigger is released by its queue; the trigger's content is replaced, its
// schedule kept, and it is buffered (call Client.DrainOutput).
func (q *Queue) ChangeTempo(tempo int, trigger *Event) error {
	if tempo <= 0 {
		return fmt.Errorf("queue %d tempo=%d: %w", q.id, tempo, ErrInvalidParameter)
	}
	return q.control(EventTempo, int32(tempo), trigger)
}

// Start resets the queue to tick 0 and runs it.
func (q *Queue) Start(trigger *Event) error {
	return q.control(EventStart, 0, trigger)
}

// Stop freezes the queue at its current tick.
func (q *Queue) Stop(trigger *Event) error {
	return q.control(EventStop, 0, trigger)
}

// Continue runs the queue from the tick it was stopped at.
func (q *Queue) Continue(trigger *Event) error {
	return q.control(EventContinue, 0, trigger)
}

// SetPositionTick moves the queue to tick without changing its running state.
func (q *Queue) SetPositionTick(tick Tick, trigger *Event) error {
	return q.control(EventSetPosTick, int32(tick), trigger)
}

func (q *Queue) control(typ EventType, value int32, trigger *Event) error {
	if trigger == nil {
		ev := NewEvent()
		ev.SetQueueControl(typ, q, value)
		ev.SetDirect()
		_, err := q.c.Send(ev, true)
		return err
	}
	trigger.SetQueueControl(typ, q, value)
	_, err := q.c.Send(trigger, false)
	return err
}

// TickTime returns the current tick.
func (q *Queue) TickTime() (Tick, error) {
	st, err := q.Status()
	if err != nil {
		return 0, err
	}
	return st.Tick, nil
}

// Status snapshots the queue's clock.
func (q *Queue) Status() (QueueStatus, error) {
	if err := q.c.usable(); err != nil {
		return QueueStatus{}, err
	}
	return q.c.t.QueueStatus(q.c.handle, q.id)
}

// Free releases the queue. Events still waiting in it are dropped.
func (q *Queue) Free() error {
	if err := q.c.usable(); err != nil {
		return err
	}
	if err := q.c.t.QueueFree(q.c.handle, q.id); err != nil {
		return err
	}
	q.c.logf("queue %d freed", q.id)
	return nil
}

func (q *Queue) String() string {
	if q.owner {
		return fmt.Sprintf("queue %d (owned)", q.id)
	}
	return fmt.Sprintf("queue %d", q.id)
}
