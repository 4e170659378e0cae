package tick

// delayQueue is a min-heap of delays ordered by fire time, then by the order
// they were scheduled in.
type delayQueue []*Delay

func (q delayQueue) Len() int { return len(q) }

func (q delayQueue) Less(i, j int) bool {
	if q[i].execAt == q[j].execAt {
		return q[i].id < q[j].id
	}
	return q[i].execAt < q[j].execAt
}

func (q delayQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *delayQueue) Push(x interface{}) {
	*q = append(*q, x.(*Delay))
}

func (q *delayQueue) Pop() interface{} {
	old := *q
	n := len(old)
	d := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return d
}

func (q delayQueue) peek() *Delay {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}
