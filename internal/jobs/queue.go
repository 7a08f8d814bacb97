package jobs

// queue is a FIFO ring buffer of pending jobs. When full it doubles its
// capacity and relinearizes so that the oldest job sits at index 0.
type queue struct {
	buf   []*job
	head  int
	count int
}

func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &queue{buf: make([]*job, capacity)}
}

func (q *queue) size() int { return q.count }

func (q *queue) capacity() int { return len(q.buf) }

func (q *queue) push(j *job) {
	if q.count == len(q.buf) {
		q.grow()
	}
	q.buf[(q.head+q.count)%len(q.buf)] = j
	q.count++
}

func (q *queue) pop() (*job, bool) {
	if q.count == 0 {
		return nil, false
	}
	j := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	return j, true
}

func (q *queue) grow() {
	next := make([]*job, len(q.buf)*2)
	for i := 0; i < q.count; i++ {
		next[i] = q.buf[(q.head+i)%len(q.buf)]
	}
	q.buf = next
	q.head = 0
}

// reset discards every pending job.
func (q *queue) reset() int {
	n := q.count
	clear(q.buf)
	q.head, q.count = 0, 0
	return n
}
