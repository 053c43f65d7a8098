package ioutil

// Pump is an unbounded single-producer, single-consumer queue. Values sent on In
// come out of Out in the same order. The sender only ever waits for the pump
// goroutine to take the value, never for the receiver.
type Pump[T any] struct {
	in  chan T
	out chan T
}

func NewPump[T any]() *Pump[T] {
	pump := &Pump[T]{
		in:  make(chan T),
		out: make(chan T),
	}
	go pump.run()
	return pump
}

func (pump *Pump[T]) In() chan<- T {
	return pump.in
}

// Out is closed once In is closed and everything queued has been received.
func (pump *Pump[T]) Out() <-chan T {
	return pump.out
}

func (pump *Pump[T]) run() {
	defer close(pump.out)

	var queue []T
	in := pump.in

	for in != nil || len(queue) > 0 {
		var out chan T
		var next T
		if len(queue) > 0 {
			out = pump.out
			next = queue[0]
		}

		select {
		case v, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, v)
		case out <- next:
			var zero T
			queue[0] = zero
			queue = queue[1:]
		}
	}
}
