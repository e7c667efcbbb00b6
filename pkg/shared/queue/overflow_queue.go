/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package queue

import "sync"

// OverflowQueue is a thread safe queue with a max size, the oldest elements automatically overflow.
type OverflowQueue[T any] struct {
	elements []T
	// start is the position of the oldest element in the ring
	start   int
	length  int
	dropped uint64
	lock    *sync.RWMutex
}

// New returns a queue holding at most size elements.
func New[T any](size int) *OverflowQueue[T] {
	if size < 1 {
		size = 1
	}
	return &OverflowQueue[T]{
		elements: make([]T, size),
		lock:     new(sync.RWMutex),
	}
}

// Append adds an element to the queue. It returns true if the oldest element was dropped to make room.
func (q *OverflowQueue[T]) Append(value T) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	size := len(q.elements)
	if q.length == size {
		q.elements[q.start] = value
		q.start = (q.start + 1) % size
		q.dropped++
		return true
	}
	q.elements[(q.start+q.length)%size] = value
	q.length++
	return false
}

// Items returns a copy of the elements in the queue, oldest first
func (q *OverflowQueue[T]) Items() []T {
	q.lock.RLock()
	defer q.lock.RUnlock()
	return q.latest(q.length)
}

// Latest returns a copy of the n most recent elements, oldest first
func (q *OverflowQueue[T]) Latest(n int) []T {
	q.lock.RLock()
	defer q.lock.RUnlock()
	return q.latest(min(max(n, 0), q.length))
}

func (q *OverflowQueue[T]) latest(n int) []T {
	r := make([]T, n)
	size := len(q.elements)
	first := q.start + q.length - n
	for i := 0; i < n; i++ {
		r[i] = q.elements[(first+i)%size]
	}
	return r
}

// Length returns the current length of the queue
func (q *OverflowQueue[T]) Length() int {
	q.lock.RLock()
	defer q.lock.RUnlock()
	return q.length
}

// Dropped returns the number of elements that overflowed
func (q *OverflowQueue[T]) Dropped() uint64 {
	q.lock.RLock()
	defer q.lock.RUnlock()
	return q.dropped
}

// Reset empties the queue
func (q *OverflowQueue[T]) Reset() {
	q.lock.Lock()
	defer q.lock.Unlock()
	clear(q.elements)
	q.start = 0
	q.length = 0
}
