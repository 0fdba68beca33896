// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package progress provides in-process pub/sub for job progress events.
//
// Jobs publish status, result, and error events keyed by task id; clients
// subscribe per task and receive events on a buffered channel. Publishing
// never blocks a job: if a subscriber's buffer is full the event is dropped
// for that subscriber and a warning is logged.
package progress

import (
	"log/slog"
	"sync"

	"github.com/poiesic/docbrief/core"
)

// subscriberBufferSize bounds the per-subscriber channel. Jobs emit a
// handful of events per task, so overflow indicates a stalled consumer.
const subscriberBufferSize = 128

// Broker routes progress events from publishers to per-task subscribers.
// Safe for concurrent use.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string][]*subscriber
	closed bool
	logger *slog.Logger
}

type subscriber struct {
	taskID string
	ch     chan core.ProgressEvent
	once   sync.Once
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[string][]*subscriber),
		logger: slog.Default().With("component", "progress-broker"),
	}
}

// Publish delivers an event to every subscriber of the event's task.
// Events with no subscribers are discarded. Never blocks.
func (b *Broker) Publish(event core.ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs[event.TaskId] {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("dropping progress event, subscriber buffer full",
				"task_id", event.TaskId, "stage", event.Stage, "kind", event.Kind)
		}
	}
}

// Subscribe registers interest in a task's events. The returned cancel
// function removes the subscription and closes the channel; it is safe to
// call more than once. Events published before Subscribe are not replayed.
func (b *Broker) Subscribe(taskID string) (<-chan core.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{
		taskID: taskID,
		ch:     make(chan core.ProgressEvent, subscriberBufferSize),
	}
	if b.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub.ch, func() {}
	}
	b.subs[taskID] = append(b.subs[taskID], sub)

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.remove(sub)
	}
	return sub.ch, cancel
}

// remove unregisters a subscriber and closes its channel. Caller holds b.mu.
func (b *Broker) remove(sub *subscriber) {
	subs := b.subs[sub.taskID]
	for i, s := range subs {
		if s == sub {
			b.subs[sub.taskID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.taskID]) == 0 {
		delete(b.subs, sub.taskID)
	}
	sub.once.Do(func() { close(sub.ch) })
}

// Close shuts the broker down, closing every subscriber channel.
// Publish and Subscribe become no-ops afterwards.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	b.subs = make(map[string][]*subscriber)
}
