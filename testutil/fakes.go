package testutil

import (
	"errors"
	"sync"
	"time"

	"github.com/anthropics/purple-iqrf/pkg/channel"
)

// FakeChannel implements a mock IQRF channel for testing. Responses can be
// scripted per sent frame or injected at any time from the test goroutine.
type FakeChannel struct {
	mu         sync.Mutex
	receiver   channel.ReceiveFunc
	sent       [][]byte
	replies    []scriptedReply
	state      channel.State
	failOnSend bool
	sendBlock  chan struct{}
}

type scriptedReply struct {
	data  []byte
	delay time.Duration
}

// NewFakeChannel creates a fake channel in the ready-comm state.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{state: channel.StateReadyComm}
}

// Send records the frame and plays back any scripted replies.
func (c *FakeChannel) Send(data []byte) error {
	c.mu.Lock()
	if c.sendBlock != nil {
		block := c.sendBlock
		c.mu.Unlock()
		<-block
		c.mu.Lock()
	}

	if c.failOnSend {
		c.mu.Unlock()
		return errors.New("fake send error")
	}

	frame := make([]byte, len(data))
	copy(frame, data)
	c.sent = append(c.sent, frame)

	var reply *scriptedReply
	if len(c.replies) > 0 {
		r := c.replies[0]
		c.replies = c.replies[1:]
		reply = &r
	}
	receiver := c.receiver
	c.mu.Unlock()

	if reply != nil {
		go func(r scriptedReply) {
			if r.delay > 0 {
				time.Sleep(r.delay)
			}
			if receiver != nil {
				receiver(r.data)
			}
		}(*reply)
	}
	return nil
}

// RegisterReceiver installs the receive handler.
func (c *FakeChannel) RegisterReceiver(fn channel.ReceiveFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiver = fn
}

// State returns the configured channel state.
func (c *FakeChannel) State() channel.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState changes the reported channel state.
func (c *FakeChannel) SetState(s channel.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// ScriptReply queues a frame to be delivered after a Send, delayed by d.
// Each Send consumes one scripted reply, in order.
func (c *FakeChannel) ScriptReply(data []byte, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, scriptedReply{data: data, delay: d})
}

// Inject delivers a frame to the registered receiver immediately, as if it
// arrived unsolicited from the mesh.
func (c *FakeChannel) Inject(data []byte) {
	c.mu.Lock()
	receiver := c.receiver
	c.mu.Unlock()
	if receiver != nil {
		receiver(data)
	}
}

// SentFrames returns a copy of every frame handed to Send.
func (c *FakeChannel) SentFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := make([][]byte, len(c.sent))
	copy(frames, c.sent)
	return frames
}

// SetFailOnSend makes Send fail.
func (c *FakeChannel) SetFailOnSend(fail bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failOnSend = fail
}

// BlockSends makes Send block until UnblockSends is called. Used to pile up
// submissions behind a busy worker.
func (c *FakeChannel) BlockSends() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendBlock = make(chan struct{})
}

// UnblockSends releases a previous BlockSends.
func (c *FakeChannel) UnblockSends() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendBlock != nil {
		close(c.sendBlock)
		c.sendBlock = nil
	}
}
