// Package cdc implements the IQRF channel over a USB CDC gateway
// (GW-USB-xx). The gateway speaks a line-oriented command protocol: frames
// go out as data-send commands and arrive as asynchronous data-received
// messages, each terminated by CR.
package cdc

import (
	"bytes"
	"sync"
	"time"

	"github.com/google/gousb"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/anthropics/purple-iqrf/pkg/channel"
)

// MICRORISC USB identifiers of the CDC gateways.
const (
	DefaultVendorID  = 0x1DE6
	DefaultProductID = 0x0001
)

// Gateway protocol tokens. Requests start with '>', gateway messages with
// '<'; every message ends with CR.
const (
	cmdDataSend     = ">DS"
	cmdTest         = ">T"
	respOK          = ":OK"
	respErr         = ":ERR"
	asyncDataPrefix = "<DR"
	terminator      = '\r'
)

const responseTimeout = 5 * time.Second

// Channel is a USB CDC transport. It satisfies channel.Channel.
type Channel struct {
	usb    *gousb.Context
	dev    *gousb.Device
	intf   *gousb.Interface
	closer func()
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	log    *logrus.Logger

	mu      sync.Mutex
	state   channel.State
	sendAck chan bool

	// separate lock so inbound dispatch never waits behind a Send
	recvMu   sync.Mutex
	receiver channel.ReceiveFunc

	stop chan struct{}
	wg   sync.WaitGroup
}

// Open claims the first gateway matching the default vendor and product id.
func Open(log *logrus.Logger) (*Channel, error) {
	return OpenVidPid(DefaultVendorID, DefaultProductID, log)
}

// OpenVidPid claims a specific gateway and starts the read loop.
func OpenVidPid(vid, pid uint16, log *logrus.Logger) (*Channel, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	usb := gousb.NewContext()
	dev, err := usb.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		usb.Close()
		return nil, errors.Wrap(err, "opening USB device")
	}
	if dev == nil {
		usb.Close()
		return nil, errors.Errorf("no device %04x:%04x found", vid, pid)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		usb.Close()
		return nil, errors.Wrap(err, "detaching kernel driver")
	}

	intf, closer, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		usb.Close()
		return nil, errors.Wrap(err, "claiming interface")
	}

	var in *gousb.InEndpoint
	var out *gousb.OutEndpoint
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && in == nil {
			in, err = intf.InEndpoint(ep.Number)
		} else if ep.Direction == gousb.EndpointDirectionOut && out == nil {
			out, err = intf.OutEndpoint(ep.Number)
		}
		if err != nil {
			closer()
			dev.Close()
			usb.Close()
			return nil, errors.Wrap(err, "opening endpoint")
		}
	}
	if in == nil || out == nil {
		closer()
		dev.Close()
		usb.Close()
		return nil, errors.New("no bulk endpoints on gateway interface")
	}

	c := &Channel{
		usb:     usb,
		dev:     dev,
		intf:    intf,
		closer:  closer,
		in:      in,
		out:     out,
		log:     log,
		state:   channel.StateReady,
		sendAck: make(chan bool, 1),
		stop:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	if err := c.test(); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "gateway test")
	}
	c.setState(channel.StateReadyComm)

	return c, nil
}

// Close stops the read loop and releases the device.
func (c *Channel) Close() error {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	c.wg.Wait()
	c.closer()
	err := c.dev.Close()
	c.usb.Close()
	c.setState(channel.StateNotReady)
	return err
}

// Send transmits one DPA frame as a data-send command and waits for the
// gateway acknowledgement.
func (c *Channel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := make([]byte, 0, len(cmdDataSend)+2+len(data))
	msg = append(msg, cmdDataSend...)
	msg = append(msg, ':', byte(len(data)))
	msg = append(msg, data...)
	msg = append(msg, terminator)

	// drop a stale acknowledgement from a timed-out send
	select {
	case <-c.sendAck:
	default:
	}

	if _, err := c.out.Write(msg); err != nil {
		return errors.Wrap(err, "bulk write")
	}

	select {
	case ok := <-c.sendAck:
		if !ok {
			return errors.New("gateway rejected frame")
		}
		return nil
	case <-time.After(responseTimeout):
		return errors.New("gateway acknowledgement timeout")
	case <-c.stop:
		return errors.New("channel closed")
	}
}

// RegisterReceiver installs the receive handler.
func (c *Channel) RegisterReceiver(fn channel.ReceiveFunc) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	c.receiver = fn
}

// State reports gateway liveness.
func (c *Channel) State() channel.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s channel.State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// test sends the gateway test command and waits for the acknowledgement.
func (c *Channel) test() error {
	if _, err := c.out.Write([]byte(cmdTest + string(terminator))); err != nil {
		return errors.Wrap(err, "bulk write")
	}
	select {
	case ok := <-c.sendAck:
		if !ok {
			return errors.New("gateway reported error")
		}
		return nil
	case <-time.After(responseTimeout):
		return errors.New("no answer from gateway")
	}
}

// readLoop reassembles CR-terminated gateway messages from the bulk-in
// stream and dispatches them.
func (c *Channel) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, 512)
	var pending []byte

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		n, err := c.in.Read(buf)
		if err != nil {
			select {
			case <-c.stop:
				return
			default:
			}
			c.log.WithError(err).Warn("bulk read failed")
			c.setState(channel.StateNotReady)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		pending = append(pending, buf[:n]...)
		for {
			idx := bytes.IndexByte(pending, terminator)
			if idx < 0 {
				break
			}
			c.dispatch(pending[:idx])
			pending = pending[idx+1:]
		}
	}
}

// dispatch routes one complete gateway message: acknowledgements release a
// blocked Send, data-received messages carry a DPA frame for the receiver.
func (c *Channel) dispatch(msg []byte) {
	switch {
	case bytes.HasPrefix(msg, []byte(asyncDataPrefix)):
		// <DR:<len><data>
		payload := msg[len(asyncDataPrefix)+1:]
		if len(payload) < 1 {
			return
		}
		length := int(payload[0])
		data := payload[1:]
		if length != len(data) {
			c.log.WithFields(logrus.Fields{"declared": length, "got": len(data)}).Warn("gateway length mismatch")
			return
		}
		c.recvMu.Lock()
		receiver := c.receiver
		c.recvMu.Unlock()
		if receiver != nil {
			receiver(data)
		}
	case bytes.Contains(msg, []byte(respOK)):
		select {
		case c.sendAck <- true:
		default:
		}
	case bytes.Contains(msg, []byte(respErr)):
		select {
		case c.sendAck <- false:
		default:
		}
	default:
		c.log.Debugf("unhandled gateway message: %q", msg)
	}
}
