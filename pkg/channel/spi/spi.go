// Package spi implements the IQRF channel over a Linux spidev device, for
// coordinator modules wired directly to the host SPI bus (e.g. the KON-RASP
// board). The module is polled for its SPI status; when it reports data
// ready, the packet is clocked out and handed to the registered receiver.
package spi

import (
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/anthropics/purple-iqrf/pkg/channel"
)

// spidev ioctl requests from linux/spi/spidev.h
const (
	spiIocWrMode        = 0x40016B01 // SPI_IOC_WR_MODE
	spiIocWrBitsPerWord = 0x40016B03 // SPI_IOC_WR_BITS_PER_WORD
	spiIocWrMaxSpeedHz  = 0x40046B04 // SPI_IOC_WR_MAX_SPEED_HZ
	spiIocMessage1      = 0x40206B00 // SPI_IOC_MESSAGE(1)
)

// IQRF SPI bus parameters. The TR module tolerates at most 250 kHz and
// needs an inter-byte gap.
const (
	spiMode        = 0
	spiBitsPerWord = 8
	spiSpeedHz     = 250000
	spiByteDelayUs = 150
)

// IQRF SPI protocol bytes
const (
	spiCheck       = 0x00 // status check
	spiCmdTransfer = 0xF0 // data read/write command

	statusDisabled    = 0x00
	statusSuspended   = 0x07
	statusCrcmError   = 0x3E
	statusBuffProtect = 0x3F
	statusReadyComm   = 0x80
	statusReadyProg   = 0x81
	statusReadyDebug  = 0x82
	statusSlowMode    = 0x83
	statusHwError     = 0xFF

	// 0x40..0x7F: data ready, low bits carry the length (0x40 means 64)
	statusDataReadyBase = 0x40
)

// MaxDataLength is the largest packet the module transfers in one go.
const MaxDataLength = 64

// DefaultPollInterval is how often the module status is checked for
// asynchronous data.
const DefaultPollInterval = 10 * time.Millisecond

// packedTransfer is the packed spi_ioc_transfer struct (32 bytes).
type packedTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

// Channel is an IQRF SPI transport. It satisfies channel.Channel.
type Channel struct {
	fd   int
	path string
	log  *logrus.Logger

	mu       sync.Mutex
	receiver channel.ReceiveFunc
	state    channel.State

	stop chan struct{}
	wg   sync.WaitGroup
}

// Open opens the spidev device and starts the status-poll loop.
func Open(path string, log *logrus.Logger) (*Channel, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	c := &Channel{
		fd:    fd,
		path:  path,
		log:   log,
		state: channel.StateNotReady,
		stop:  make(chan struct{}),
	}

	mode := uint8(spiMode)
	if err := c.ioctl(spiIocWrMode, unsafe.Pointer(&mode)); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "setting SPI mode")
	}
	bits := uint8(spiBitsPerWord)
	if err := c.ioctl(spiIocWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "setting SPI bits per word")
	}
	speed := uint32(spiSpeedHz)
	if err := c.ioctl(spiIocWrMaxSpeedHz, unsafe.Pointer(&speed)); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "setting SPI speed")
	}

	c.wg.Add(1)
	go c.pollLoop()

	return c, nil
}

// Close stops the poll loop and releases the device.
func (c *Channel) Close() error {
	close(c.stop)
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fd >= 0 {
		err := unix.Close(c.fd)
		c.fd = -1
		if err != nil {
			return errors.Wrap(err, "closing device")
		}
	}
	return nil
}

// Send clocks a DPA frame into the module. The module must report a ready
// status first; busy states are retried briefly before giving up.
func (c *Channel) Send(data []byte) error {
	if len(data) == 0 || len(data) > MaxDataLength {
		return errors.Errorf("invalid frame length %d", len(data))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(500 * time.Millisecond)
	for {
		status, err := c.readStatus()
		if err != nil {
			return err
		}
		if status == statusReadyComm {
			break
		}
		if time.Now().After(deadline) {
			return errors.Errorf("module not ready for communication, status 0x%02x", status)
		}
		time.Sleep(time.Millisecond)
	}

	return c.writeData(data)
}

// RegisterReceiver installs the receive handler.
func (c *Channel) RegisterReceiver(fn channel.ReceiveFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receiver = fn
}

// State reports the liveness derived from the last status poll.
func (c *Channel) State() channel.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// pollLoop checks the module status and drains ready data to the receiver.
func (c *Channel) pollLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(DefaultPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		status, err := c.readStatus()
		if err != nil {
			c.state = channel.StateNotReady
			c.mu.Unlock()
			continue
		}

		switch {
		case status == statusReadyComm:
			c.state = channel.StateReadyComm
			c.mu.Unlock()
		case status >= statusDataReadyBase && status < statusReadyComm:
			length := int(status & 0x3F)
			if length == 0 {
				length = MaxDataLength
			}
			data, err := c.readData(length)
			receiver := c.receiver
			c.mu.Unlock()
			if err != nil {
				c.log.WithError(err).Warn("SPI read failed")
				continue
			}
			if receiver != nil {
				receiver(data)
			}
		case status == statusReadyProg || status == statusReadyDebug || status == statusSlowMode:
			c.state = channel.StateReady
			c.mu.Unlock()
		default:
			c.state = channel.StateNotReady
			c.mu.Unlock()
		}
	}
}

// readStatus performs the one-byte SPI status check.
func (c *Channel) readStatus() (uint8, error) {
	tx := [1]byte{spiCheck}
	rx := [1]byte{}
	if err := c.transfer(tx[:], rx[:]); err != nil {
		return 0, errors.Wrap(err, "status check")
	}
	return rx[0], nil
}

// writeData sends CMD, PTYPE, payload and CRCM in a single transfer.
func (c *Channel) writeData(data []byte) error {
	ptype := uint8(0x80 | len(data))
	tx := make([]byte, 0, len(data)+3)
	tx = append(tx, spiCmdTransfer, ptype)
	tx = append(tx, data...)
	tx = append(tx, crcm(ptype, data))
	rx := make([]byte, len(tx))
	return c.transfer(tx, rx)
}

// readData clocks out a ready packet and verifies its CRCS.
func (c *Channel) readData(length int) ([]byte, error) {
	ptype := uint8(length & 0x7F)
	tx := make([]byte, length+3)
	tx[0] = spiCmdTransfer
	tx[1] = ptype
	rx := make([]byte, len(tx))
	if err := c.transfer(tx, rx); err != nil {
		return nil, err
	}
	data := rx[2 : 2+length]
	if rx[2+length] != crcs(ptype, data) {
		return nil, errors.New("CRCS mismatch")
	}
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

// crcm is the host-to-module checksum: XOR of all bytes with 0x5F.
func crcm(ptype uint8, data []byte) uint8 {
	crc := spiCmdTransfer ^ ptype ^ uint8(0x5F)
	for _, b := range data {
		crc ^= b
	}
	return crc
}

// crcs is the module-to-host checksum.
func crcs(ptype uint8, data []byte) uint8 {
	crc := ptype ^ uint8(0x5F)
	for _, b := range data {
		crc ^= b
	}
	return crc
}

func (c *Channel) transfer(tx, rx []byte) error {
	xfer := packedTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(len(tx)),
		speedHz:     spiSpeedHz,
		delayUsecs:  spiByteDelayUs,
		bitsPerWord: spiBitsPerWord,
	}
	return c.ioctl(spiIocMessage1, unsafe.Pointer(&xfer))
}

func (c *Channel) ioctl(cmd uint32, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), uintptr(cmd), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
