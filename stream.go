//go:build unix
// +build unix

package ioasync

import (
	"bytes"

	"golang.org/x/sys/unix"

	"github.com/chylli-binary/ioasync/iolog"
)

// streamChunkSize bounds a single nonblocking read or write.
const streamChunkSize = 8192

// IncomingDataHandler may be implemented by a StreamConfig.Handler to
// supply the consumer slot instead of an explicit callback.
type IncomingDataHandler interface {
	OnIncomingData(data *bytes.Buffer, closed bool) bool
}

// OutgoingEmptyHandler supplies the outgoing-empty slot, see
// IncomingDataHandler.
type OutgoingEmptyHandler interface {
	OnOutgoingEmpty()
}

// StreamConfig describes a Stream. The consumer owns framing: it is
// handed the receive buffer and strips complete records from the
// front, leaving partial ones; returning true asks to be called again
// before the reactor is re-entered.
type StreamConfig struct {
	Handle      *Handle
	ReadHandle  *Handle
	WriteHandle *Handle

	WantWriteReady bool

	OnIncomingData  func(data *bytes.Buffer, closed bool) bool
	OnOutgoingEmpty func()

	// Handler is probed for IncomingDataHandler, OutgoingEmptyHandler
	// and the Notifier handler interfaces.
	Handler interface{}
}

// Stream is a Notifier with buffered send and receive queues. Inbound
// bytes are pushed through the consumer's drain loop; outbound bytes
// leave in chunks whenever the reactor reports write readiness.
type Stream struct {
	Notifier
	sendBuf bytes.Buffer
	recvBuf bytes.Buffer
	chunk   []byte
	closed  bool

	onIncomingData  func(data *bytes.Buffer, closed bool) bool
	onOutgoingEmpty func()
}

func NewStream(cfg *StreamConfig) (*Stream, error) {
	s := &Stream{
		chunk: make([]byte, streamChunkSize),
	}
	err := s.applyConfig(&NotifierConfig{
		Handle:         cfg.Handle,
		ReadHandle:     cfg.ReadHandle,
		WriteHandle:    cfg.WriteHandle,
		WantWriteReady: cfg.WantWriteReady,
		Handler:        cfg.Handler,
	})
	if err != nil {
		return nil, err
	}

	s.onIncomingData = cfg.OnIncomingData
	s.onOutgoingEmpty = cfg.OnOutgoingEmpty
	if h, ok := cfg.Handler.(IncomingDataHandler); ok && s.onIncomingData == nil {
		s.onIncomingData = h.OnIncomingData
	}
	if h, ok := cfg.Handler.(OutgoingEmptyHandler); ok && s.onOutgoingEmpty == nil {
		s.onOutgoingEmpty = h.OnOutgoingEmpty
	}
	if s.readHandle != nil && s.onIncomingData == nil {
		return nil, ErrMissingIncomingData
	}

	// the stream's own state machine claims the readiness slots
	s.onReadReady = s.readReady
	s.onWriteReady = s.writeReady
	return s, nil
}

// Send appends to the send queue and raises write-interest.
func (s *Stream) Send(data []byte) error {
	if s.closed {
		return ErrStreamClosed
	}
	if s.writeHandle == nil {
		return ErrNoWriteHandle
	}
	if len(data) == 0 {
		return nil
	}
	s.sendBuf.Write(data)
	if !s.wantWrite {
		return s.SetWantWriteReady(true)
	}
	return nil
}

// Closed reports whether a zero-byte read has been observed.
func (s *Stream) Closed() bool {
	return s.closed
}

func (s *Stream) readReady() {
	n, err := s.readHandle.Read(s.chunk)
	if err != nil {
		if err != unix.EAGAIN {
			iolog.Errorf("[Handle.Read]: %s", err.Error())
			s.HandleClosed()
		}
		return
	}
	if n == 0 {
		// half-close: the consumer still runs once with closed set
		s.closed = true
	} else {
		s.recvBuf.Write(s.chunk[:n])
	}

	s.drain()

	if s.closed {
		s.HandleClosed()
	}
}

// drain repeatedly hands the receive buffer to the consumer until it
// reports no progress or the buffer is empty on a live handle. On a
// closed handle the consumer is called exactly once.
func (s *Stream) drain() {
	for {
		if !s.onIncomingData(&s.recvBuf, s.closed) {
			return
		}
		if s.closed || s.recvBuf.Len() == 0 {
			return
		}
	}
}

func (s *Stream) writeReady() {
	if s.sendBuf.Len() == 0 {
		return
	}
	chunk := s.sendBuf.Bytes()
	if len(chunk) > streamChunkSize {
		chunk = chunk[:streamChunkSize]
	}

	n, err := s.writeHandle.Write(chunk)
	if err != nil {
		if err != unix.EAGAIN {
			iolog.Errorf("[Handle.Write]: %s", err.Error())
			s.HandleClosed()
		}
		return
	}
	if n == 0 {
		s.HandleClosed()
		return
	}

	s.sendBuf.Next(n)
	if s.sendBuf.Len() == 0 {
		if err := s.SetWantWriteReady(false); err != nil {
			iolog.Errorf("[Stream.SetWantWriteReady]: %s", err.Error())
		}
		if s.onOutgoingEmpty != nil {
			s.onOutgoingEmpty()
		}
	}
}
