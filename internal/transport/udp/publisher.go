// SPDX-License-Identifier: MIT
//
// Package udp publishes results as datagrams for lightweight listeners such
// as dashboards on the local network.
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	applog "genre/internal/log"
	"genre/internal/transport"

	"github.com/vmihailenco/msgpack/v5"
)

var logger = applog.For("UDP")

const (
	// HeaderSize is the fixed size of the packet header in bytes.
	HeaderSize = 4 + 8 + 2
	// MaxDatagram is the largest UDP payload IPv4 can carry.
	MaxDatagram = 65507
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Payload Length    | uint16         | 2            | Bytes of payload (N)    |
| Payload           | msgpack        | N            | Encoded message         |
+-----------------------------------------------------------------------------+
*/

// Publisher implements transport.Transport by packing each message into one
// datagram.
type Publisher struct {
	sender *UDPSender

	mu          sync.Mutex // Serialises sequence numbers and the buffer.
	sequenceNum uint32
	packet      *bytes.Buffer
}

// NewPublisher dials targetAddress and returns a publisher.
func NewPublisher(targetAddress string) (*Publisher, error) {
	sender, err := NewUDPSender(targetAddress)
	if err != nil {
		return nil, err
	}
	return &Publisher{sender: sender, packet: new(bytes.Buffer)}, nil
}

// Send encodes data with msgpack and sends it as one packet.
func (p *Publisher) Send(data any) error {
	payload, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode UDP payload: %w", err)
	}
	if len(payload) > MaxDatagram-HeaderSize {
		return fmt.Errorf("UDP payload of %d bytes exceeds packet size", len(payload))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.sequenceNum++
	p.packet.Reset()
	var header [HeaderSize]byte
	binary.BigEndian.PutUint32(header[0:4], p.sequenceNum)
	binary.BigEndian.PutUint64(header[4:12], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint16(header[12:14], uint16(len(payload)))
	p.packet.Write(header[:])
	p.packet.Write(payload)

	if err := p.sender.Send(p.packet.Bytes()); err != nil {
		return err
	}
	logger.Debugf("Sent packet %d (%d bytes)", p.sequenceNum, p.packet.Len())
	return nil
}

// Close closes the underlying sender.
func (p *Publisher) Close() error {
	return p.sender.Close()
}

// Packet is a decoded datagram.
type Packet struct {
	Sequence  uint32
	Timestamp time.Time
	Payload   []byte
}

// ParsePacket splits a datagram into header fields and payload.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, errors.New("short UDP packet")
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) != HeaderSize+n {
		return Packet{}, fmt.Errorf("UDP packet has %d payload bytes, header says %d", len(b)-HeaderSize, n)
	}
	return Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(b[4:12]))),
		Payload:   b[HeaderSize:],
	}, nil
}

// DecodeResult decodes a packet payload produced from a transport.Result.
func (p Packet) DecodeResult() (transport.Result, error) {
	var r transport.Result
	err := msgpack.Unmarshal(p.Payload, &r)
	return r, err
}

var _ transport.Transport = (*Publisher)(nil)
