package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

type frameType uint8

const (
	frameHandshake frameType = 0x01
	frameMessage   frameType = 0x02
)

// maxFrameSize bounds a single frame body, guarding against a malformed or
// hostile peer announcing an unbounded length prefix.
const maxFrameSize = 16 << 20 // 16 MiB

// handshakePayload is exchanged once, immediately after a connection opens
// in either direction, before any protocol traffic is sent.
type handshakePayload struct {
	PeerID      [32]byte
	Protocols   []string
	ListenAddrs []string
}

// messagePayload wraps a single protocol message.
type messagePayload struct {
	Protocol string
	Payload  []byte
}

// writeFrame serializes kind+body as [4-byte length][1-byte type][cbor body].
func writeFrame(w io.Writer, kind frameType, body any) error {
	encoded, err := cbor.Marshal(body)
	if err != nil {
		return fmt.Errorf("transport: encode frame body: %w", err)
	}

	header := make([]byte, 5)
	binary.BigEndian.PutUint32(header[0:4], uint32(len(encoded)+1))
	header[4] = byte(kind)

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(encoded)
	return err
}

// readFrame reads one length-prefixed frame and returns its type and raw
// (still CBOR-encoded) body.
func readFrame(r io.Reader) (frameType, []byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(header)
	if length == 0 || length > maxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}

	typeAndBody := make([]byte, length)
	if _, err := io.ReadFull(r, typeAndBody); err != nil {
		return 0, nil, err
	}

	return frameType(typeAndBody[0]), typeAndBody[1:], nil
}
