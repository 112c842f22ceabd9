package drivers

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/desertwitch/kcore/internal/request"
	"github.com/desertwitch/kcore/internal/vfs"
	"github.com/zeebo/blake3"
)

// EchoCapacity is the number of bytes the echo device buffers.
const EchoCapacity = 4096

func errorReply(err error) (request.MsgID, []byte) {
	return vfs.MsgErrorReply, []byte(err.Error())
}

// Zero reads as an endless stream of zero bytes and discards writes.
type Zero struct{}

func (Zero) Name() string { return "zero" }

func (Zero) Handle(msg vfs.Message) (request.MsgID, []byte) {
	if msg.Op == vfs.OpWrite {
		return vfs.MsgWriteReply, vfs.EncodeCount(msg.Count)
	}

	return vfs.MsgReadReply, make([]byte, msg.Count)
}

// Null reads as empty and discards writes.
type Null struct{}

func (Null) Name() string { return "null" }

func (Null) Handle(msg vfs.Message) (request.MsgID, []byte) {
	if msg.Op == vfs.OpWrite {
		return vfs.MsgWriteReply, vfs.EncodeCount(msg.Count)
	}

	return vfs.MsgReadReply, nil
}

// Random reads as a keyed blake3 output stream. Writes are mixed into the
// key.
type Random struct {
	key     [32]byte
	counter uint64
}

// NewRandom returns a pointer to a new [Random] device deriving its key from
// the seed. Equal seeds yield equal streams.
func NewRandom(seed uint64) *Random {
	r := &Random{}
	r.key = blake3.Sum256(binary.LittleEndian.AppendUint64([]byte("kcore random seed"), seed))

	return r
}

func (r *Random) Name() string { return "random" }

func (r *Random) Handle(msg vfs.Message) (request.MsgID, []byte) {
	if msg.Op == vfs.OpWrite {
		r.key = blake3.Sum256(append(r.key[:], msg.Data...))

		return vfs.MsgWriteReply, vfs.EncodeCount(len(msg.Data))
	}

	data, err := r.next(msg.Count)
	if err != nil {
		slog.Error("Failed to generate random data.", "err", err)

		return errorReply(err)
	}

	return vfs.MsgReadReply, data
}

// next returns count bytes of the output stream for the current block.
func (r *Random) next(count int) ([]byte, error) {
	h, err := blake3.NewKeyed(r.key[:])
	if err != nil {
		return nil, fmt.Errorf("(drivers-random) %w", err)
	}

	if _, err := h.Write(binary.LittleEndian.AppendUint64(nil, r.counter)); err != nil {
		return nil, fmt.Errorf("(drivers-random) %w", err)
	}
	r.counter++

	data := make([]byte, count)
	if _, err := h.Digest().Read(data); err != nil {
		return nil, fmt.Errorf("(drivers-random) %w", err)
	}

	return data, nil
}

// Echo returns the bytes written to it in the order they were written.
type Echo struct {
	buf []byte
}

func (e *Echo) Name() string { return "echo" }

func (e *Echo) Handle(msg vfs.Message) (request.MsgID, []byte) {
	if msg.Op == vfs.OpWrite {
		if len(e.buf)+len(msg.Data) > EchoCapacity {
			return errorReply(fmt.Errorf("%w: %d of %d bytes used", ErrBufferFull, len(e.buf), EchoCapacity))
		}

		e.buf = append(e.buf, msg.Data...)

		return vfs.MsgWriteReply, vfs.EncodeCount(len(msg.Data))
	}

	n := min(msg.Count, len(e.buf))
	data := append([]byte(nil), e.buf[:n]...)
	e.buf = e.buf[n:]

	return vfs.MsgReadReply, data
}
