package docstore

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mstrYoda/graphview"
)

// Stored values are framed as magic(1) + msgpack envelope + crc32(4).
const itemMagicCRC byte = 0x02

// crc32Table is the precomputed Castagnoli CRC32 table.
var crc32Table = crc32.MakeTable(crc32.Castagnoli)

var (
	errShortValue = errors.New("value too short for checksum")
	errBadMagic   = errors.New("unknown value format")
	errChecksum   = errors.New("checksum mismatch")
)

// envelope is the persisted form of one raw item.
type envelope struct {
	Raw      []byte `msgpack:"raw"`
	StoredAt int64  `msgpack:"ts"`
}

// encodeUint64 encodes a uint64 as 8-byte big-endian so keys sort in
// insertion order.
func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func encodeEnvelope(env envelope) ([]byte, error) {
	raw, err := msgpack.Marshal(&env)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 1+len(raw)+4)
	buf[0] = itemMagicCRC
	copy(buf[1:], raw)
	checksum := crc32.Checksum(buf[:1+len(raw)], crc32Table)
	binary.BigEndian.PutUint32(buf[1+len(raw):], checksum)
	return buf, nil
}

// decodeEnvelope verifies the frame and returns the envelope. Corrupt
// values fail with a graphview.MalformedEncodingError.
func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if len(data) < 5 {
		return env, &graphview.MalformedEncodingError{What: "stored item", Err: errShortValue}
	}
	if data[0] != itemMagicCRC {
		return env, &graphview.MalformedEncodingError{What: "stored item", Err: errBadMagic}
	}
	payload := data[:len(data)-4]
	stored := binary.BigEndian.Uint32(data[len(data)-4:])
	if actual := crc32.Checksum(payload, crc32Table); stored != actual {
		return env, &graphview.MalformedEncodingError{What: "stored item", Err: errChecksum}
	}
	if err := msgpack.Unmarshal(payload[1:], &env); err != nil {
		return env, &graphview.MalformedEncodingError{What: "stored item", Err: err}
	}
	return env, nil
}
