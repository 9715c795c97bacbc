package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single decoded frame.
const MaxFrameSize = 1 << 20

var dataPrefix = []byte("data:")

// Encode renders m as a single `data: <json>` line followed by a blank line.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s message: %w", m.Type, err)
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	return frame, nil
}

func WriteFrame(w io.Writer, m Message) error {
	frame, err := Encode(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// Decoder splits an event stream into frame payloads. Comment lines and the
// id/event/retry fields are ignored; multiple data lines in one frame are
// joined with a newline. A frame larger than MaxFrameSize is discarded and
// decoding resumes with the next one.
type Decoder struct {
	r    *bufio.Reader
	line []byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 4096)}
}

// Next returns the data of the next non-empty frame, or io.EOF once the
// stream ends.
func (d *Decoder) Next() ([]byte, error) {
	var data []byte
	var seen, skip bool
	for {
		line, tooLong, err := d.readLine()
		if err != nil {
			if err == io.EOF && seen && !skip {
				return data, nil
			}
			return nil, err
		}
		if tooLong {
			skip = true
			continue
		}
		if len(line) == 0 {
			if skip {
				data, seen, skip = nil, false, false
				continue
			}
			if seen {
				return data, nil
			}
			continue
		}
		if skip || !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		value := bytes.TrimPrefix(line[len(dataPrefix):], []byte(" "))
		if len(data)+len(value)+1 > MaxFrameSize {
			skip = true
			continue
		}
		if seen {
			data = append(data, '\n')
		}
		data = append(data, value...)
		seen = true
	}
}

// readLine returns the next line without its terminator. The content of a
// line longer than MaxFrameSize is dropped and tooLong is set.
func (d *Decoder) readLine() (line []byte, tooLong bool, err error) {
	d.line = d.line[:0]
	for {
		chunk, err := d.r.ReadSlice('\n')
		if !tooLong {
			if len(d.line)+len(chunk) > MaxFrameSize {
				tooLong = true
				d.line = d.line[:0]
			} else {
				d.line = append(d.line, chunk...)
			}
		}
		switch {
		case err == nil:
			return trimEOL(d.line), tooLong, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == io.EOF && (len(d.line) > 0 || tooLong):
			return trimEOL(d.line), tooLong, nil
		default:
			return nil, false, err
		}
	}
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

var ErrMissingType = errors.New("message has no type")

func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if m.Type == "" {
		return Message{}, ErrMissingType
	}
	return m, nil
}
