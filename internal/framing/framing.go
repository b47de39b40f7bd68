// Package framing implements the wire codec for the rpc framework: a
// length-prefixed "header CRLF body CRLF" layout over a byte stream.
//
//	<decimal-ascii body-length including the body's trailing CRLF>\r\n<body-bytes>\r\n
package framing

import (
	"bytes"
	"strconv"

	"github.com/cockroachdb/errors"
)

const crlf = "\r\n"

// Encode frames a single JSON document body into the wire layout.
func Encode(body []byte) []byte {
	bodyLen := len(body) + len(crlf)
	header := strconv.Itoa(bodyLen)

	out := make([]byte, 0, len(header)+len(crlf)+len(body)+len(crlf))
	out = append(out, header...)
	out = append(out, crlf...)
	out = append(out, body...)
	out = append(out, crlf...)
	return out
}

// Decoder incrementally decodes frames out of a growing byte buffer fed by
// Feed. It holds no reference to its caller's connection; callers own the
// I/O loop and push bytes in as they arrive.
type Decoder struct {
	buf        []byte
	maxMessage int
}

// NewDecoder returns a Decoder that rejects any declared body length over
// maxMessage (100 MiB server-side, 64 KiB client-side per the wire limits).
func NewDecoder(maxMessage int) *Decoder {
	return &Decoder{maxMessage: maxMessage}
}

// Feed appends newly read bytes to the decode buffer.
func (d *Decoder) Feed(data []byte) {
	d.buf = append(d.buf, data...)
}

// Buffered reports how many undecoded bytes are currently held.
func (d *Decoder) Buffered() int { return len(d.buf) }

// Next attempts to decode one complete message from the buffered bytes.
//
// ok is false (err nil) when more bytes are needed before a decision can
// be made — callers should read more from the connection and call Next
// again. err is non-nil only for a genuine protocol violation: a
// malformed header or a declared length beyond maxMessage; these are
// unrecoverable for the stream and the connection should be closed.
func (d *Decoder) Next() (body []byte, ok bool, err error) {
	for {
		idx := bytes.Index(d.buf, []byte(crlf))
		if idx < 0 {
			return nil, false, nil
		}

		// An isolated CRLF (empty header line) is discarded silently.
		if idx == 0 {
			d.buf = d.buf[len(crlf):]
			continue
		}

		headerBytes := d.buf[:idx]
		headerLen := idx + len(crlf)

		bodyLen, perr := strconv.Atoi(string(headerBytes))
		if perr != nil || bodyLen <= 0 {
			return nil, false, errors.Newf("framing: invalid header %q", headerBytes)
		}
		if bodyLen > d.maxMessage {
			return nil, false, errors.Newf("framing: declared length %d exceeds limit %d", bodyLen, d.maxMessage)
		}

		if len(d.buf) < headerLen+bodyLen {
			// Well-formed header, body still arriving: need more bytes,
			// not an error, on both client and server (see design notes).
			return nil, false, nil
		}

		full := d.buf[headerLen : headerLen+bodyLen]
		d.buf = d.buf[headerLen+bodyLen:]

		// full ends with the body's own trailing CRLF, which counts
		// toward bodyLen but is not part of the JSON document.
		msg := bytes.TrimSuffix(full, []byte(crlf))
		return msg, true, nil
	}
}
