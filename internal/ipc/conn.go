package ipc

import (
	"encoding/json"
	"fmt"
	"io"
)

// Encoder writes a stream of concatenated JSON messages with no length
// prefix or framing header. json.Encoder follows each message with a
// newline; the Decoder does not depend on it and separates messages by
// JSON's self-delimiting grammar alone.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: json.NewEncoder(w)}
}

// EncodeM2W writes one master-to-worker message.
func (e *Encoder) EncodeM2W(m M2WMessage) error {
	if err := e.enc.Encode(m); err != nil {
		return fmt.Errorf("ipc: encode m2w message: %w", err)
	}
	return nil
}

// EncodeW2M writes one worker-to-master message.
func (e *Encoder) EncodeW2M(m W2MMessage) error {
	if err := e.enc.Encode(m); err != nil {
		return fmt.Errorf("ipc: encode w2m message: %w", err)
	}
	return nil
}

// Decoder reads a stream of concatenated JSON messages.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder wraps r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// DecodeM2W reads one master-to-worker message. It returns io.EOF when
// the peer has closed the stream cleanly between messages.
func (d *Decoder) DecodeM2W() (M2WMessage, error) {
	var m M2WMessage
	if err := d.dec.Decode(&m); err != nil {
		return M2WMessage{}, err
	}
	return m, nil
}

// DecodeW2M reads one worker-to-master message.
func (d *Decoder) DecodeW2M() (W2MMessage, error) {
	var m W2MMessage
	if err := d.dec.Decode(&m); err != nil {
		return W2MMessage{}, err
	}
	return m, nil
}
