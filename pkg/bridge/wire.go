package bridge

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/battwatch/battwatch-go/pkg/battery"
)

// encMode is the CBOR encoder mode for bridge frames.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for bridge frames.
var decMode cbor.DecMode

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create bridge CBOR encoder mode: %v", err))
	}

	// Lenient decoding for forward compatibility.
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create bridge CBOR decoder mode: %v", err))
	}
}

// Op identifies a request operation.
type Op uint8

const (
	// OpRead is a one-shot read of all battery sources.
	OpRead Op = 1

	// OpSubscribe establishes a report subscription on this connection and
	// returns the current reading.
	OpSubscribe Op = 2

	// OpUnsubscribe tears down the subscription on this connection.
	// Always succeeds, subscribed or not.
	OpUnsubscribe Op = 3
)

// IsValid reports whether the operation is known.
func (o Op) IsValid() bool {
	return o >= OpRead && o <= OpUnsubscribe
}

// String returns the operation name.
func (o Op) String() string {
	switch o {
	case OpRead:
		return "READ"
	case OpSubscribe:
		return "SUBSCRIBE"
	case OpUnsubscribe:
		return "UNSUBSCRIBE"
	default:
		return fmt.Sprintf("OP(%d)", o)
	}
}

// Status is a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation succeeded.
	StatusSuccess Status = 0

	// StatusUnreachable indicates the battery sources could not be read.
	StatusUnreachable Status = 1

	// StatusBadRequest indicates a malformed or unknown request.
	StatusBadRequest Status = 2
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusUnreachable:
		return "UNREACHABLE"
	case StatusBadRequest:
		return "BAD_REQUEST"
	default:
		return fmt.Sprintf("STATUS(%d)", s)
	}
}

// ReportMessageID marks a frame as a server-pushed report rather than a
// response; request message IDs start at 1.
const ReportMessageID uint32 = 0

// SourceRecord is the wire form of one battery source.
type SourceRecord struct {
	Descriptor *string `cbor:"1,keyasint,omitempty"`
	Level      *int    `cbor:"2,keyasint,omitempty"`
}

// Request is a client-to-agent request frame.
type Request struct {
	MessageID uint32 `cbor:"1,keyasint"`
	Op        Op     `cbor:"2,keyasint"`
}

// Validate checks the request.
func (r *Request) Validate() error {
	if r.MessageID == ReportMessageID {
		return errors.New("message id 0 is reserved for reports")
	}
	if !r.Op.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Op)
	}
	return nil
}

// Response is an agent-to-client response frame. MessageID matches the
// request.
type Response struct {
	MessageID uint32         `cbor:"1,keyasint"`
	Status    Status         `cbor:"2,keyasint"`
	Sources   []SourceRecord `cbor:"3,keyasint,omitempty"`
}

// Report is an agent-pushed battery report frame, distinguished from
// responses by MessageID 0.
type Report struct {
	MessageID uint32       `cbor:"1,keyasint"`
	Source    SourceRecord `cbor:"2,keyasint"`
}

// frameHeader decodes just enough of an incoming frame to route it.
type frameHeader struct {
	MessageID uint32 `cbor:"1,keyasint"`
}

// EncodeRequest encodes a request frame.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return encMode.Marshal(req)
}

// DecodeRequest decodes a request frame.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := decMode.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response frame.
func EncodeResponse(resp *Response) ([]byte, error) {
	return encMode.Marshal(resp)
}

// EncodeReport encodes a report frame. The message ID is forced to the
// report marker.
func EncodeReport(source SourceRecord) ([]byte, error) {
	return encMode.Marshal(&Report{MessageID: ReportMessageID, Source: source})
}

// DecodeServerFrame decodes a frame received by the client. Exactly one of
// the results is non-nil.
func DecodeServerFrame(data []byte) (*Response, *Report, error) {
	var header frameHeader
	if err := decMode.Unmarshal(data, &header); err != nil {
		return nil, nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	if header.MessageID == ReportMessageID {
		var report Report
		if err := decMode.Unmarshal(data, &report); err != nil {
			return nil, nil, fmt.Errorf("failed to decode report: %w", err)
		}
		return nil, &report, nil
	}

	var resp Response
	if err := decMode.Unmarshal(data, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil, nil
}

// ToRecord converts a battery source to its wire form.
func ToRecord(s battery.Source) SourceRecord {
	s = s.Clone()
	return SourceRecord{Descriptor: s.Descriptor, Level: s.Level}
}

// ToRecords converts a source slice to wire form.
func ToRecords(sources []battery.Source) []SourceRecord {
	if len(sources) == 0 {
		return nil
	}
	out := make([]SourceRecord, len(sources))
	for i, s := range sources {
		out[i] = ToRecord(s)
	}
	return out
}

// FromRecord converts a wire record to a battery source.
func FromRecord(r SourceRecord) battery.Source {
	return battery.Source{Descriptor: r.Descriptor, Level: r.Level}.Clone()
}

// FromRecords converts wire records to battery sources.
func FromRecords(records []SourceRecord) []battery.Source {
	if len(records) == 0 {
		return nil
	}
	out := make([]battery.Source, len(records))
	for i, r := range records {
		out[i] = FromRecord(r)
	}
	return out
}
