package protocol

// Signature prefixes every frame in both directions.
const Signature = "[XWB]"

// Versions carried in every request frame.
const (
	ProtocolVersion  = "1.108"
	NamespaceVersion = "1.1"
)

// Operations with connection-lifecycle meaning. Any other operation name is
// a remote procedure invocation.
const (
	OpHandshake  = "TCPConnect"
	OpLogin      = "XUS AV CODE"
	OpSetContext = "XWB CREATE CONTEXT"
	OpDisconnect = "#BYE#"
)

const (
	frameEnd    byte = 0x04
	fieldDelim  byte = 0x00
	lenDigits        = 5
	maxFieldLen      = 99999
)

// Request is one framed procedure call.
type Request struct {
	ProtocolVersion  string
	NamespaceVersion string
	Operation        string
	Params           []string
}

// NewRequest builds a request carrying the current protocol versions.
func NewRequest(operation string, params ...string) Request {
	return Request{
		ProtocolVersion:  ProtocolVersion,
		NamespaceVersion: NamespaceVersion,
		Operation:        operation,
		Params:           params,
	}
}

// ResponseKind discriminates the three reply shapes.
type ResponseKind byte

const (
	KindScalar ResponseKind = 'S'
	KindArray  ResponseKind = 'A'
	KindError  ResponseKind = 'E'
)

// Response is one framed reply.
type Response struct {
	Kind    ResponseKind
	Scalar  string
	Lines   []string
	ErrCode string
	ErrText string
}

func ScalarResponse(value string) Response {
	return Response{Kind: KindScalar, Scalar: value}
}

func ArrayResponse(lines ...string) Response {
	return Response{Kind: KindArray, Lines: lines}
}

func ErrorResponse(code, text string) Response {
	return Response{Kind: KindError, ErrCode: code, ErrText: text}
}
