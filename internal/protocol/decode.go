package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// DecodeRequest reads one request frame from r.
func DecodeRequest(r *bufio.Reader) (Request, error) {
	fields, _, err := readFrame(r, false)
	if err != nil {
		return Request{}, err
	}
	if len(fields) < 3 {
		return Request{}, ErrShortFrame
	}
	req := Request{
		ProtocolVersion:  fields[0],
		NamespaceVersion: fields[1],
		Operation:        fields[2],
	}
	if len(fields) > 3 {
		req.Params = fields[3:]
	}
	return req, nil
}

// DecodeResponse reads one response frame from r.
func DecodeResponse(r *bufio.Reader) (Response, error) {
	fields, kind, err := readFrame(r, true)
	if err != nil {
		return Response{}, err
	}
	switch ResponseKind(kind) {
	case KindScalar:
		if len(fields) != 1 {
			return Response{}, ErrShortFrame
		}
		return Response{Kind: KindScalar, Scalar: fields[0]}, nil
	case KindArray:
		if len(fields) < 1 {
			return Response{}, ErrShortFrame
		}
		count, err := strconv.Atoi(fields[0])
		if err != nil || count < 0 || count != len(fields)-1 {
			return Response{}, ErrBadCount
		}
		resp := Response{Kind: KindArray}
		if count > 0 {
			resp.Lines = fields[1:]
		}
		return resp, nil
	case KindError:
		if len(fields) != 2 {
			return Response{}, ErrShortFrame
		}
		return Response{Kind: KindError, ErrCode: fields[0], ErrText: fields[1]}, nil
	default:
		return Response{}, ErrBadKind
	}
}

func readFrame(r *bufio.Reader, withKind bool) ([]string, byte, error) {
	sig := make([]byte, len(Signature))
	if _, err := io.ReadFull(r, sig); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	if string(sig) != Signature {
		return nil, 0, ErrBadSignature
	}

	var kind byte
	if withKind {
		b, err := r.ReadByte()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		kind = b
	}

	var fields []string
	for {
		next, err := r.ReadByte()
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrTruncated, err)
		}
		if next == frameEnd {
			return fields, kind, nil
		}
		if err := r.UnreadByte(); err != nil {
			return nil, 0, ErrTruncated
		}
		field, err := readField(r)
		if err != nil {
			return nil, 0, err
		}
		fields = append(fields, field)
	}
}

func readField(r *bufio.Reader) (string, error) {
	lenBuf := make([]byte, lenDigits)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	n := 0
	for _, d := range lenBuf {
		if d < '0' || d > '9' {
			return "", ErrBadLength
		}
		n = n*10 + int(d-'0')
	}
	value := make([]byte, n)
	if _, err := io.ReadFull(r, value); err != nil {
		return "", fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	delim, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTruncated, err)
	}
	if delim != fieldDelim {
		return "", ErrMissingDelimiter
	}
	return string(value), nil
}
