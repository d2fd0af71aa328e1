package protocol

import (
	"fmt"
	"io"
	"strconv"
)

// EncodeRequest writes req to w as one frame.
func EncodeRequest(w io.Writer, req Request) error {
	if req.Operation == "" {
		return ErrShortFrame
	}
	fields := make([]string, 0, 3+len(req.Params))
	fields = append(fields, req.ProtocolVersion, req.NamespaceVersion, req.Operation)
	fields = append(fields, req.Params...)
	return writeFrame(w, 0, fields)
}

// EncodeResponse writes resp to w as one frame.
func EncodeResponse(w io.Writer, resp Response) error {
	var fields []string
	switch resp.Kind {
	case KindScalar:
		fields = []string{resp.Scalar}
	case KindArray:
		fields = make([]string, 0, 1+len(resp.Lines))
		fields = append(fields, strconv.Itoa(len(resp.Lines)))
		fields = append(fields, resp.Lines...)
	case KindError:
		fields = []string{resp.ErrCode, resp.ErrText}
	default:
		return ErrBadKind
	}
	return writeFrame(w, byte(resp.Kind), fields)
}

func writeFrame(w io.Writer, kind byte, fields []string) error {
	for _, f := range fields {
		if len(f) > maxFieldLen {
			return ErrFieldTooLong
		}
	}
	if _, err := io.WriteString(w, Signature); err != nil {
		return err
	}
	if kind != 0 {
		if _, err := w.Write([]byte{kind}); err != nil {
			return err
		}
	}
	for _, f := range fields {
		if err := writeField(w, f); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte{frameEnd})
	return err
}

func writeField(w io.Writer, value string) error {
	if _, err := fmt.Fprintf(w, "%0*d", lenDigits, len(value)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, value); err != nil {
		return err
	}
	_, err := w.Write([]byte{fieldDelim})
	return err
}
