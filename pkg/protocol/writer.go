package protocol

import (
	"bufio"
	"encoding/json"
	"io"
	"strconv"

	"github.com/openconverge/converge/pkg/engine"
)

// Encoder writes result documents to an output stream, one JSON document
// per line.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder creates an encoder over w, normally standard output.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w: bufio.NewWriter(w),
	}
}

func (e *Encoder) encode(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return engine.NewGenericError("failed to marshal result document", err)
	}

	if _, err := e.w.Write(data); err != nil {
		return engine.NewGenericError("failed to write result document", err)
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return engine.NewGenericError("failed to write result document", err)
	}
	if err := e.w.Flush(); err != nil {
		return engine.NewGenericError("failed to flush result document", err)
	}

	return nil
}

// EncodeInstance writes a single instance document. Get and test results
// are one document; export emits one per discovered unit.
func (e *Encoder) EncodeInstance(in *engine.Instance) error {
	if in == nil {
		return engine.NewGenericError("no instance to encode", nil)
	}
	return e.encode(in)
}

// EncodeSetResult writes the change report of a converge.
func (e *Encoder) EncodeSetResult(result *engine.SetResult) error {
	if result == nil {
		return engine.NewGenericError("no change report to encode", nil)
	}
	return e.encode(result)
}

// EncodeSchemaDocument writes a resource's schema document.
func (e *Encoder) EncodeSchemaDocument(doc map[string]interface{}) error {
	if doc == nil {
		return engine.NewGenericError("no schema document to encode", nil)
	}
	return e.encode(doc)
}

// TypeDescriptor is one line of a type listing.
type TypeDescriptor struct {
	// Type is the resource type name.
	Type string `json:"type"`

	// Version is the implementation version.
	Version string `json:"version"`

	// Description explains what the resource manages.
	Description string `json:"description,omitempty"`

	// Capabilities lists the operations the resource supports.
	Capabilities []string `json:"capabilities"`

	// ExitCodes documents the failure exit codes of the type, keyed by
	// code.
	ExitCodes map[string]string `json:"exitCodes,omitempty"`
}

// DescribeType builds the listing line for a registered resource.
func DescribeType(res engine.Resource) *TypeDescriptor {
	info := res.TypeInfo()

	caps := engine.CapabilitiesOf(res)
	names := make([]string, len(caps))
	for i, op := range caps {
		names[i] = string(op)
	}

	codes := make(map[string]string)
	for _, entry := range info.ExitTableOrDefault() {
		codes[strconv.Itoa(entry.Code)] = entry.Description
	}

	return &TypeDescriptor{
		Type:         info.Name,
		Version:      info.Version,
		Description:  info.Description,
		Capabilities: names,
		ExitCodes:    codes,
	}
}

// EncodeTypeDescriptor writes one type listing line.
func (e *Encoder) EncodeTypeDescriptor(d *TypeDescriptor) error {
	if d == nil {
		return engine.NewGenericError("no type descriptor to encode", nil)
	}
	return e.encode(d)
}
