// Package protocol implements the JSON-over-stdio surface of a converge
// binary.
//
// Desired-state payloads arrive inline, from a file, or on standard input.
// Result documents leave on standard output, one JSON document per line.
// Standard error carries diagnostics only, so hosts can pipe stdout
// straight into a JSON parser.
package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/openconverge/converge/pkg/engine"
)

// MaxDocumentSize caps how many bytes of desired state a single invocation
// accepts, from any source.
const MaxDocumentSize = 10 * 1024 * 1024 // 10 MB

// ResolveInput picks the desired-state payload for an invocation. Exactly
// one source wins: the inline payload, the file path, or the reader
// (normally standard input). Files with a .yaml or .yml extension are
// normalized to JSON before the engine sees them.
func ResolveInput(inline, file string, stdin io.Reader) ([]byte, error) {
	if inline != "" && file != "" {
		return nil, engine.NewInvalidArgumentError("inline payload and input file are mutually exclusive", nil)
	}

	if inline != "" {
		if len(inline) > MaxDocumentSize {
			return nil, oversizeError()
		}
		return []byte(inline), nil
	}

	if file != "" {
		return readInputFile(file)
	}

	return ReadDocument(stdin)
}

// ReadDocument reads a size-capped payload from r.
func ReadDocument(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, engine.NewGenericError("failed to read input", err)
	}
	if len(data) > MaxDocumentSize {
		return nil, oversizeError()
	}
	return data, nil
}

func readInputFile(file string) ([]byte, error) {
	info, err := os.Stat(file)
	if err == nil && info.Size() > MaxDocumentSize {
		return nil, oversizeError()
	}

	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, engine.NewInvalidArgumentError(fmt.Sprintf("input file %s does not exist", file), err)
		}
		if os.IsPermission(err) {
			return nil, engine.NewPermissionDeniedError(fmt.Sprintf("cannot read input file %s", file), err)
		}
		return nil, engine.NewGenericError(fmt.Sprintf("failed to read input file %s", file), err)
	}
	if len(data) > MaxDocumentSize {
		return nil, oversizeError()
	}

	switch filepath.Ext(file) {
	case ".yaml", ".yml":
		return yamlToJSON(data)
	default:
		return data, nil
	}
}

// yamlToJSON re-encodes a YAML document as JSON so the rest of the engine
// only ever parses one syntax.
func yamlToJSON(data []byte) ([]byte, error) {
	var value interface{}
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, engine.NewMalformedInputError("invalid yaml input", err)
	}

	out, err := json.Marshal(value)
	if err != nil {
		return nil, engine.NewMalformedInputError("yaml input does not map to json", err)
	}
	return out, nil
}

func oversizeError() error {
	return engine.NewMalformedInputError(
		fmt.Sprintf("input document exceeds %d bytes", MaxDocumentSize), nil)
}
