// Package requestfile reads search requests from YAML (or JSON) files.
package requestfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/flightscout/api/schemas"
)

// Load reads a single search request from path. Unknown keys are rejected so
// a misspelled field fails loudly instead of being ignored.
func Load(path string) (schemas.SearchRequest, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return schemas.SearchRequest{}, fmt.Errorf("expanding %s: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return schemas.SearchRequest{}, fmt.Errorf("reading request file: %w", err)
	}
	req, err := Decode(bytes.NewReader(data))
	if err != nil {
		return schemas.SearchRequest{}, fmt.Errorf("%s: %w", path, err)
	}
	return req, nil
}

// Decode parses one request document from r.
func Decode(r io.Reader) (schemas.SearchRequest, error) {
	var req schemas.SearchRequest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return req, fmt.Errorf("request file is empty")
		}
		return req, fmt.Errorf("decoding request: %w", err)
	}
	if cabin, ok := schemas.ParseCabinClass(string(req.Cabin)); ok {
		req.Cabin = cabin
	}
	return req, nil
}
