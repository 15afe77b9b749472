package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errNoContent = errors.New("message batch carries no content")

// PayloadCodec decodes (and encodes) the framework-internal binary message
// batches stored under a record's step writes. One implementation exists per
// known encoding version; a future payload-format change adds a new codec
// rather than touching the digger.
type PayloadCodec interface {
	DecodeUser(data []byte) (string, error)
	DecodeAgent(data []byte) (string, error)
	EncodeUser(text string) ([]byte, error)
	EncodeAgent(text string) ([]byte, error)
}

// JSONCodec handles the v1 payload encoding: the binary blob is a UTF-8 JSON
// array. A user batch holds the content at the first element's top level; an
// agent batch nests it one level deeper inside a kwargs wrapper.
type JSONCodec struct{}

func (JSONCodec) DecodeUser(data []byte) (string, error) {
	var batch []struct {
		Content *string `json:"content"`
	}
	if err := json.Unmarshal(data, &batch); err != nil {
		return "", fmt.Errorf("decode user batch: %w", err)
	}
	if len(batch) == 0 || batch[0].Content == nil {
		return "", errNoContent
	}
	return *batch[0].Content, nil
}

func (JSONCodec) DecodeAgent(data []byte) (string, error) {
	var batch []struct {
		Kwargs struct {
			Content *string `json:"content"`
		} `json:"kwargs"`
	}
	if err := json.Unmarshal(data, &batch); err != nil {
		return "", fmt.Errorf("decode agent batch: %w", err)
	}
	if len(batch) == 0 || batch[0].Kwargs.Content == nil {
		return "", errNoContent
	}
	return *batch[0].Kwargs.Content, nil
}

func (JSONCodec) EncodeUser(text string) ([]byte, error) {
	batch := []map[string]any{{
		"type":    "human",
		"content": text,
	}}
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode user batch: %w", err)
	}
	return data, nil
}

func (JSONCodec) EncodeAgent(text string) ([]byte, error) {
	batch := []map[string]any{{
		"type": "constructor",
		"kwargs": map[string]any{
			"type":    "ai",
			"content": text,
		},
	}}
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("encode agent batch: %w", err)
	}
	return data, nil
}
