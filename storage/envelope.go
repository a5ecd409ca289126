package storage

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/coachpo/statekit/errs"
)

// Envelope is the versioned wire unit written to and read from raw storage:
// a single text blob per key containing the projected state and the version
// it was written under. A blob lacking a version field decodes as version 0.
type Envelope struct {
	State   json.RawMessage `json:"state"`
	Version int             `json:"version"`
}

// DecodeState unmarshals the envelope payload into a generic value map.
func (e *Envelope) DecodeState() (map[string]any, error) {
	if len(e.State) == 0 {
		return nil, nil
	}
	var value map[string]any
	if err := json.Unmarshal(e.State, &value); err != nil {
		return nil, errs.New("storage/envelope", errs.CodeSerialization,
			errs.WithMessage("decode envelope state"), errs.WithCause(err))
	}
	return value, nil
}

// Codec adapts a raw backend to structured envelopes, serializing at the
// envelope boundary. Deserialization failures surface as load errors; they
// never escape as panics.
type Codec struct {
	raw Raw
}

// NewCodec wraps the raw backend with envelope serialization.
func NewCodec(raw Raw) *Codec {
	return &Codec{raw: raw}
}

// Raw exposes the underlying backend, e.g. for key deletion.
func (c *Codec) Raw() Raw { return c.raw }

// Load reads and parses the envelope stored under key. A missing key yields
// (nil, nil): never persisted is not a failure.
func (c *Codec) Load(ctx context.Context, key string) (*Envelope, error) {
	text, found, err := c.raw.Get(ctx, key)
	if err != nil {
		return nil, errs.New("storage/envelope", errs.CodeStorage,
			errs.WithMessage("read envelope"), errs.WithKey(key), errs.WithCause(err))
	}
	if !found {
		return nil, nil
	}
	var env Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return nil, errs.New("storage/envelope", errs.CodeSerialization,
			errs.WithMessage("parse envelope"), errs.WithKey(key), errs.WithCause(err))
	}
	return &env, nil
}

// Store serializes the projected state under version and writes it to key.
func (c *Codec) Store(ctx context.Context, key string, state any, version int) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return errs.New("storage/envelope", errs.CodeSerialization,
			errs.WithMessage("encode envelope state"), errs.WithKey(key), errs.WithCause(err))
	}
	env := Envelope{State: payload, Version: version}
	text, err := json.Marshal(env)
	if err != nil {
		return errs.New("storage/envelope", errs.CodeSerialization,
			errs.WithMessage("encode envelope"), errs.WithKey(key), errs.WithCause(err))
	}
	if err := c.raw.Set(ctx, key, string(text)); err != nil {
		return errs.New("storage/envelope", errs.CodeStorage,
			errs.WithMessage("write envelope"), errs.WithKey(key), errs.WithCause(err))
	}
	return nil
}

// Delete removes the envelope stored under key.
func (c *Codec) Delete(ctx context.Context, key string) error {
	if err := c.raw.Delete(ctx, key); err != nil {
		return errs.New("storage/envelope", errs.CodeStorage,
			errs.WithMessage("delete envelope"), errs.WithKey(key), errs.WithCause(err))
	}
	return nil
}
