// Package dialog defines the contract with the remote dialogue runtime that
// holds per-user conversation state.
package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// RawItem is one entry of a runtime response batch. Type is the discriminant
// (text, visual, choice, ...); Payload keeps its upstream shape untouched.
type RawItem struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client forwards one utterance for one user and returns the response batch.
type Client interface {
	Interact(ctx context.Context, userID string, utterance string) ([]RawItem, error)
}

// ErrUpstreamUnavailable matches every failure of either runtime call.
var ErrUpstreamUnavailable = errors.New("dialogue runtime unavailable")

// Runtime call steps, in the order they are issued.
const (
	StepUpdateVariables = "update_variables"
	StepInteract        = "interact"
)

// UpstreamError describes which runtime call failed and how.
type UpstreamError struct {
	Step       string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s failed with status %d: %v", ErrUpstreamUnavailable, e.Step, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s failed: %v", ErrUpstreamUnavailable, e.Step, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}
