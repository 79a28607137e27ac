// Package oracle talks to the text completion service that drafts statements.
package oracle

import (
	"context"
	"errors"
	"net"
	"strings"
)

var (
	ErrTimeout     = errors.New("oracle: completion timed out")
	ErrUnreachable = errors.New("oracle: completion service unreachable")
	ErrEmpty       = errors.New("oracle: completion was empty")
)

type Prompt struct {
	System string
	User   string
}

// Oracle returns free-form completion text for a prompt. Callers must treat
// the text as untrusted.
type Oracle interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// Func adapts a plain function to Oracle.
type Func func(ctx context.Context, prompt Prompt) (string, error)

func (f Func) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

// classifyTransportErr folds transport failures into the oracle error kinds.
// A cancelled parent context is returned unchanged.
func classifyTransportErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(ErrTimeout, err)
	}
	return errors.Join(ErrUnreachable, err)
}

func nonEmpty(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return text, nil
}
