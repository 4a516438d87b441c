package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nholik/package-sync/internal/runner"
	"github.com/rs/zerolog"
)

type countingNotifier struct {
	calls int
	err   error
}

func (n *countingNotifier) Notify(context.Context, runner.Summary) error {
	n.calls++
	return n.err
}

func TestDryRunNotifierSuppressesDelivery(t *testing.T) {
	var buf bytes.Buffer
	inner := &countingNotifier{}
	dryRun := NewDryRunNotifier(zerolog.New(&buf), inner)

	if err := dryRun.Notify(context.Background(), makeSummary()); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if inner.calls != 0 {
		t.Fatalf("expected no notifier calls, got %d", inner.calls)
	}
	if !strings.Contains(buf.String(), "[DRY-RUN] Would notify") {
		t.Fatalf("expected dry-run log, got %s", buf.String())
	}
}

func TestMultiNotifierFansOutAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	first := &countingNotifier{err: boom}
	second := &countingNotifier{}

	multi := NewMultiNotifier(first, nil, second)
	if multi.Len() != 2 {
		t.Fatalf("expected nil notifiers to be dropped, got %d", multi.Len())
	}

	err := multi.Notify(context.Background(), makeSummary())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("expected every notifier to be called, got %d and %d", first.calls, second.calls)
	}
}
