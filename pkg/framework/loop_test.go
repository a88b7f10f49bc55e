package framework

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunIterationOrder(t *testing.T) {
	var order []string
	var seen []Message
	var left []int
	l := NewLoop()
	l.timeFn = func() time.Time { return time.Unix(100, 0) }
	l.AddController(PrLvOutput, ControlFunc(func(cc ControlContext) error {
		order = append(order, "output")
		left = append(left, cc.Messages().Len())
		return nil
	}))
	l.AddController(PrLvInput, ControlFunc(func(cc ControlContext) error {
		order = append(order, "input")
		require.Equal(t, time.Unix(100, 0), cc.Time())
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			msg := mc.CurrentMessage()
			seen = append(seen, msg)
			if msg != "keep" {
				mc.MessageTaken()
			}
		}))
		return nil
	}))
	l.PostMessage("a")
	l.PostMessage("keep")
	l.PostMessage("b")
	l.RunIteration(context.Background())
	require.Equal(t, []string{"input", "output"}, order)
	require.Equal(t, []Message{"a", "keep", "b"}, seen)

	seen = nil
	order = nil
	l.PostMessage("c")
	l.RunIteration(context.Background())
	require.Equal(t, []Message{"c"}, seen)
	require.Equal(t, []string{"input", "output"}, order)
	require.Equal(t, []int{1, 0}, left)
}

func TestControllerErrorDoesNotStopIteration(t *testing.T) {
	var ran bool
	l := NewLoop()
	l.AddController(PrLvTop, ControlFunc(func(ControlContext) error { return errors.New("boom") }))
	l.AddController(PrLvIdle, ControlFunc(func(ControlContext) error {
		ran = true
		return nil
	}))
	l.RunIteration(context.Background())
	require.True(t, ran)
}

func TestLoopWakeUp(t *testing.T) {
	l := NewLoop()
	l.Interval = time.Hour
	gotCh := make(chan Message, 1)
	l.AddController(PrLvControl, ControlFunc(func(cc ControlContext) error {
		cc.Messages().ProcessMessages(ProcessMessageFunc(func(mc MessageProcessingContext) {
			gotCh <- mc.CurrentMessage()
			mc.MessageTaken()
		}))
		return nil
	}))
	l.AddRunnable(RunFunc(func(ctx context.Context) error {
		ctl := LoopCtlFrom(ctx)
		ctl.PostMessage(42)
		ctl.TriggerNext()
		<-ctx.Done()
		return ctx.Err()
	}))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Run(ctx) }()
	select {
	case msg := <-gotCh:
		require.Equal(t, 42, msg)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	cancel()
	require.Equal(t, context.Canceled, <-errCh)
}

func TestLoopStopsOnRunnerFailure(t *testing.T) {
	fail := errors.New("stream closed")
	l := NewLoop()
	l.AddRunnable(NamedRun("stream", RunFunc(func(context.Context) error { return fail })))
	err := l.Run(context.Background())
	require.Equal(t, fail, err)
}

func TestRunnerWait(t *testing.T) {
	fail := errors.New("fail")
	r := NewRunner().Go(
		RunFunc(func(context.Context) error { return nil }),
		RunFunc(func(context.Context) error { return fail }),
		RunFunc(func(context.Context) error { return context.Canceled }),
	)
	err := r.Wait()
	require.IsType(t, &AggregatedError{}, err)
	require.Equal(t, []error{fail}, err.(*AggregatedError).Errors)
	require.Equal(t, "fail", err.Error())
}

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil).Aggregate())
	errs.Add(errors.New("a"), nil, errors.New("b"))
	require.Equal(t, "Multiple errors:\na\nb", errs.Error())
}
