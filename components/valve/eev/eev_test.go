package eev

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/eev/components/board"
	"go.viam.com/eev/components/board/fake"
	"go.viam.com/eev/components/motor/fourwire"
)

type recordedStep struct {
	dir   fourwire.Direction
	style fourwire.Style
}

// recordingStepper stands in for a fourwire.Stepper and remembers every call.
type recordingStepper struct {
	mu       sync.Mutex
	steps    []recordedStep
	releases int
	err      error
}

func (rs *recordingStepper) Step(ctx context.Context, dir fourwire.Direction, style fourwire.Style) (int, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.err != nil {
		return 0, rs.err
	}
	rs.steps = append(rs.steps, recordedStep{dir, style})
	return len(rs.steps), nil
}

func (rs *recordingStepper) Release(ctx context.Context) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.releases++
	return nil
}

func (rs *recordingStepper) count(dir fourwire.Direction) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	n := 0
	for _, s := range rs.steps {
		if s.dir == dir {
			n++
		}
	}
	return n
}

func (rs *recordingStepper) total() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.steps)
}

func (rs *recordingStepper) releaseCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.releases
}

var testConf = Config{
	MaxPulses:       100,
	Overdrive:       10,
	TargetSpeedsSec: []float64{0.001, 0.002},
}

func newTestValve(t *testing.T, conf Config) (*Valve, *recordingStepper, *clock.Mock) {
	t.Helper()
	rs := &recordingStepper{}
	mock := clock.NewMock()
	v, err := New(rs, conf, mock, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return v, rs, mock
}

// runUntilIdle polls Run, advancing the clock by tick between calls.
func runUntilIdle(t *testing.T, v *Valve, mock *clock.Mock, tick time.Duration) {
	t.Helper()
	for i := 0; i < 10000 && v.IsMoving(); i++ {
		test.That(t, v.Run(context.Background()), test.ShouldBeNil)
		mock.Add(tick)
	}
	test.That(t, v.IsMoving(), test.ShouldBeFalse)
}

func TestUnknownPosition(t *testing.T) {
	ctx := context.Background()
	v, rs, _ := newTestValve(t, testConf)

	_, err := v.CurrentPosition()
	test.That(t, errors.Is(err, ErrPositionUnknown), test.ShouldBeTrue)
	_, err = v.IsClosed()
	test.That(t, errors.Is(err, ErrPositionUnknown), test.ShouldBeTrue)

	test.That(t, v.Run(ctx), test.ShouldBeNil)
	test.That(t, rs.total(), test.ShouldEqual, 0)
	test.That(t, v.IsMoving(), test.ShouldBeFalse)
	test.That(t, v.CurrentDirection(), test.ShouldEqual, Holding)

	test.That(t, errors.Is(v.MoveTo(10, 0), ErrPositionUnknown), test.ShouldBeTrue)
	test.That(t, v.Stop(ctx), test.ShouldBeNil)
	test.That(t, v.Drive(ctx), test.ShouldBeNil)
}

func TestHoming(t *testing.T) {
	ctx := context.Background()
	v, rs, mock := newTestValve(t, testConf)

	v.Initialize()
	pos, err := v.CurrentPosition()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 110)
	test.That(t, v.CurrentDirection(), test.ShouldEqual, Closing)
	closed, err := v.IsClosed()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, closed, test.ShouldBeFalse)

	runUntilIdle(t, v, mock, time.Millisecond)

	pos, err = v.CurrentPosition()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 0)
	closed, err = v.IsClosed()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, closed, test.ShouldBeTrue)
	test.That(t, v.CurrentDirection(), test.ShouldEqual, Holding)

	test.That(t, rs.total(), test.ShouldEqual, 110)
	test.That(t, rs.count(fourwire.Backward), test.ShouldEqual, 110)
	for _, s := range rs.steps {
		test.That(t, s.style, test.ShouldEqual, fourwire.Single)
	}
	test.That(t, rs.releaseCount(), test.ShouldEqual, 0)

	// idle at target
	for i := 0; i < 5; i++ {
		mock.Add(time.Second)
		test.That(t, v.Run(ctx), test.ShouldBeNil)
	}
	test.That(t, rs.total(), test.ShouldEqual, 110)
}

func TestHomingDrivesSequencer(t *testing.T) {
	ctx := context.Background()
	logger := golog.NewTestLogger(t)
	var coils [4]board.GPIOPin
	pins := make([]*fake.GPIOPin, 4)
	for i := range coils {
		pins[i] = &fake.GPIOPin{}
		coils[i] = pins[i]
	}
	s, err := fourwire.NewStepper(ctx, coils, fourwire.Sequences{}, logger)
	test.That(t, err, test.ShouldBeNil)

	mock := clock.NewMock()
	conf := testConf
	conf.StepStyle = "double"
	v, err := New(s, conf, mock, logger)
	test.That(t, err, test.ShouldBeNil)

	v.Initialize()
	runUntilIdle(t, v, mock, time.Millisecond)

	test.That(t, s.Position(), test.ShouldEqual, -110)
	for _, p := range pins {
		test.That(t, p.Writes(), test.ShouldEqual, 111)
	}
	// -110 mod 4 == 2
	test.That(t, s.Pattern(), test.ShouldEqual, uint8(0b0101))
}

func TestPacing(t *testing.T) {
	ctx := context.Background()
	v, rs, mock := newTestValve(t, testConf)
	v.Initialize()

	// armed: the first call steps immediately
	test.That(t, v.Run(ctx), test.ShouldBeNil)
	test.That(t, rs.total(), test.ShouldEqual, 1)

	mock.Add(500 * time.Microsecond)
	test.That(t, v.Run(ctx), test.ShouldBeNil)
	mock.Add(499 * time.Microsecond)
	test.That(t, v.Run(ctx), test.ShouldBeNil)
	test.That(t, rs.total(), test.ShouldEqual, 1)

	mock.Add(time.Microsecond)
	test.That(t, v.Run(ctx), test.ShouldBeNil)
	test.That(t, rs.total(), test.ShouldEqual, 2)

	for i := 0; i < 5; i++ {
		mock.Add(time.Millisecond)
		test.That(t, v.Run(ctx), test.ShouldBeNil)
		test.That(t, rs.total(), test.ShouldEqual, 3+i)
	}

	// a missed interval is not caught up
	mock.Add(5 * time.Millisecond)
	test.That(t, v.Run(ctx), test.ShouldBeNil)
	test.That(t, v.Run(ctx), test.ShouldBeNil)
	test.That(t, rs.total(), test.ShouldEqual, 8)

	pos, err := v.CurrentPosition()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 102)
}

func TestReinitialize(t *testing.T) {
	ctx := context.Background()
	v, rs, mock := newTestValve(t, testConf)
	v.Initialize()
	for i := 0; i < 20; i++ {
		test.That(t, v.Run(ctx), test.ShouldBeNil)
		mock.Add(time.Millisecond)
	}
	pos, err := v.CurrentPosition()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 90)

	v.Initialize()
	pos, err = v.CurrentPosition()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 110)

	runUntilIdle(t, v, mock, time.Millisecond)
	test.That(t, rs.total(), test.ShouldEqual, 130)
}

func TestMoveTo(t *testing.T) {
	v, rs, mock := newTestValve(t, testConf)
	v.Initialize()
	runUntilIdle(t, v, mock, time.Millisecond)

	test.That(t, v.MoveTo(50, 1), test.ShouldBeNil)
	test.That(t, v.CurrentDirection(), test.ShouldEqual, Opening)
	test.That(t, v.IsMoving(), test.ShouldBeTrue)

	// speed level 1 paces at 2ms, so 1ms ticks step every other call
	for i := 0; i < 10; i++ {
		test.That(t, v.Run(context.Background()), test.ShouldBeNil)
		mock.Add(time.Millisecond)
	}
	test.That(t, rs.count(fourwire.Forward), test.ShouldEqual, 5)

	runUntilIdle(t, v, mock, 2*time.Millisecond)
	pos, err := v.CurrentPosition()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 50)
	test.That(t, rs.count(fourwire.Forward), test.ShouldEqual, 50)

	test.That(t, v.Actuate(20, 0), test.ShouldBeNil)
	test.That(t, v.CurrentDirection(), test.ShouldEqual, Closing)
	runUntilIdle(t, v, mock, time.Millisecond)
	pos, err = v.CurrentPosition()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 20)
	test.That(t, rs.count(fourwire.Backward), test.ShouldEqual, 110+30)

	test.That(t, v.MoveTo(20, 0), test.ShouldBeNil)
	test.That(t, v.CurrentDirection(), test.ShouldEqual, Holding)
	test.That(t, v.IsMoving(), test.ShouldBeFalse)

	t.Run("invalid targets", func(t *testing.T) {
		test.That(t, errors.Is(v.MoveTo(101, 0), ErrInvalidTarget), test.ShouldBeTrue)
		test.That(t, errors.Is(v.MoveTo(-1, 0), ErrInvalidTarget), test.ShouldBeTrue)
		test.That(t, errors.Is(v.MoveTo(10, 2), ErrInvalidSpeedLevel), test.ShouldBeTrue)
		test.That(t, errors.Is(v.MoveTo(10, -1), ErrInvalidSpeedLevel), test.ShouldBeTrue)
		test.That(t, errors.Is(v.Actuate(101, 0), ErrInvalidPercentage), test.ShouldBeTrue)
		test.That(t, errors.Is(v.Actuate(-0.5, 0), ErrInvalidPercentage), test.ShouldBeTrue)
		test.That(t, errors.Is(v.Actuate(math.NaN(), 0), ErrInvalidPercentage), test.ShouldBeTrue)

		pos, err := v.CurrentPosition()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pos, test.ShouldEqual, 20)
		test.That(t, v.IsMoving(), test.ShouldBeFalse)
	})

	t.Run("rounding", func(t *testing.T) {
		conf := testConf
		conf.MaxPulses = 480
		v, _, mock := newTestValve(t, conf)
		v.Initialize()
		runUntilIdle(t, v, mock, time.Millisecond)
		test.That(t, v.Actuate(33.3, 0), test.ShouldBeNil)
		runUntilIdle(t, v, mock, time.Millisecond)
		pos, err := v.CurrentPosition()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pos, test.ShouldEqual, 160)
	})
}

func TestReleaseWhenIdle(t *testing.T) {
	conf := testConf
	conf.ReleaseWhenIdle = true
	v, rs, mock := newTestValve(t, conf)

	v.Initialize()
	runUntilIdle(t, v, mock, time.Millisecond)
	test.That(t, rs.releaseCount(), test.ShouldEqual, 1)

	test.That(t, v.Actuate(100, 1), test.ShouldBeNil)
	runUntilIdle(t, v, mock, 2*time.Millisecond)
	test.That(t, rs.releaseCount(), test.ShouldEqual, 2)
	test.That(t, rs.total(), test.ShouldEqual, 210)
}

func TestRunStepError(t *testing.T) {
	ctx := context.Background()
	v, rs, _ := newTestValve(t, testConf)
	v.Initialize()
	rs.err = errors.New("coil driver unplugged")

	err := v.Run(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "coil driver unplugged")
	pos, err := v.CurrentPosition()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 110)

	rs.err = nil
	test.That(t, v.Run(ctx), test.ShouldBeNil)
	pos, err = v.CurrentPosition()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 109)
}

func TestStop(t *testing.T) {
	ctx := context.Background()
	v, rs, mock := newTestValve(t, testConf)
	v.Initialize()
	for i := 0; i < 3; i++ {
		test.That(t, v.Run(ctx), test.ShouldBeNil)
		mock.Add(time.Millisecond)
	}
	test.That(t, v.Stop(ctx), test.ShouldBeNil)
	test.That(t, v.IsMoving(), test.ShouldBeFalse)
	test.That(t, v.CurrentDirection(), test.ShouldEqual, Holding)

	mock.Add(time.Second)
	test.That(t, v.Run(ctx), test.ShouldBeNil)
	test.That(t, rs.total(), test.ShouldEqual, 3)
	pos, err := v.CurrentPosition()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 107)
}

func TestDrive(t *testing.T) {
	rs := &recordingStepper{}
	conf := Config{
		MaxPulses:       20,
		Overdrive:       2,
		TargetSpeedsSec: []float64{0.0001},
		ReleaseWhenIdle: true,
		PollIntervalMs:  0.1,
	}
	v, err := New(rs, conf, nil, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, v.Home(context.Background()), test.ShouldBeNil)
	closed, err := v.IsClosed()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, closed, test.ShouldBeTrue)
	test.That(t, rs.count(fourwire.Backward), test.ShouldEqual, 22)
	test.That(t, rs.releaseCount(), test.ShouldEqual, 1)

	test.That(t, v.Actuate(50, 0), test.ShouldBeNil)
	test.That(t, v.Drive(context.Background()), test.ShouldBeNil)
	pos, err := v.CurrentPosition()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 10)
}

func TestDriveCancel(t *testing.T) {
	rs := &recordingStepper{}
	conf := Config{MaxPulses: 100, TargetSpeedsSec: []float64{10}}
	v, err := New(rs, conf, nil, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	v.Initialize()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- v.Drive(ctx)
	}()

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, rs.total(), test.ShouldEqual, 1)
	})
	cancel()
	err = <-errCh
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	test.That(t, v.IsMoving(), test.ShouldBeFalse)
	pos, err := v.CurrentPosition()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos, test.ShouldEqual, 99)

	t.Run("stop from elsewhere", func(t *testing.T) {
		v.Initialize()
		errCh := make(chan error, 1)
		go func() {
			errCh <- v.Drive(context.Background())
		}()
		testutils.WaitForAssertion(t, func(tb testing.TB) {
			tb.Helper()
			test.That(tb, rs.total(), test.ShouldEqual, 2)
		})
		test.That(t, v.Stop(context.Background()), test.ShouldBeNil)
		err := <-errCh
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
		test.That(t, v.IsMoving(), test.ShouldBeFalse)
	})
}

func TestDirectionString(t *testing.T) {
	test.That(t, Closing.String(), test.ShouldEqual, "closing")
	test.That(t, Holding.String(), test.ShouldEqual, "holding")
	test.That(t, Opening.String(), test.ShouldEqual, "opening")
	test.That(t, Direction(3).String(), test.ShouldEqual, "unknown")
}

func TestHomingLogs(t *testing.T) {
	logger, logs := golog.NewObservedTestLogger(t)
	v, err := New(&recordingStepper{}, testConf, clock.NewMock(), logger)
	test.That(t, err, test.ShouldBeNil)

	v.Initialize()
	entries := logs.FilterMessage("homing valve").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].ContextMap()["steps"], test.ShouldEqual, int64(110))
}
