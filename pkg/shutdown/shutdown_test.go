package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/neurospin/gofreesurfer/pkg/logging"
)

func TestShutdownRunsInReverseOrder(t *testing.T) {
	m := New(time.Second, logging.NewLogger("test", logging.ERROR, false))

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		m.Register(func(context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	m.Shutdown()
	assert.Equal(t, []int{2, 1, 0}, order)
}

func TestShutdownContinuesAfterError(t *testing.T) {
	m := New(time.Second, logging.NewLogger("test", logging.ERROR, false))

	ran := false
	m.Register(func(context.Context) error {
		ran = true
		return nil
	})
	m.Register(func(context.Context) error {
		return errors.New("boom")
	})

	m.Shutdown()
	assert.True(t, ran)
}

type fakeCloser struct{ closed bool }

func (f *fakeCloser) Close() error {
	f.closed = true
	return nil
}

func TestCloseResource(t *testing.T) {
	c := &fakeCloser{}
	assert.NoError(t, CloseResource(c)(context.Background()))
	assert.True(t, c.closed)
}
