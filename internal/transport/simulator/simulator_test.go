package simulator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/transport"
)

func open(t *testing.T, kb *Keyboard) transport.Handle {
	t.Helper()
	h, _, err := transport.Attach(context.Background(), kb, kb.Info().StableID())
	require.NoError(t, err)
	return h
}

func TestLayoutAndBindings(t *testing.T) {
	kb := New(Options{KeyCount: 20})
	h := open(t, kb)
	ctx := context.Background()

	layout, err := h.BaseLayout(ctx)
	require.NoError(t, err)
	// Two full rows plus the alias row.
	assert.Len(t, layout, 3)
	assert.Equal(t, FirstKeyValue, layout[2][0].KeyValue)

	require.NoError(t, h.SetKey(ctx, []transport.KeyBinding{{Key: 5, Layer: 1, Value: 41}}))
	infos, err := h.LayoutKeyInfo(ctx, []transport.LayerKey{{Key: 5, Layer: 1}, {Key: 5, Layer: 0}})
	require.NoError(t, err)
	assert.Equal(t, 41, infos[0].KeyValue)
	assert.Equal(t, 0, infos[1].KeyValue)
}

func TestUnplugInvalidatesHandle(t *testing.T) {
	kb := New(Options{KeyCount: 4})
	h := open(t, kb)

	kb.Unplug()
	_, err := h.Axis(context.Background(), FirstKeyValue)
	assert.True(t, errs.IsDisconnected(err))

	ev := <-kb.Events()
	assert.Equal(t, transport.EventDisconnect, ev.Kind)

	devices, err := kb.Enumerate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)

	kb.Plug()
	ev = <-kb.Events()
	assert.Equal(t, transport.EventConnect, ev.Kind)

	h2 := open(t, kb)
	_, err = h2.Axis(context.Background(), FirstKeyValue)
	assert.NoError(t, err)
}

func TestRiskyReconnect(t *testing.T) {
	kb := New(Options{KeyCount: 4, Risky: RiskyReconnect, ReconnectDelay: 10 * time.Millisecond})
	h := open(t, kb)

	require.NoError(t, h.SetPollingRate(context.Background(), 0))
	assert.Equal(t, 0, kb.PollingRateValue())

	assert.Equal(t, transport.EventDisconnect, (<-kb.Events()).Kind)
	select {
	case ev := <-kb.Events():
		assert.Equal(t, transport.EventConnect, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("no reconnect event")
	}
}

func TestRiskyRebindStalesHandle(t *testing.T) {
	kb := New(Options{KeyCount: 4, Risky: RiskyRebind})
	h := open(t, kb)
	ctx := context.Background()

	require.NoError(t, h.SetPollingRate(ctx, 2))
	_, err := h.GlobalTouchTravel(ctx)
	assert.True(t, errs.IsDisconnected(err))
	assert.Empty(t, kb.Events())

	_, err = open(t, kb).GlobalTouchTravel(ctx)
	assert.NoError(t, err)
}

func TestFailHookAndProbe(t *testing.T) {
	kb := New(Options{KeyCount: 4, ProbeFailures: 2})
	h := open(t, kb)
	ctx := context.Background()

	_, err := h.GlobalTouchTravel(ctx)
	assert.Error(t, err)
	_, err = h.GlobalTouchTravel(ctx)
	assert.Error(t, err)
	_, err = h.GlobalTouchTravel(ctx)
	assert.NoError(t, err)

	kb.SetFail(func(op string, key int) error {
		if op == "get_rt_travel" {
			return errs.NewTransportError(op, nil)
		}
		return nil
	})
	_, err = h.RtTravel(ctx, FirstKeyValue)
	assert.Equal(t, errs.KindTransport, errs.KindOf(err))
	assert.Equal(t, 1, kb.Calls("get_rt_travel"))
}

func TestFactoryResetRestoresDefaults(t *testing.T) {
	kb := New(Options{KeyCount: 4})
	h := open(t, kb)
	ctx := context.Background()

	require.NoError(t, h.SetAxis(ctx, FirstKeyValue, 3))
	require.NoError(t, h.FactoryReset(ctx))

	axis, err := h.Axis(ctx, FirstKeyValue)
	require.NoError(t, err)
	assert.Equal(t, 0, axis)
}
