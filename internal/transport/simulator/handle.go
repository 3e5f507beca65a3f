package simulator

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/transport"
)

type handle struct {
	kb         *Keyboard
	generation uint64
	closed     atomic.Bool
}

func (h *handle) Info() transport.DeviceInfo { return h.kb.info }

func (h *handle) Close() error {
	h.closed.Store(true)
	return nil
}

// do runs fn under the keyboard lock after the simulated latency, failing
// with a disconnected error when the handle's link generation is gone.
func (h *handle) do(ctx context.Context, op string, key int, fn func(kb *Keyboard) error) error {
	kb := h.kb

	n := kb.inFlight.Add(1)
	defer kb.inFlight.Add(-1)
	for {
		p := kb.maxInFlight.Load()
		if n <= p || kb.maxInFlight.CompareAndSwap(p, n) {
			break
		}
	}

	if kb.opts.Latency > 0 {
		t := time.NewTimer(kb.opts.Latency)
		select {
		case <-ctx.Done():
			t.Stop()
			return errs.Wrap(errs.KindTimeout, op, "request cancelled", ctx.Err())
		case <-t.C:
		}
	}

	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.calls[op]++

	if h.closed.Load() || h.generation != kb.generation || !kb.attached {
		return errs.NewDisconnectedError(op)
	}
	if kb.opts.Fail != nil {
		if err := kb.opts.Fail(op, key); err != nil {
			return err
		}
	}
	return fn(kb)
}

func (kb *Keyboard) key(op string, key int) (*keyState, error) {
	ks, ok := kb.byValue[key]
	if !ok {
		return nil, errs.NewValidationError(op, fmt.Sprintf("unknown key %d", key))
	}
	return ks, nil
}

func (h *handle) BaseInfo(ctx context.Context) (transport.BaseInfo, error) {
	var out transport.BaseInfo
	err := h.do(ctx, "get_base_info", 0, func(kb *Keyboard) error {
		out = transport.BaseInfo{
			KeyboardName:    kb.info.ProductName,
			VendorID:        kb.info.VendorID,
			ProductID:       kb.info.ProductID,
			Usage:           kb.info.Usage,
			UsagePage:       kb.info.UsagePage,
			FirmwareVersion: "1.0.7-sim",
		}
		return nil
	})
	return out, err
}

// BaseLayout returns the keys in rows, followed by an alias row repeating
// the first few keys the way fn-layer blocks do on real boards.
func (h *handle) BaseLayout(ctx context.Context) ([][]transport.KeyInfo, error) {
	var out [][]transport.KeyInfo
	err := h.do(ctx, "get_base_layout", 0, func(kb *Keyboard) error {
		var row []transport.KeyInfo
		for i, ks := range kb.keys {
			row = append(row, ks.info)
			if (i+1)%rowWidth == 0 {
				out = append(out, row)
				row = nil
			}
		}
		if len(row) > 0 {
			out = append(out, row)
		}
		alias := make([]transport.KeyInfo, 0, 4)
		for i := 0; i < 4 && i < len(kb.keys); i++ {
			alias = append(alias, kb.keys[i].info)
		}
		out = append(out, alias)
		return nil
	})
	return out, err
}

func (h *handle) LayoutKeyInfo(ctx context.Context, keys []transport.LayerKey) ([]transport.KeyInfo, error) {
	var out []transport.KeyInfo
	first := 0
	if len(keys) > 0 {
		first = keys[0].Key
	}
	err := h.do(ctx, "get_layout_key_info", first, func(kb *Keyboard) error {
		for _, lk := range keys {
			ks, err := kb.key("get_layout_key_info", lk.Key)
			if err != nil {
				return err
			}
			if lk.Layer < 0 || lk.Layer >= len(ks.bindings) {
				return errs.NewValidationError("get_layout_key_info", fmt.Sprintf("layer %d out of range", lk.Layer))
			}
			out = append(out, transport.KeyInfo{KeyValue: ks.bindings[lk.Layer], Row: ks.info.Row, Col: ks.info.Col})
		}
		return nil
	})
	return out, err
}

func (h *handle) SetKey(ctx context.Context, bindings []transport.KeyBinding) error {
	first := 0
	if len(bindings) > 0 {
		first = bindings[0].Key
	}
	return h.do(ctx, "set_key", first, func(kb *Keyboard) error {
		for _, b := range bindings {
			ks, err := kb.key("set_key", b.Key)
			if err != nil {
				return err
			}
			if b.Layer < 0 || b.Layer >= len(ks.bindings) {
				return errs.NewValidationError("set_key", fmt.Sprintf("layer %d out of range", b.Layer))
			}
			ks.bindings[b.Layer] = b.Value
		}
		return nil
	})
}

func (h *handle) GlobalTouchTravel(ctx context.Context) (float64, error) {
	var out float64
	err := h.do(ctx, "get_global_touch_travel", 0, func(kb *Keyboard) error {
		if kb.probeFails > 0 {
			kb.probeFails--
			return errs.NewTimeoutError("get_global_touch_travel", "keyboard not ready")
		}
		out = kb.globalTravel
		return nil
	})
	return out, err
}

func (h *handle) SetGlobalTouchTravel(ctx context.Context, travel float64) error {
	return h.do(ctx, "set_global_touch_travel", 0, func(kb *Keyboard) error {
		kb.globalTravel = travel
		return nil
	})
}

func (h *handle) PerformanceMode(ctx context.Context, key int) (transport.PerformanceMode, error) {
	var out transport.PerformanceMode
	err := h.do(ctx, "get_performance_mode", key, func(kb *Keyboard) error {
		ks, err := kb.key("get_performance_mode", key)
		if err != nil {
			return err
		}
		out = ks.mode
		return nil
	})
	return out, err
}

func (h *handle) SetPerformanceMode(ctx context.Context, key int, mode transport.PerformanceMode) error {
	return h.do(ctx, "set_performance_mode", key, func(kb *Keyboard) error {
		ks, err := kb.key("set_performance_mode", key)
		if err != nil {
			return err
		}
		ks.mode = mode
		return nil
	})
}

func (h *handle) SingleTravel(ctx context.Context, key int) (float64, error) {
	var out float64
	err := h.do(ctx, "get_single_travel", key, func(kb *Keyboard) error {
		ks, err := kb.key("get_single_travel", key)
		if err != nil {
			return err
		}
		out = ks.single
		return nil
	})
	return out, err
}

func (h *handle) SetSingleTravel(ctx context.Context, key int, travel float64) error {
	return h.do(ctx, "set_single_travel", key, func(kb *Keyboard) error {
		ks, err := kb.key("set_single_travel", key)
		if err != nil {
			return err
		}
		ks.single = travel
		return nil
	})
}

func (h *handle) RtTravel(ctx context.Context, key int) (transport.TravelPair, error) {
	var out transport.TravelPair
	err := h.do(ctx, "get_rt_travel", key, func(kb *Keyboard) error {
		ks, err := kb.key("get_rt_travel", key)
		if err != nil {
			return err
		}
		out = ks.rt
		return nil
	})
	return out, err
}

func (h *handle) SetRtTravel(ctx context.Context, key int, travel transport.TravelPair) error {
	return h.do(ctx, "set_rt_travel", key, func(kb *Keyboard) error {
		ks, err := kb.key("set_rt_travel", key)
		if err != nil {
			return err
		}
		ks.rt = travel
		return nil
	})
}

func (h *handle) DeadZones(ctx context.Context, key int) (transport.TravelPair, error) {
	var out transport.TravelPair
	err := h.do(ctx, "get_dead_zones", key, func(kb *Keyboard) error {
		ks, err := kb.key("get_dead_zones", key)
		if err != nil {
			return err
		}
		out = ks.dead
		return nil
	})
	return out, err
}

func (h *handle) SetDeadZones(ctx context.Context, key int, zones transport.TravelPair) error {
	return h.do(ctx, "set_dead_zones", key, func(kb *Keyboard) error {
		ks, err := kb.key("set_dead_zones", key)
		if err != nil {
			return err
		}
		ks.dead = zones
		return nil
	})
}

func (h *handle) Axis(ctx context.Context, key int) (int, error) {
	var out int
	err := h.do(ctx, "get_axis", key, func(kb *Keyboard) error {
		ks, err := kb.key("get_axis", key)
		if err != nil {
			return err
		}
		out = ks.axis
		return nil
	})
	return out, err
}

func (h *handle) SetAxis(ctx context.Context, key int, axis int) error {
	return h.do(ctx, "set_axis", key, func(kb *Keyboard) error {
		ks, err := kb.key("set_axis", key)
		if err != nil {
			return err
		}
		ks.axis = axis
		return nil
	})
}

func (h *handle) Advanced(ctx context.Context, key int, kind transport.AdvancedKind) (transport.AdvancedConfig, error) {
	var out transport.AdvancedConfig
	op := "get_" + kind.String()
	err := h.do(ctx, op, key, func(kb *Keyboard) error {
		ks, err := kb.key(op, key)
		if err != nil {
			return err
		}
		cfg := ks.advanced[kind]
		out = transport.AdvancedConfig{
			Enabled: cfg.Enabled,
			Keys:    append([]int(nil), cfg.Keys...),
			Travels: append([]float64(nil), cfg.Travels...),
			Mode:    cfg.Mode,
			Time:    cfg.Time,
		}
		return nil
	})
	return out, err
}

func (h *handle) SetAdvanced(ctx context.Context, key int, kind transport.AdvancedKind, cfg transport.AdvancedConfig) error {
	op := "set_" + kind.String()
	return h.do(ctx, op, key, func(kb *Keyboard) error {
		ks, err := kb.key(op, key)
		if err != nil {
			return err
		}
		ks.advanced[kind] = cfg
		return nil
	})
}

func (h *handle) CustomLight(ctx context.Context, key int) (transport.RGB, error) {
	var out transport.RGB
	err := h.do(ctx, "get_custom_light", key, func(kb *Keyboard) error {
		ks, err := kb.key("get_custom_light", key)
		if err != nil {
			return err
		}
		out = ks.light
		return nil
	})
	return out, err
}

func (h *handle) SetCustomLight(ctx context.Context, key int, color transport.RGB) error {
	return h.do(ctx, "set_custom_light", key, func(kb *Keyboard) error {
		ks, err := kb.key("set_custom_light", key)
		if err != nil {
			return err
		}
		ks.light = color
		return nil
	})
}

func (h *handle) Lighting(ctx context.Context, zone transport.LightZone) (transport.LightConfig, error) {
	var out transport.LightConfig
	err := h.do(ctx, "get_lighting_"+zone.String(), 0, func(kb *Keyboard) error {
		out = kb.lighting[zone]
		out.StaticColors = append([]string(nil), out.StaticColors...)
		return nil
	})
	return out, err
}

func (h *handle) SetLighting(ctx context.Context, zone transport.LightZone, cfg transport.LightConfig) error {
	return h.do(ctx, "set_lighting_"+zone.String(), 0, func(kb *Keyboard) error {
		kb.lighting[zone] = cfg
		return nil
	})
}

func (h *handle) Macro(ctx context.Context, key int) ([]transport.MacroStep, error) {
	var out []transport.MacroStep
	err := h.do(ctx, "get_macro", key, func(kb *Keyboard) error {
		ks, err := kb.key("get_macro", key)
		if err != nil {
			return err
		}
		out = append([]transport.MacroStep(nil), ks.macro...)
		return nil
	})
	return out, err
}

func (h *handle) SetMacro(ctx context.Context, key int, steps []transport.MacroStep) error {
	return h.do(ctx, "set_macro", key, func(kb *Keyboard) error {
		ks, err := kb.key("set_macro", key)
		if err != nil {
			return err
		}
		ks.macro = append([]transport.MacroStep(nil), steps...)
		return nil
	})
}

func (h *handle) PollingRate(ctx context.Context) (int, error) {
	var out int
	err := h.do(ctx, "get_polling_rate", 0, func(kb *Keyboard) error {
		out = kb.pollingRate
		return nil
	})
	return out, err
}

func (h *handle) SetPollingRate(ctx context.Context, rate int) error {
	return h.do(ctx, "set_polling_rate", 0, func(kb *Keyboard) error {
		kb.pollingRate = rate
		kb.riskyLocked()
		return nil
	})
}

func (h *handle) TopDeadBandSwitch(ctx context.Context) (int, error) {
	var out int
	err := h.do(ctx, "get_top_dead_band", 0, func(kb *Keyboard) error {
		out = kb.topDeadBand
		return nil
	})
	return out, err
}

func (h *handle) SetTopDeadBandSwitch(ctx context.Context, value int) error {
	return h.do(ctx, "set_top_dead_band", 0, func(kb *Keyboard) error {
		kb.topDeadBand = value
		return nil
	})
}

func (h *handle) FactoryReset(ctx context.Context) error {
	return h.do(ctx, "factory_reset", 0, func(kb *Keyboard) error {
		kb.resetLocked()
		kb.riskyLocked()
		return nil
	})
}
