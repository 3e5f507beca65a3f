package hidraw

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/logging"
	"github.com/muurk/keytune/internal/protocol"
	"github.com/muurk/keytune/internal/transport"
)

// reportDevice is the subset of *hid.Device the handle uses.
type reportDevice interface {
	SendFeatureReport(b []byte) (int, error)
	GetFeatureReport(b []byte) (int, error)
	Close() error
}

type handle struct {
	dev     reportDevice
	info    transport.DeviceInfo
	timeout time.Duration

	// mu serializes exchanges; the keyboard answers one request at a time.
	mu     sync.Mutex
	closed bool
}

func newHandle(dev reportDevice, info transport.DeviceInfo, timeout time.Duration) *handle {
	return &handle{dev: dev, info: info, timeout: timeout}
}

func (h *handle) Info() transport.DeviceInfo { return h.info }

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.dev.Close()
}

type exchangeResult struct {
	frame *protocol.Frame
	err   error
}

// request performs one exchange and returns the response data. The blocking
// hidapi calls run in a goroutine so the caller can give up on ctx or the
// request timeout.
func (h *handle) request(ctx context.Context, op string, cmd byte, key int, arg byte, data []byte) ([]byte, error) {
	start := time.Now()
	seq := protocol.NextSequence()
	report, err := protocol.BuildRequest(seq, cmd, uint16(key), arg, data)
	if err != nil {
		return nil, errs.NewValidationError(op, err.Error())
	}

	done := make(chan exchangeResult, 1)
	go func() {
		done <- h.exchange(op, seq, report)
	}()

	timeout := h.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var res exchangeResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = errs.Wrap(errs.KindTimeout, op, "request cancelled", ctx.Err())
	case <-timer.C:
		res.err = errs.NewTimeoutError(op, fmt.Sprintf("no response within %s", timeout))
	}

	logging.LogTransportCall(op, key, time.Since(start), res.err)
	if res.err != nil {
		return nil, res.err
	}
	return res.frame.Data, nil
}

func (h *handle) exchange(op string, seq byte, report []byte) exchangeResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return exchangeResult{err: errs.NewDisconnectedError(op)}
	}

	out := make([]byte, protocol.ReportSize+1)
	out[0] = protocol.ReportID
	copy(out[1:], report)
	logging.LogRawReport("out", out)
	if _, err := h.dev.SendFeatureReport(out); err != nil {
		return exchangeResult{err: errs.NewTransportError(op, err)}
	}

	in := make([]byte, protocol.ReportSize+1)
	in[0] = protocol.ReportID
	n, err := h.dev.GetFeatureReport(in)
	if err != nil {
		return exchangeResult{err: errs.NewTransportError(op, err)}
	}
	logging.LogRawReport("in", in[:n])

	frame, err := protocol.ParseFrame(in[:n])
	if err != nil {
		return exchangeResult{err: errs.NewParseError(op, "malformed response", err)}
	}
	if frame.Sequence != seq || frame.Command != report[1] {
		return exchangeResult{err: errs.Wrap(errs.KindTransport, op,
			fmt.Sprintf("response mismatch: got cmd 0x%02x seq %d", frame.Command, frame.Sequence), nil)}
	}
	switch frame.Status {
	case protocol.StatusOK:
		return exchangeResult{frame: frame}
	case protocol.StatusUnknownCmd:
		return exchangeResult{err: errs.New(errs.KindUnsupported, op, "command not supported by firmware")}
	case protocol.StatusBadParam:
		return exchangeResult{err: errs.NewValidationError(op, "keyboard rejected the parameter")}
	case protocol.StatusBusy:
		return exchangeResult{err: errs.NewTimeoutError(op, "keyboard busy")}
	default:
		return exchangeResult{err: errs.Wrap(errs.KindTransport, op, fmt.Sprintf("unexpected status 0x%02x", frame.Status), nil)}
	}
}

func parseErr(op string, err error) error {
	return errs.NewParseError(op, "malformed payload", err)
}

func (h *handle) BaseInfo(ctx context.Context) (transport.BaseInfo, error) {
	data, err := h.request(ctx, "get_base_info", protocol.CmdBaseInfo, 0, 0, nil)
	if err != nil {
		return transport.BaseInfo{}, err
	}
	info, err := protocol.DecodeBaseInfo(data)
	if err != nil {
		return transport.BaseInfo{}, parseErr("get_base_info", err)
	}
	return info, nil
}

// BaseLayout pages through the layout and groups keys by row.
func (h *handle) BaseLayout(ctx context.Context) ([][]transport.KeyInfo, error) {
	var all []transport.KeyInfo
	for page := 0; page < 256; page++ {
		data, err := h.request(ctx, "get_base_layout", protocol.CmdBaseLayout, 0, byte(page), nil)
		if err != nil {
			return nil, err
		}
		total, keys, err := protocol.DecodeLayoutPage(data)
		if err != nil {
			return nil, parseErr("get_base_layout", err)
		}
		all = append(all, keys...)
		if len(all) >= total || len(keys) == 0 {
			break
		}
	}

	var rows [][]transport.KeyInfo
	for _, k := range all {
		for len(rows) <= k.Row {
			rows = append(rows, nil)
		}
		rows[k.Row] = append(rows[k.Row], k)
	}
	return rows, nil
}

func (h *handle) LayoutKeyInfo(ctx context.Context, keys []transport.LayerKey) ([]transport.KeyInfo, error) {
	out := make([]transport.KeyInfo, 0, len(keys))
	for _, lk := range keys {
		data, err := h.request(ctx, "get_layout_key_info", protocol.CmdLayerKey, lk.Key, byte(lk.Layer), nil)
		if err != nil {
			return nil, err
		}
		v, err := protocol.DecodeUint16(data)
		if err != nil {
			return nil, parseErr("get_layout_key_info", err)
		}
		out = append(out, transport.KeyInfo{KeyValue: v})
	}
	return out, nil
}

func (h *handle) SetKey(ctx context.Context, bindings []transport.KeyBinding) error {
	for _, b := range bindings {
		if _, err := h.request(ctx, "set_key", protocol.CmdSetKey, b.Key, byte(b.Layer), protocol.EncodeUint16(b.Value)); err != nil {
			return err
		}
	}
	return nil
}

func (h *handle) readTravel(ctx context.Context, op string, cmd byte, key int) (float64, error) {
	data, err := h.request(ctx, op, cmd, key, 0, nil)
	if err != nil {
		return 0, err
	}
	v, err := protocol.DecodeTravel(data)
	if err != nil {
		return 0, parseErr(op, err)
	}
	return v, nil
}

func (h *handle) readPair(ctx context.Context, op string, cmd byte, key int) (transport.TravelPair, error) {
	data, err := h.request(ctx, op, cmd, key, 0, nil)
	if err != nil {
		return transport.TravelPair{}, err
	}
	p, err := protocol.DecodeTravelPair(data)
	if err != nil {
		return transport.TravelPair{}, parseErr(op, err)
	}
	return p, nil
}

func (h *handle) readInt(ctx context.Context, op string, cmd byte, key int) (int, error) {
	data, err := h.request(ctx, op, cmd, key, 0, nil)
	if err != nil {
		return 0, err
	}
	v, err := protocol.DecodeUint16(data)
	if err != nil {
		return 0, parseErr(op, err)
	}
	return v, nil
}

func (h *handle) write(ctx context.Context, op string, cmd byte, key int, arg byte, data []byte) error {
	_, err := h.request(ctx, op, cmd, key, arg, data)
	return err
}

func (h *handle) GlobalTouchTravel(ctx context.Context) (float64, error) {
	return h.readTravel(ctx, "get_global_touch_travel", protocol.CmdGlobalTravel, 0)
}

func (h *handle) SetGlobalTouchTravel(ctx context.Context, travel float64) error {
	return h.write(ctx, "set_global_touch_travel", protocol.CmdSetGlobalTravel, 0, 0, protocol.EncodeTravel(travel))
}

func (h *handle) PerformanceMode(ctx context.Context, key int) (transport.PerformanceMode, error) {
	data, err := h.request(ctx, "get_performance_mode", protocol.CmdPerformanceMode, key, 0, nil)
	if err != nil {
		return transport.PerformanceMode{}, err
	}
	m, err := protocol.DecodePerformanceMode(data)
	if err != nil {
		return transport.PerformanceMode{}, parseErr("get_performance_mode", err)
	}
	return m, nil
}

func (h *handle) SetPerformanceMode(ctx context.Context, key int, mode transport.PerformanceMode) error {
	data, err := protocol.EncodePerformanceMode(mode)
	if err != nil {
		return errs.NewValidationError("set_performance_mode", err.Error())
	}
	return h.write(ctx, "set_performance_mode", protocol.CmdSetPerformanceMode, key, 0, data)
}

func (h *handle) SingleTravel(ctx context.Context, key int) (float64, error) {
	return h.readTravel(ctx, "get_single_travel", protocol.CmdSingleTravel, key)
}

func (h *handle) SetSingleTravel(ctx context.Context, key int, travel float64) error {
	return h.write(ctx, "set_single_travel", protocol.CmdSetSingleTravel, key, 0, protocol.EncodeTravel(travel))
}

func (h *handle) RtTravel(ctx context.Context, key int) (transport.TravelPair, error) {
	return h.readPair(ctx, "get_rt_travel", protocol.CmdRtTravel, key)
}

func (h *handle) SetRtTravel(ctx context.Context, key int, travel transport.TravelPair) error {
	return h.write(ctx, "set_rt_travel", protocol.CmdSetRtTravel, key, 0, protocol.EncodeTravelPair(travel))
}

func (h *handle) DeadZones(ctx context.Context, key int) (transport.TravelPair, error) {
	return h.readPair(ctx, "get_dead_zones", protocol.CmdDeadZones, key)
}

func (h *handle) SetDeadZones(ctx context.Context, key int, zones transport.TravelPair) error {
	return h.write(ctx, "set_dead_zones", protocol.CmdSetDeadZones, key, 0, protocol.EncodeTravelPair(zones))
}

func (h *handle) Axis(ctx context.Context, key int) (int, error) {
	return h.readInt(ctx, "get_axis", protocol.CmdAxis, key)
}

func (h *handle) SetAxis(ctx context.Context, key int, axis int) error {
	return h.write(ctx, "set_axis", protocol.CmdSetAxis, key, 0, protocol.EncodeUint16(axis))
}

func (h *handle) Advanced(ctx context.Context, key int, kind transport.AdvancedKind) (transport.AdvancedConfig, error) {
	op := "get_" + kind.String()
	data, err := h.request(ctx, op, protocol.CmdAdvanced, key, byte(kind), nil)
	if err != nil {
		return transport.AdvancedConfig{}, err
	}
	cfg, err := protocol.DecodeAdvanced(data)
	if err != nil {
		return transport.AdvancedConfig{}, parseErr(op, err)
	}
	return cfg, nil
}

func (h *handle) SetAdvanced(ctx context.Context, key int, kind transport.AdvancedKind, cfg transport.AdvancedConfig) error {
	op := "set_" + kind.String()
	data, err := protocol.EncodeAdvanced(cfg)
	if err != nil {
		return errs.NewValidationError(op, err.Error())
	}
	return h.write(ctx, op, protocol.CmdSetAdvanced, key, byte(kind), data)
}

func (h *handle) CustomLight(ctx context.Context, key int) (transport.RGB, error) {
	data, err := h.request(ctx, "get_custom_light", protocol.CmdCustomLight, key, 0, nil)
	if err != nil {
		return transport.RGB{}, err
	}
	c, err := protocol.DecodeRGB(data)
	if err != nil {
		return transport.RGB{}, parseErr("get_custom_light", err)
	}
	return c, nil
}

func (h *handle) SetCustomLight(ctx context.Context, key int, color transport.RGB) error {
	return h.write(ctx, "set_custom_light", protocol.CmdSetCustomLight, key, 0, protocol.EncodeRGB(color))
}

func (h *handle) Lighting(ctx context.Context, zone transport.LightZone) (transport.LightConfig, error) {
	op := "get_lighting_" + zone.String()
	data, err := h.request(ctx, op, protocol.CmdLighting, 0, byte(zone), nil)
	if err != nil {
		return transport.LightConfig{}, err
	}
	cfg, err := protocol.DecodeLighting(data)
	if err != nil {
		return transport.LightConfig{}, parseErr(op, err)
	}
	return cfg, nil
}

func (h *handle) SetLighting(ctx context.Context, zone transport.LightZone, cfg transport.LightConfig) error {
	op := "set_lighting_" + zone.String()
	data, err := protocol.EncodeLighting(cfg)
	if err != nil {
		return errs.NewValidationError(op, err.Error())
	}
	return h.write(ctx, op, protocol.CmdSetLighting, 0, byte(zone), data)
}

func (h *handle) Macro(ctx context.Context, key int) ([]transport.MacroStep, error) {
	var steps []transport.MacroStep
	for page := 0; page < 256; page++ {
		data, err := h.request(ctx, "get_macro", protocol.CmdMacro, key, byte(page), nil)
		if err != nil {
			return nil, err
		}
		total, got, err := protocol.DecodeMacroPage(data)
		if err != nil {
			return nil, parseErr("get_macro", err)
		}
		steps = append(steps, got...)
		if len(steps) >= total || len(got) == 0 {
			break
		}
	}
	return steps, nil
}

func (h *handle) SetMacro(ctx context.Context, key int, steps []transport.MacroStep) error {
	if len(steps) > 255 {
		return errs.NewValidationError("set_macro", "macro has more than 255 steps")
	}
	for page := 0; page*protocol.MacroPageEntries < len(steps) || page == 0; page++ {
		start := page * protocol.MacroPageEntries
		end := min(start+protocol.MacroPageEntries, len(steps))
		data, err := protocol.EncodeMacroPage(len(steps), steps[start:end])
		if err != nil {
			return errs.NewValidationError("set_macro", err.Error())
		}
		if err := h.write(ctx, "set_macro", protocol.CmdSetMacro, key, byte(page), data); err != nil {
			return err
		}
	}
	return nil
}

func (h *handle) PollingRate(ctx context.Context) (int, error) {
	return h.readInt(ctx, "get_polling_rate", protocol.CmdPollingRate, 0)
}

func (h *handle) SetPollingRate(ctx context.Context, rate int) error {
	return h.write(ctx, "set_polling_rate", protocol.CmdSetPollingRate, 0, 0, protocol.EncodeUint16(rate))
}

func (h *handle) TopDeadBandSwitch(ctx context.Context) (int, error) {
	return h.readInt(ctx, "get_top_dead_band", protocol.CmdTopDeadBand, 0)
}

func (h *handle) SetTopDeadBandSwitch(ctx context.Context, value int) error {
	return h.write(ctx, "set_top_dead_band", protocol.CmdSetTopDeadBand, 0, 0, protocol.EncodeUint16(value))
}

func (h *handle) FactoryReset(ctx context.Context) error {
	return h.write(ctx, "factory_reset", protocol.CmdFactoryReset, 0, 0, nil)
}
