package loopback

import (
	"fmt"

	"github.com/roffe/kvcan/pkg/leaf"
	"github.com/roffe/kvcan/pkg/protocol"
)

// leafRequests answers every frame in p. d.mu is held.
func (d *Device) leafRequests(p []byte) ([]byte, error) {
	var out []byte
	for len(p) > 0 {
		n := int(p[0])
		if n < leaf.MinFrameLen || n > len(p) {
			return out, fmt.Errorf("loopback: malformed request length %d of %d", n, len(p))
		}
		req := append([]byte(nil), p[:n]...)
		d.requests = append(d.requests, req)
		out = append(out, d.answer(req[1], func() []byte { return d.leafReply(req) })...)
		p = p[n:]
	}
	return out, nil
}

func (d *Device) leafReply(req []byte) []byte {
	const ch = 0
	cmd := req[1]
	switch cmd {
	case protocol.CmdSetBusParamsReq:
		if p, err := leaf.ParseSetBusParams(req); err == nil {
			d.params = p
		}
	case protocol.CmdGetBusParamsReq:
		return leaf.BusParamsResponse(ch, d.params)
	case protocol.CmdSetDriverModeReq:
		if m, err := leaf.ParseSetDriverMode(req); err == nil {
			d.mode = m
		}
	case protocol.CmdGetDriverModeReq:
		return leaf.DriverModeResponse(ch, d.mode)
	case protocol.CmdGetChipStateReq:
		return leaf.ChipStateFrame(ch, d.chipState())
	case protocol.CmdStartChipReq:
		d.busOn = true
		resp := leaf.EncodeResponse(protocol.CmdStartChipResp, protocol.CmdStartChipReq, ch, leaf.LenStartChipResp, nil)
		return append(resp, leaf.ChipStateFrame(ch, d.chipState())...)
	case protocol.CmdStopChipReq:
		d.busOn = false
		resp := leaf.EncodeResponse(protocol.CmdStopChipResp, protocol.CmdStopChipReq, ch, leaf.LenStopChipResp, nil)
		return append(resp, leaf.ChipStateFrame(ch, d.chipState())...)
	case protocol.CmdReadClockReq:
		return leaf.ReadClockResponse(d.Ticks())
	case protocol.CmdGetCardInfoReq:
		return leaf.CardInfoResponse(d.Card)
	case protocol.CmdGetSoftwareInfoReq:
		return leaf.SoftwareInfoResponse(d.Software)
	case protocol.CmdGetInterfaceInfoReq:
		return leaf.InterfaceInfoResponse(ch, d.Interface)
	case protocol.CmdGetTransceiverInfoReq:
		return leaf.TransceiverInfoResponse(ch, d.Transceiver)
	case protocol.CmdGetBusLoadReq:
		return leaf.BusLoadResponse(ch, d.BusLoad[0], d.BusLoad[1], d.BusLoad[2])
	case protocol.CmdGetCapabilitiesReq:
		sub, _, err := leaf.ParseCapabilitiesRequest(req)
		if err != nil {
			return nil
		}
		r := protocol.CapabilityResponse{SubCmd: sub, Mask: 1}
		if d.capability(sub) {
			r.Value = 1
		}
		return leaf.CapabilitiesResponse(r)
	case protocol.CmdFlushQueue:
		return leaf.FlushQueueResponse(ch, 0)
	case protocol.CmdTxStdMessage, protocol.CmdTxExtMessage:
		_, transID, m, err := leaf.ParseTxMessage(req)
		if err != nil {
			return nil
		}
		ticks := d.Ticks()
		out := leaf.TxAckFrame(ch, transID, ticks)
		if d.Echo && d.busOn {
			out = append(out, leaf.LogMessageFrame(&m, 0, ticks)...)
		}
		return out
	}
	// resets and unknown requests have no response
	return nil
}

func leafRx(m *protocol.Message, ticks uint64) []byte {
	return leaf.LogMessageFrame(m, 0, ticks)
}

func leafError(r protocol.ErrorReport) []byte {
	return leaf.ErrorEventFrame(r)
}
