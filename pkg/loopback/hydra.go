package loopback

import (
	"fmt"

	"github.com/roffe/kvcan/pkg/hydra"
	"github.com/roffe/kvcan/pkg/protocol"
)

// HE addresses handed out by the simulated router.
const (
	canHE    = 0x02
	sysdbgHE = 0x05
)

// hydraRequests answers every frame in p. d.mu is held.
func (d *Device) hydraRequests(p []byte) ([]byte, error) {
	var out []byte
	for len(p) > 0 {
		n, err := hydra.FrameLength(p)
		if err == nil && n > len(p) {
			err = protocol.ErrTruncated
		}
		if err != nil {
			return out, fmt.Errorf("loopback: malformed request: %w", err)
		}
		req := append([]byte(nil), p[:n]...)
		d.requests = append(d.requests, req)
		cmd := req[0]
		if cmd == protocol.CmdExtended {
			cmd = req[6]
		}
		out = append(out, d.answer(cmd, func() []byte { return d.hydraReply(cmd, req) })...)
		p = p[n:]
	}
	return out, nil
}

func (d *Device) hydraReply(cmd uint8, req []byte) []byte {
	he := hydra.Dst(req[1])
	switch cmd {
	case protocol.CmdMapChannelReq:
		name, _, transID, err := hydra.ParseMapChannelRequest(req)
		if err != nil {
			return nil
		}
		if name == "SYSDBG" {
			return hydra.MapChannelResponse(sysdbgHE, transID)
		}
		return hydra.MapChannelResponse(canHE, transID)
	case protocol.CmdSetBusParamsReq:
		if p, err := hydra.ParseSetBusParams(req); err == nil {
			d.params = p
		}
		return hydra.EncodeResponse(protocol.CmdSetBusParamsResp, he, 0)
	case protocol.CmdSetBusParamsFdReq:
		if p, err := hydra.ParseSetBusParamsFd(req); err == nil {
			d.params = p.Nominal
			if p.CanFD {
				d.dataParams = p.Data
			}
		}
		return hydra.EncodeResponse(protocol.CmdSetBusParamsFdResp, he, 0)
	case protocol.CmdGetBusParamsReq:
		if req[4] != 0 {
			return hydra.BusParamsResponse(he, d.dataParams)
		}
		return hydra.BusParamsResponse(he, d.params)
	case protocol.CmdSetBusParamsTqReq:
		p, err := hydra.ParseSetBusParamsTqRequest(req)
		if err != nil || p.Arbitration.BRP == 0 {
			return hydra.SetBusParamsTqResponse(he, 1)
		}
		d.tq = p
		return hydra.SetBusParamsTqResponse(he, 0)
	case protocol.CmdGetBusParamsTqReq:
		return hydra.BusParamsTqResponse(he, d.tq, 0)
	case protocol.CmdSetDriverModeReq:
		if m, err := hydra.ParseSetDriverMode(req); err == nil {
			d.mode = m
		}
	case protocol.CmdGetDriverModeReq:
		return hydra.DriverModeResponse(he, d.mode)
	case protocol.CmdGetChipStateReq:
		return hydra.ChipStateFrame(he, d.chipState())
	case protocol.CmdStartChipReq:
		d.busOn = true
		return append(hydra.EncodeResponse(protocol.CmdStartChipResp, he, 0), hydra.ChipStateFrame(he, d.chipState())...)
	case protocol.CmdStopChipReq:
		d.busOn = false
		return append(hydra.EncodeResponse(protocol.CmdStopChipResp, he, 0), hydra.ChipStateFrame(he, d.chipState())...)
	case protocol.CmdReadClockReq:
		return hydra.ReadClockResponse(d.Ticks())
	case protocol.CmdGetCardInfoReq:
		return hydra.CardInfoResponse(d.Card)
	case protocol.CmdGetSoftwareDetailsReq:
		return hydra.SoftwareDetailsResponse(d.Software)
	case protocol.CmdGetSoftwareInfoReq:
		return hydra.MaxOutstandingTxResponse(d.Software.MaxOutstandingTx)
	case protocol.CmdGetInterfaceInfoReq:
		return hydra.InterfaceInfoResponse(d.Interface)
	case protocol.CmdGetTransceiverInfoReq:
		return hydra.TransceiverInfoResponse(he, d.Transceiver)
	case protocol.CmdGetBusLoadReq:
		return hydra.BusLoadResponse(he, d.BusLoad[0], d.BusLoad[1], d.BusLoad[2])
	case protocol.CmdGetCapabilitiesReq:
		sub, err := hydra.ParseCapabilitiesRequest(req)
		if err != nil {
			return nil
		}
		r := protocol.CapabilityResponse{SubCmd: sub, Mask: 1}
		if d.capability(sub) {
			r.Value = 1
		}
		return hydra.CapabilitiesResponse(he, r)
	case protocol.CmdFlushQueue:
		return hydra.EncodeResponse(protocol.CmdFlushQueueResp, he, 0)
	case protocol.CmdTxCanMessageFd:
		_, transID, m, err := hydra.ParseTxMessage(req)
		if err != nil {
			return nil
		}
		out := hydra.TxAckFrame(canHE, transID)
		if d.Echo && d.busOn {
			out = append(out, hydra.RxMessageFrame(canHE, &m, 0, d.Ticks())...)
		}
		return out
	}
	return nil
}

func hydraRx(m *protocol.Message, ticks uint64) []byte {
	return hydra.RxMessageFrame(canHE, m, 0, ticks)
}

func hydraError(r protocol.ErrorReport) []byte {
	return hydra.ErrorEventFrame(canHE, r)
}
