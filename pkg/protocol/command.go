package protocol

// Command codes shared by the Leaf and Hydra families. Request and response
// codes differ; where a request has no response it is fire-and-forget.
const (
	CmdRxStdMessage = 0x0C
	CmdTxStdMessage = 0x0D
	CmdRxExtMessage = 0x0E
	CmdTxExtMessage = 0x0F

	CmdSetBusParamsReq   = 0x10
	CmdGetBusParamsReq   = 0x11
	CmdGetBusParamsResp  = 0x12
	CmdGetChipStateReq   = 0x13
	CmdChipStateEvent    = 0x14
	CmdSetDriverModeReq  = 0x15
	CmdGetDriverModeReq  = 0x16
	CmdGetDriverModeResp = 0x17
	CmdResetChipReq      = 0x18
	CmdResetCardReq      = 0x19
	CmdStartChipReq      = 0x1A
	CmdStartChipResp     = 0x1B
	CmdStopChipReq       = 0x1C
	CmdStopChipResp      = 0x1D
	CmdReadClockReq      = 0x1E
	CmdReadClockResp     = 0x1F

	CmdGetCardInfo2           = 0x20
	CmdTxCanMessage           = 0x21
	CmdGetCardInfoReq         = 0x22
	CmdGetCardInfoResp        = 0x23
	CmdGetInterfaceInfoReq    = 0x24
	CmdGetInterfaceInfoResp   = 0x25
	CmdGetSoftwareInfoReq     = 0x26
	CmdGetSoftwareInfoResp    = 0x27
	CmdGetBusLoadReq          = 0x28
	CmdGetBusLoadResp         = 0x29
	CmdResetStatistics        = 0x2A
	CmdErrorEvent             = 0x2D
	CmdFlushQueue             = 0x30
	CmdResetErrorCounter      = 0x31
	CmdTxAcknowledge          = 0x32
	CmdCanErrorEvent          = 0x33
	CmdFlushQueueResp         = 0x42
	CmdFiloFlushQueueResp     = 0x44
	CmdSetBusParamsFdReq      = 0x45
	CmdSetBusParamsFdResp     = 0x46
	CmdSetBusParamsResp       = 0x55
	CmdGetCapabilitiesReq     = 0x5F
	CmdGetCapabilitiesResp    = 0x60
	CmdGetTransceiverInfoReq  = 0x61
	CmdGetTransceiverInfoResp = 0x62
	CmdLogMessage             = 0x6A

	CmdSetBusParamsTqReq  = 0x89
	CmdSetBusParamsTqResp = 0x8A
	CmdGetBusParamsTqReq  = 0x8B
	CmdGetBusParamsTqResp = 0x8C

	CmdMapChannelReq          = 0xC8
	CmdMapChannelResp         = 0xC9
	CmdGetSoftwareDetailsReq  = 0xCA
	CmdGetSoftwareDetailsResp = 0xCB

	CmdTxCanMessageFd = 0xE0
	CmdTxAckFd        = 0xE1
	CmdRxMessageFd    = 0xE2
	CmdAutoTxFd       = 0xE3

	CmdExtended = 0xFF
)

var commandNames = map[uint8]string{
	CmdRxStdMessage:           "RX_STD_MESSAGE",
	CmdTxStdMessage:           "TX_STD_MESSAGE",
	CmdRxExtMessage:           "RX_EXT_MESSAGE",
	CmdTxExtMessage:           "TX_EXT_MESSAGE",
	CmdSetBusParamsReq:        "SET_BUSPARAMS_REQ",
	CmdGetBusParamsReq:        "GET_BUSPARAMS_REQ",
	CmdGetBusParamsResp:       "GET_BUSPARAMS_RESP",
	CmdGetChipStateReq:        "GET_CHIP_STATE_REQ",
	CmdChipStateEvent:         "CHIP_STATE_EVENT",
	CmdSetDriverModeReq:       "SET_DRIVERMODE_REQ",
	CmdGetDriverModeReq:       "GET_DRIVERMODE_REQ",
	CmdGetDriverModeResp:      "GET_DRIVERMODE_RESP",
	CmdResetChipReq:           "RESET_CHIP_REQ",
	CmdResetCardReq:           "RESET_CARD_REQ",
	CmdStartChipReq:           "START_CHIP_REQ",
	CmdStartChipResp:          "START_CHIP_RESP",
	CmdStopChipReq:            "STOP_CHIP_REQ",
	CmdStopChipResp:           "STOP_CHIP_RESP",
	CmdReadClockReq:           "READ_CLOCK_REQ",
	CmdReadClockResp:          "READ_CLOCK_RESP",
	CmdGetCardInfo2:           "GET_CARD_INFO_2",
	CmdTxCanMessage:           "TX_CAN_MESSAGE",
	CmdGetCardInfoReq:         "GET_CARD_INFO_REQ",
	CmdGetCardInfoResp:        "GET_CARD_INFO_RESP",
	CmdGetInterfaceInfoReq:    "GET_INTERFACE_INFO_REQ",
	CmdGetInterfaceInfoResp:   "GET_INTERFACE_INFO_RESP",
	CmdGetSoftwareInfoReq:     "GET_SOFTWARE_INFO_REQ",
	CmdGetSoftwareInfoResp:    "GET_SOFTWARE_INFO_RESP",
	CmdGetBusLoadReq:          "GET_BUSLOAD_REQ",
	CmdGetBusLoadResp:         "GET_BUSLOAD_RESP",
	CmdResetStatistics:        "RESET_STATISTICS",
	CmdErrorEvent:             "ERROR_EVENT",
	CmdFlushQueue:             "FLUSH_QUEUE",
	CmdResetErrorCounter:      "RESET_ERROR_COUNTER",
	CmdTxAcknowledge:          "TX_ACKNOWLEDGE",
	CmdCanErrorEvent:          "CAN_ERROR_EVENT",
	CmdFlushQueueResp:         "FLUSH_QUEUE_RESP",
	CmdFiloFlushQueueResp:     "FILO_FLUSH_QUEUE_RESP",
	CmdSetBusParamsFdReq:      "SET_BUSPARAMS_FD_REQ",
	CmdSetBusParamsFdResp:     "SET_BUSPARAMS_FD_RESP",
	CmdSetBusParamsResp:       "SET_BUSPARAMS_RESP",
	CmdGetCapabilitiesReq:     "GET_CAPABILITIES_REQ",
	CmdGetCapabilitiesResp:    "GET_CAPABILITIES_RESP",
	CmdGetTransceiverInfoReq:  "GET_TRANSCEIVER_INFO_REQ",
	CmdGetTransceiverInfoResp: "GET_TRANSCEIVER_INFO_RESP",
	CmdLogMessage:             "LOG_MESSAGE",
	CmdSetBusParamsTqReq:      "SET_BUSPARAMS_TQ_REQ",
	CmdSetBusParamsTqResp:     "SET_BUSPARAMS_TQ_RESP",
	CmdGetBusParamsTqReq:      "GET_BUSPARAMS_TQ_REQ",
	CmdGetBusParamsTqResp:     "GET_BUSPARAMS_TQ_RESP",
	CmdMapChannelReq:          "MAP_CHANNEL_REQ",
	CmdMapChannelResp:         "MAP_CHANNEL_RESP",
	CmdGetSoftwareDetailsReq:  "GET_SOFTWARE_DETAILS_REQ",
	CmdGetSoftwareDetailsResp: "GET_SOFTWARE_DETAILS_RESP",
	CmdTxCanMessageFd:         "TX_CAN_MESSAGE_FD",
	CmdTxAckFd:                "TX_ACK_FD",
	CmdRxMessageFd:            "RX_MESSAGE_FD",
	CmdAutoTxFd:               "AUTOTX_MESSAGE_FD",
	CmdExtended:               "EXTENDED",
}

// CommandName returns the protocol name of a command code.
func CommandName(cmd uint8) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return "UNKNOWN"
}
