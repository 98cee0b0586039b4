package itch

import (
	"errors"
)

func unmarshalSystemEventMessage(data []byte) (msg SystemEventMessage, err error) {
	if len(data) != 14 {
		err = errors.New("invalid size of the ITCH message type 'S' (SystemEventMessage)")
		return
	}
	msg.StockLocate, data = readUint16(data)
	msg.TrackingNumber, data = readUint16(data)
	msg.Timestamp, data = readUint64(data)
	msg.Type, data = readByte(data)
	msg.EventCode, _ = readByte(data)
	return
}

func unmarshalStockDirectoryMessage(data []byte) (msg StockDirectoryMessage, err error) {
	if len(data) != 41 {
		err = errors.New("invalid size of the ITCH message type 'R' (StockDirectoryMessage)")
		return
	}
	msg.StockLocate, data = readUint16(data)
	msg.TrackingNumber, data = readUint16(data)
	msg.Timestamp, data = readUint64(data)
	msg.Type, data = readByte(data)
	msg.Stock, data = readBytes8(data)
	msg.MarketCategory, data = readByte(data)
	msg.FinancialStatusIndicator, data = readByte(data)
	msg.RoundLotSize, data = readUint32(data)
	msg.RoundLotsOnly, data = readByte(data)
	msg.IssueClassification, data = readByte(data)
	msg.IssueSubType, data = readBytes2(data)
	msg.Authenticity, data = readByte(data)
	msg.ShortSaleThresholdIndicator, data = readByte(data)
	msg.IPOFlag, data = readByte(data)
	msg.LULDReferencePriceTier, data = readByte(data)
	msg.ETPFlag, data = readByte(data)
	msg.ETPLeverageFactor, data = readUint32(data)
	msg.InverseIndicator, _ = readByte(data)
	return
}

func unmarshalAddOrderMessage(data []byte) (msg AddOrderMessage, err error) {
	if len(data) != 38 {
		err = errors.New("invalid size of the ITCH message type 'A' (AddOrderMessage)")
		return
	}
	msg.StockLocate, data = readUint16(data)
	msg.TrackingNumber, data = readUint16(data)
	msg.Timestamp, data = readUint64(data)
	msg.Type, data = readByte(data)
	msg.OrderReference, data = readUint64(data)
	msg.BuySell, data = readByte(data)
	msg.Shares, data = readUint32(data)
	msg.Stock, data = readBytes8(data)
	msg.Price, _ = readUint32(data)
	return
}

func unmarshalAddOrderMPIDMessage(data []byte) (msg AddOrderMPIDMessage, err error) {
	if len(data) != 42 {
		err = errors.New("invalid size of the ITCH message type 'F' (AddOrderMPIDMessage)")
		return
	}
	msg.StockLocate, data = readUint16(data)
	msg.TrackingNumber, data = readUint16(data)
	msg.Timestamp, data = readUint64(data)
	msg.Type, data = readByte(data)
	msg.OrderReference, data = readUint64(data)
	msg.BuySell, data = readByte(data)
	msg.Shares, data = readUint32(data)
	msg.Stock, data = readBytes8(data)
	msg.Price, data = readUint32(data)
	msg.Attribution, _ = readBytes4(data)
	return
}

func unmarshalOrderExecutedMessage(data []byte) (msg OrderExecutedMessage, err error) {
	if len(data) != 33 {
		err = errors.New("invalid size of the ITCH message type 'E' (OrderExecutedMessage)")
		return
	}
	msg.StockLocate, data = readUint16(data)
	msg.TrackingNumber, data = readUint16(data)
	msg.Timestamp, data = readUint64(data)
	msg.Type, data = readByte(data)
	msg.OrderReference, data = readUint64(data)
	msg.ExecutedShares, data = readUint32(data)
	msg.MatchNumber, _ = readUint64(data)
	return
}

func unmarshalOrderExecutedWithPriceMessage(data []byte) (msg OrderExecutedWithPriceMessage, err error) {
	if len(data) != 38 {
		err = errors.New("invalid size of the ITCH message type 'C' (OrderExecutedWithPriceMessage)")
		return
	}
	msg.StockLocate, data = readUint16(data)
	msg.TrackingNumber, data = readUint16(data)
	msg.Timestamp, data = readUint64(data)
	msg.Type, data = readByte(data)
	msg.OrderReference, data = readUint64(data)
	msg.ExecutedShares, data = readUint32(data)
	msg.MatchNumber, data = readUint64(data)
	msg.Printable, data = readByte(data)
	msg.ExecutionPrice, _ = readUint32(data)
	return
}

func unmarshalOrderCancelMessage(data []byte) (msg OrderCancelMessage, err error) {
	if len(data) != 25 {
		err = errors.New("invalid size of the ITCH message type 'X' (OrderCancelMessage)")
		return
	}
	msg.StockLocate, data = readUint16(data)
	msg.TrackingNumber, data = readUint16(data)
	msg.Timestamp, data = readUint64(data)
	msg.Type, data = readByte(data)
	msg.OrderReference, data = readUint64(data)
	msg.CanceledShares, _ = readUint32(data)
	return
}

func unmarshalOrderDeleteMessage(data []byte) (msg OrderDeleteMessage, err error) {
	if len(data) != 21 {
		err = errors.New("invalid size of the ITCH message type 'D' (OrderDeleteMessage)")
		return
	}
	msg.StockLocate, data = readUint16(data)
	msg.TrackingNumber, data = readUint16(data)
	msg.Timestamp, data = readUint64(data)
	msg.Type, data = readByte(data)
	msg.OrderReference, _ = readUint64(data)
	return
}

func unmarshalOrderReplaceMessage(data []byte) (msg OrderReplaceMessage, err error) {
	if len(data) != 37 {
		err = errors.New("invalid size of the ITCH message type 'U' (OrderReplaceMessage)")
		return
	}
	msg.StockLocate, data = readUint16(data)
	msg.TrackingNumber, data = readUint16(data)
	msg.Timestamp, data = readUint64(data)
	msg.Type, data = readByte(data)
	msg.OriginalReference, data = readUint64(data)
	msg.NewOrderReference, data = readUint64(data)
	msg.Shares, data = readUint32(data)
	msg.Price, _ = readUint32(data)
	return
}

func unmarshalTradeMessage(data []byte) (msg TradeMessage, err error) {
	if len(data) != 46 {
		err = errors.New("invalid size of the ITCH message type 'P' (TradeMessage)")
		return
	}
	msg.StockLocate, data = readUint16(data)
	msg.TrackingNumber, data = readUint16(data)
	msg.Timestamp, data = readUint64(data)
	msg.Type, data = readByte(data)
	msg.OrderReference, data = readUint64(data)
	msg.BuySell, data = readByte(data)
	msg.Shares, data = readUint32(data)
	msg.Stock, data = readBytes8(data)
	msg.Price, data = readUint32(data)
	msg.MatchNumber, _ = readUint64(data)
	return
}
