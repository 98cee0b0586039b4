package itch

// Every ITCH message body starts with the same prefix: stock locate,
// tracking number, a nanoseconds-since-midnight timestamp and the ASCII
// message type. The structs below mirror the wire layout field for field.

type SystemEventMessage struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	Type           byte
	EventCode      byte
}

type StockDirectoryMessage struct {
	StockLocate                 uint16
	TrackingNumber              uint16
	Timestamp                   uint64
	Type                        byte
	Stock                       [8]byte
	MarketCategory              byte
	FinancialStatusIndicator    byte
	RoundLotSize                uint32
	RoundLotsOnly               byte
	IssueClassification         byte
	IssueSubType                [2]byte
	Authenticity                byte
	ShortSaleThresholdIndicator byte
	IPOFlag                     byte
	LULDReferencePriceTier      byte
	ETPFlag                     byte
	ETPLeverageFactor           uint32
	InverseIndicator            byte
}

type AddOrderMessage struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	Type           byte
	OrderReference uint64
	BuySell        byte
	Shares         uint32
	Stock          [8]byte
	Price          uint32
}

type AddOrderMPIDMessage struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	Type           byte
	OrderReference uint64
	BuySell        byte
	Shares         uint32
	Stock          [8]byte
	Price          uint32
	Attribution    [4]byte
}

type OrderExecutedMessage struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	Type           byte
	OrderReference uint64
	ExecutedShares uint32
	MatchNumber    uint64
}

type OrderExecutedWithPriceMessage struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	Type           byte
	OrderReference uint64
	ExecutedShares uint32
	MatchNumber    uint64
	Printable      byte
	ExecutionPrice uint32
}

type OrderCancelMessage struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	Type           byte
	OrderReference uint64
	CanceledShares uint32
}

type OrderDeleteMessage struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	Type           byte
	OrderReference uint64
}

type OrderReplaceMessage struct {
	StockLocate       uint16
	TrackingNumber    uint16
	Timestamp         uint64
	Type              byte
	OriginalReference uint64
	NewOrderReference uint64
	Shares            uint32
	Price             uint32
}

type TradeMessage struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	Type           byte
	OrderReference uint64
	BuySell        byte
	Shares         uint32
	Stock          [8]byte
	Price          uint32
	MatchNumber    uint64
}
