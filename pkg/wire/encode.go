package wire

import "google.golang.org/protobuf/encoding/protowire"

// Encode helpers mirror DecodeWrapper for the supported field subset. They
// exist for tests and stub servers; production traffic is decode-only.

// AppendWrapper appends the wire encoding of w to dst.
func AppendWrapper(dst []byte, w *Wrapper) []byte {
	if w.Channel != "" {
		dst = protowire.AppendTag(dst, fieldChannel, protowire.BytesType)
		dst = protowire.AppendString(dst, w.Channel)
	}
	if w.Symbol != "" {
		dst = protowire.AppendTag(dst, fieldSymbol, protowire.BytesType)
		dst = protowire.AppendString(dst, w.Symbol)
	}
	if w.CreateTime != 0 {
		dst = protowire.AppendTag(dst, fieldCreateTime, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(w.CreateTime))
	}
	if w.SendTime != 0 {
		dst = protowire.AppendTag(dst, fieldSendTime, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(w.SendTime))
	}
	if w.Deals != nil {
		dst = protowire.AppendTag(dst, fieldAggreDeals, protowire.BytesType)
		dst = protowire.AppendBytes(dst, appendAggreDeals(nil, w.Deals))
	}
	return dst
}

func appendAggreDeals(dst []byte, a *AggreDeals) []byte {
	for i := range a.Deals {
		dst = protowire.AppendTag(dst, fieldDeals, protowire.BytesType)
		dst = protowire.AppendBytes(dst, appendDeal(nil, &a.Deals[i]))
	}
	if a.EventType != "" {
		dst = protowire.AppendTag(dst, fieldEventType, protowire.BytesType)
		dst = protowire.AppendString(dst, a.EventType)
	}
	return dst
}

func appendDeal(dst []byte, d *Deal) []byte {
	if d.Price != "" {
		dst = protowire.AppendTag(dst, fieldDealPrice, protowire.BytesType)
		dst = protowire.AppendString(dst, d.Price)
	}
	if d.Quantity != "" {
		dst = protowire.AppendTag(dst, fieldDealQuantity, protowire.BytesType)
		dst = protowire.AppendString(dst, d.Quantity)
	}
	if d.TradeType != 0 {
		dst = protowire.AppendTag(dst, fieldDealTradeType, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(uint32(d.TradeType)))
	}
	if d.Time != 0 {
		dst = protowire.AppendTag(dst, fieldDealTime, protowire.VarintType)
		dst = protowire.AppendVarint(dst, uint64(d.Time))
	}
	return dst
}
