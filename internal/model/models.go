package model

// All 需要自动建表的模型
func All() []interface{} {
	return []interface{}{
		// 商品 & 订单
		&Product{}, &Order{}, &LineItem{},
		// NFC
		&NfcTag{},
		// 藏家
		&WarehouseOrder{}, &CrmContact{}, &CollectorProfile{},
	}
}
