package model

import "time"

// 注文明細は購入時点の商品のコピー。
// 商品が後で編集・削除されても明細は変わらない。
type OrderItem struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64     `gorm:"not null;index" json:"order_id"`
	ProductID           int64     `gorm:"not null;index" json:"product_id"`
	TitleSnapshot       string    `gorm:"type:varchar(255);not null" json:"title_snapshot"`
	DescriptionSnapshot string    `gorm:"type:text" json:"description_snapshot"`
	ImageURLSnapshot    string    `gorm:"type:varchar(512)" json:"image_url_snapshot"`
	UnitPriceSnapshot   int64     `gorm:"not null" json:"unit_price_snapshot"`
	Quantity            int64     `gorm:"not null" json:"quantity"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
