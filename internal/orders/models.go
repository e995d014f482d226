package orders

import "time"

// Semua nominal dalam satuan terkecil mata uang (IDR tidak punya sen).

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Weight    int       `json:"weight"` // gram
	Stock     int       `json:"stock"`
	SellerID  string    `json:"seller_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Cart struct {
	ID     string     `json:"id"`
	UserID string     `json:"user_id"`
	Items  []CartItem `json:"items"`
}

type CartItem struct {
	ID        string  `json:"id"`
	CartID    string  `json:"cart_id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Product   Product `json:"product"`
}

// Buyer is the read-only slice of the user profile that checkout needs.
type Buyer struct {
	ID      string
	Email   string
	Address string
	Phone   string
}

type Order struct {
	ID              string      `json:"id"`
	UserID          string      `json:"user_id"`
	ExternalID      string      `json:"external_id"`
	Status          Status      `json:"status"` // lihat status.go
	Total           int64       `json:"total"`
	Courier         string      `json:"courier"`
	ShippingService string      `json:"shipping_service"`
	ShippingCost    int64       `json:"shipping_cost"`
	Address         string      `json:"address"`
	Phone           string      `json:"phone"`
	Notes           *string     `json:"notes"`
	PaymentMethod   string      `json:"payment_method"`
	InvoiceID       *string     `json:"invoice_id"`
	InvoiceURL      *string     `json:"invoice_url"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	PaidAt          *time.Time  `json:"paid_at,omitempty"`
	ExpiredAt       *time.Time  `json:"expired_at,omitempty"`
	Items           []OrderItem `json:"items"`
}

// OrderItem keeps the price and name sampled at checkout; never updated afterwards.
type OrderItem struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
}

func (i OrderItem) Subtotal() int64 { return i.Price * int64(i.Quantity) }

// ItemsTotal is the sum of line subtotals, shipping excluded.
func (o Order) ItemsTotal() int64 {
	var sum int64
	for _, it := range o.Items {
		sum += it.Subtotal()
	}
	return sum
}

func (o Order) Pending() bool { return o.Status == StatusPending }

const PaymentMethodXendit = "xendit"
