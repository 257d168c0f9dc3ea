package push

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/jewelhouse/jewelhouse/internal/models"
)

const (
	orderTitle = "Шинэ захиалга"
	orderIcon  = "/icons/order.png"
	orderBadge = "/icons/badge.png"
)

type Message struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Data  MessageData `json:"data"`
	Icon  string      `json:"icon"`
	Badge string      `json:"badge"`
}

type MessageData struct {
	OrderID string `json:"orderId"`
}

// OrderMessage describes a newly placed order, e.g. "125000₮ · Код: 3F2A9C1B".
func OrderMessage(order *models.Order) Message {
	return Message{
		Title: orderTitle,
		Body:  fmt.Sprintf("%s₮ · Код: %s", formatAmount(order.TotalAmount), order.ReferenceCode()),
		Data:  MessageData{OrderID: order.ID.String()},
		Icon:  orderIcon,
		Badge: orderBadge,
	}
}

func BuildOrderPayload(order *models.Order) ([]byte, error) {
	if order == nil {
		return nil, fmt.Errorf("order is required")
	}
	return json.Marshal(OrderMessage(order))
}

// formatAmount rounds half away from zero with no decimals.
func formatAmount(amount float64) string {
	return fmt.Sprintf("%.0f", math.Round(amount))
}
