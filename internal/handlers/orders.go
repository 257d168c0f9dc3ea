package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jewelhouse/jewelhouse/internal/auth"
	"github.com/jewelhouse/jewelhouse/internal/models"
	"github.com/jewelhouse/jewelhouse/internal/services"
)

const unknownPaymentMethod = "unknown"

type myOrderItem struct {
	ProductID  uuid.UUID `json:"productId"`
	Name       string    `json:"name"`
	SKU        string    `json:"sku"`
	Quantity   int       `json:"quantity"`
	Size       *string   `json:"size"`
	UnitPrice  float64   `json:"unitPrice"`
	SaleActive bool      `json:"saleActive"`
	SalePrice  *float64  `json:"salePrice"`
	Image      *string   `json:"image"`
}

type myOrder struct {
	ID            uuid.UUID     `json:"id"`
	Status        string        `json:"status"`
	PaymentMethod string        `json:"paymentMethod"`
	TotalAmount   float64       `json:"totalAmount"`
	IsPaid        bool          `json:"isPaid"`
	PaidAt        *time.Time    `json:"paidAt"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	Items         []myOrderItem `json:"items"`
}

type feedItem struct {
	ID        uuid.UUID `json:"id"`
	Total     float64   `json:"total"`
	Payment   string    `json:"payment"`
	User      string    `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
	Status    string    `json:"status"`
}

type feedResponse struct {
	Items      []feedItem          `json:"items"`
	Pagination services.Pagination `json:"pagination"`
	Summary    models.FeedSummary  `json:"summary"`
}

type detailUser struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone *string   `json:"phone"`
}

type detailItem struct {
	ProductID      uuid.UUID            `json:"productId"`
	Name           string               `json:"name"`
	SKU            string               `json:"sku"`
	Quantity       int                  `json:"quantity"`
	UnitPrice      float64              `json:"unitPrice"`
	Subtotal       float64              `json:"subtotal"`
	SaleActive     bool                 `json:"saleActive"`
	SalePrice      *float64             `json:"salePrice"`
	Image          *string              `json:"image"`
	Size           *string              `json:"size"`
	AvailableSizes []string             `json:"availableSizes"`
	Options        []models.OptionValue `json:"options"`
}

type orderDetail struct {
	ID            uuid.UUID    `json:"id"`
	Status        string       `json:"status"`
	TotalAmount   float64      `json:"totalAmount"`
	ItemsSubtotal float64      `json:"itemsSubtotal"`
	PaymentMethod string       `json:"paymentMethod"`
	Phone         string       `json:"phone"`
	Address       string       `json:"address"`
	IsPaid        bool         `json:"isPaid"`
	PaidAt        *time.Time   `json:"paidAt"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	User          *detailUser  `json:"user"`
	Items         []detailItem `json:"items"`
}

type listedOrderUser struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// listedOrder is the raw order plus the customer reference admins see in the
// full order list.
type listedOrder struct {
	*models.Order
	User *listedOrderUser `json:"user"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input services.CreateOrderInput
	if err := decodeJSON(w, r, &input); err != nil {
		h.loggerFromContext(ctx).Debug("invalid order payload", "error", err)
		writeMessage(w, http.StatusBadRequest, "Invalid order payload")
		return
	}

	order, err := h.orders.Create(ctx, auth.IdentityFromContext(ctx), input)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to create order")
		return
	}

	writeJSON(ctx, w, http.StatusCreated, order)
}

func (h *Handlers) MyOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orders, err := h.orders.ListMine(ctx, auth.IdentityFromContext(ctx))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to load orders")
		return
	}

	response := make([]myOrder, 0, len(orders))
	for _, order := range orders {
		response = append(response, newMyOrder(order))
	}
	writeJSON(ctx, w, http.StatusOK, response)
}

func (h *Handlers) OrdersFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	feed, err := h.orders.Feed(ctx, query.Get("page"), query.Get("limit"))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to load orders feed")
		return
	}

	response := feedResponse{
		Items:      make([]feedItem, 0, len(feed.Orders)),
		Pagination: feed.Pagination,
		Summary:    feed.Summary,
	}
	for _, order := range feed.Orders {
		response.Items = append(response.Items, feedItem{
			ID:        order.ID,
			Total:     order.TotalAmount,
			Payment:   paymentMethodLabel(order.PaymentMethod),
			User:      order.Customer.Label(),
			CreatedAt: order.CreatedAt,
			Status:    string(order.Status),
		})
	}
	writeJSON(ctx, w, http.StatusOK, response)
}

func (h *Handlers) OrderDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	order, err := h.orders.Detail(ctx, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to load order detail")
		return
	}

	writeJSON(ctx, w, http.StatusOK, newOrderDetail(order))
}

func (h *Handlers) AllOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orders, err := h.orders.ListAll(ctx)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to load orders")
		return
	}

	response := make([]listedOrder, 0, len(orders))
	for _, order := range orders {
		listed := listedOrder{Order: order}
		if order.Customer != nil {
			listed.User = &listedOrderUser{ID: order.Customer.ID, Email: order.Customer.Email}
		}
		response = append(response, listed)
	}
	writeJSON(ctx, w, http.StatusOK, response)
}

func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body updateStatusRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid status supplied for order update")
		return
	}

	order, err := h.orders.UpdateStatus(ctx, auth.IdentityFromContext(ctx), mux.Vars(r)["id"], body.Status)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to update order status")
		return
	}

	writeJSON(ctx, w, http.StatusOK, order)
}

func newMyOrder(order *models.Order) myOrder {
	out := myOrder{
		ID:            order.ID,
		Status:        string(order.Status),
		PaymentMethod: paymentMethodLabel(order.PaymentMethod),
		TotalAmount:   order.TotalAmount,
		IsPaid:        order.IsPaid,
		PaidAt:        order.PaidAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		Items:         make([]myOrderItem, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		out.Items = append(out.Items, myOrderItem{
			ProductID:  item.ProductID,
			Name:       itemName(item, "Бүтээгдэхүүн"),
			SKU:        itemSKU(item),
			Quantity:   item.Quantity,
			Size:       optionalString(item.Size),
			UnitPrice:  item.UnitPrice,
			SaleActive: item.Product != nil && item.Product.SaleActive,
			SalePrice:  itemSalePrice(item),
			Image:      optionalString(item.Product.FirstImage()),
		})
	}
	return out
}

func newOrderDetail(order *models.Order) orderDetail {
	out := orderDetail{
		ID:            order.ID,
		Status:        string(order.Status),
		TotalAmount:   order.TotalAmount,
		ItemsSubtotal: order.ItemsSubtotal(),
		PaymentMethod: paymentMethodLabel(order.PaymentMethod),
		Phone:         order.Phone,
		Address:       order.Address,
		IsPaid:        order.IsPaid,
		PaidAt:        order.PaidAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
		Items:         make([]detailItem, 0, len(order.Items)),
	}

	if customer := order.Customer; customer != nil {
		user := &detailUser{
			ID:    customer.ID,
			Name:  customer.Name,
			Email: customer.Email,
			Phone: optionalString(customer.Phone),
		}
		if user.Name == "" {
			user.Name = "Customer"
		}
		if user.Email == "" {
			user.Email = "N/A"
		}
		out.User = user
	}

	for _, item := range order.Items {
		sizes := []string{}
		if item.Product != nil {
			for _, size := range item.Product.Sizes {
				if size != "" {
					sizes = append(sizes, size)
				}
			}
		}
		options := item.Options
		if options == nil {
			options = []models.OptionValue{}
		}
		out.Items = append(out.Items, detailItem{
			ProductID:      item.ProductID,
			Name:           itemName(item, "Product"),
			SKU:            itemSKU(item),
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			Subtotal:       item.Subtotal(),
			SaleActive:     item.Product != nil && item.Product.SaleActive,
			SalePrice:      itemSalePrice(item),
			Image:          optionalString(item.Product.FirstImage()),
			Size:           optionalString(item.Size),
			AvailableSizes: sizes,
			Options:        options,
		})
	}
	return out
}

func itemName(item models.OrderItem, fallback string) string {
	if item.Name != "" {
		return item.Name
	}
	if item.Product != nil && item.Product.Name != "" {
		return item.Product.Name
	}
	return fallback
}

func itemSKU(item models.OrderItem) string {
	if item.Product != nil && item.Product.SKU != "" {
		return item.Product.SKU
	}
	return "—"
}

func itemSalePrice(item models.OrderItem) *float64 {
	if item.Product == nil {
		return nil
	}
	return item.Product.SalePrice
}

func paymentMethodLabel(method string) string {
	if method == "" {
		return unknownPaymentMethod
	}
	return method
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
