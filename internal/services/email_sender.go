package services

import (
	"context"
	"fmt"

	"github.com/jewelhouse/jewelhouse/internal/email"
	"github.com/jewelhouse/jewelhouse/internal/models"
)

// StatusEmailSender tells customers when their order moves. Statuses without
// a template are skipped silently.
type StatusEmailSender struct {
	provider email.Provider
	renderer *email.Renderer
}

func NewStatusEmailSender(provider email.Provider) (*StatusEmailSender, error) {
	renderer, err := email.NewRenderer()
	if err != nil {
		return nil, err
	}
	return &StatusEmailSender{provider: provider, renderer: renderer}, nil
}

func (s *StatusEmailSender) SendStatusUpdate(ctx context.Context, order *models.Order) error {
	if s == nil || s.provider == nil || order == nil {
		return nil
	}
	if !email.HasStatusTemplate(string(order.Status)) {
		return nil
	}
	if order.Customer == nil || order.Customer.Email == "" {
		return fmt.Errorf("order %s has no customer email", order.ID)
	}

	return email.SendStatusUpdate(ctx, s.provider, s.renderer, BuildStatusInfo(order))
}

func BuildStatusInfo(order *models.Order) *email.StatusInfo {
	info := &email.StatusInfo{
		Reference:     order.ReferenceCode(),
		Status:        string(order.Status),
		CustomerEmail: order.Customer.Email,
		CustomerName:  order.Customer.Name,
		Address:       order.Address,
		Total:         fmt.Sprintf("%.0f₮", order.TotalAmount),
		UpdatedAt:     order.UpdatedAt,
		Items:         make([]email.StatusItem, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		info.Items = append(info.Items, email.StatusItem{
			Name:     item.Name,
			Quantity: item.Quantity,
			Size:     item.Size,
		})
	}
	return info
}
