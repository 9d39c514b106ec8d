package service

import (
	"context"
	"fmt"
	"strconv"

	"hotelpos/backend/internal/domain"
)

func (s *Service) CreateInvoice(ctx context.Context, req domain.InvoiceCreateRequest) (*domain.Invoice, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.check(req); err != nil {
		return nil, err
	}
	invoice, err := s.repo.CreateInvoice(ctx, domain.Invoice{
		OrderID:  req.OrderID,
		IssuedBy: actor.Username,
		IssuedAt: s.now(),
	}, s.invoiceScope)
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "invoice_create", "invoice", strconv.FormatInt(invoice.ID, 10),
		fmt.Sprintf("number=%s,order=%d,amount=%s", invoice.InvoiceNumber, invoice.OrderID, invoice.Amount.StringFixed(2)))
	return invoice, nil
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (*domain.Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) UpdateInvoiceStatus(ctx context.Context, id int64, req domain.InvoiceStatusRequest) (*domain.Invoice, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	if err := s.check(req); err != nil {
		return nil, err
	}
	invoice, err := s.repo.UpdateInvoiceStatus(ctx, id, req.Status, s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "invoice_status", "invoice", strconv.FormatInt(invoice.ID, 10), "status="+invoice.Status)
	return invoice, nil
}
