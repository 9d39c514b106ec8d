package service

import (
	"context"
	"fmt"
	"strconv"

	"hotelpos/backend/internal/domain"
)

func (s *Service) OpenShift(ctx context.Context, req domain.ShiftOpenRequest) (*domain.Shift, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.check(req); err != nil {
		return nil, err
	}
	member, err := s.repo.GetActiveStaffByUsername(ctx, actor.Username)
	if err != nil {
		return nil, err
	}

	shift, err := s.repo.OpenShift(ctx, domain.Shift{
		StaffID:      member.ID,
		StaffName:    member.Name,
		OpeningFloat: req.OpeningFloat,
		OpenedAt:     s.now(),
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "shift_open", "shift", strconv.FormatInt(shift.ID, 10), "opening_float="+shift.OpeningFloat.StringFixed(2))
	return shift, nil
}

func (s *Service) CloseShift(ctx context.Context, req domain.ShiftCloseRequest) (*domain.Shift, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.check(req); err != nil {
		return nil, err
	}
	member, err := s.repo.GetActiveStaffByUsername(ctx, actor.Username)
	if err != nil {
		return nil, err
	}

	shift, err := s.repo.CloseActiveShift(ctx, member.ID, req.ClosingCash, s.now())
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "shift_close", "shift", strconv.FormatInt(shift.ID, 10),
		fmt.Sprintf("opening_float=%s,closing_cash=%s", shift.OpeningFloat.StringFixed(2), shift.ClosingCash.StringFixed(2)))
	return shift, nil
}

func (s *Service) ActiveShift(ctx context.Context) (*domain.Shift, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	member, err := s.repo.GetActiveStaffByUsername(ctx, actor.Username)
	if err != nil {
		return nil, err
	}
	return s.repo.GetActiveShift(ctx, member.ID)
}
