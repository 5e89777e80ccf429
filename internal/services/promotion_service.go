package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshua-takyi/eventix/internal/clock"
	"github.com/joshua-takyi/eventix/internal/metrics"
	"github.com/joshua-takyi/eventix/internal/models"
)

type PromotionService struct {
	events models.EventsRepo
	clock  clock.Clock
	logger *slog.Logger
}

func NewPromotionService(events models.EventsRepo, clk clock.Clock, logger *slog.Logger) *PromotionService {
	return &PromotionService{events: events, clock: clk, logger: logger}
}

type PromotionInput struct {
	Type      models.PromotionKind `json:"type" binding:"required"`
	StartDate time.Time            `json:"startDate" binding:"required"`
	EndDate   time.Time            `json:"endDate" binding:"required"`
}

// SweepResult counts the promotions a sweep turned off.
type SweepResult struct {
	Featured int `json:"featured"`
	Banner   int `json:"banner"`
}

func promotionWindow(e *models.Event, kind models.PromotionKind) (active bool, start, end *time.Time) {
	if kind == models.PromotionBanner {
		return e.IsBanner, e.BannerStartDate, e.BannerEndDate
	}
	return e.IsFeatured, e.FeaturedStartDate, e.FeaturedEndDate
}

// daysRun counts the days a promotion has been running at now, capped at its end.
// A window that has not opened yet has run for zero days.
func daysRun(start, end *time.Time, now time.Time) int {
	if start != nil && now.Before(*start) {
		return 0
	}
	stop := *end
	if now.Before(stop) {
		stop = now
	}
	if start == nil {
		return models.PromotionDays(stop, stop)
	}
	return models.PromotionDays(*start, stop)
}

func (ps *PromotionService) SetPromotion(ctx context.Context, eventID string, in PromotionInput) (*models.Event, error) {
	if !in.Type.Valid() {
		return nil, models.ValidationError("promotion type must be featured or banner")
	}
	if !in.EndDate.After(in.StartDate) {
		return nil, models.ValidationError("endDate must be after startDate")
	}
	oid, err := models.ParseObjectID(eventID)
	if err != nil {
		return nil, err
	}
	event, err := ps.events.GetEventByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if event.Status == models.EventStatusCancelled || event.Status == models.EventStatusCompleted {
		return nil, fmt.Errorf("%s events cannot be promoted: %w", event.Status, models.ErrConflict)
	}

	now := ps.clock.Now()
	// A replaced promotion still counts the days it ran.
	if active, start, end := promotionWindow(event, in.Type); active && end != nil {
		if _, err := ps.events.ExpirePromotion(ctx, oid, in.Type, *end, daysRun(start, end, now), now); err != nil {
			return nil, err
		}
	}

	updated, err := ps.events.SetPromotion(ctx, oid, in.Type, in.StartDate.UTC(), in.EndDate.UTC(), now)
	if err != nil {
		return nil, err
	}
	ps.logger.Info("Promotion scheduled", "event_id", eventID, "type", in.Type, "start", in.StartDate, "end", in.EndDate)
	return updated, nil
}

// EndPromotion turns a promotion off now and records the days it ran.
func (ps *PromotionService) EndPromotion(ctx context.Context, eventID string, kind models.PromotionKind) (*models.Event, error) {
	if !kind.Valid() {
		return nil, models.ValidationError("promotion type must be featured or banner")
	}
	oid, err := models.ParseObjectID(eventID)
	if err != nil {
		return nil, err
	}
	event, err := ps.events.GetEventByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	active, start, end := promotionWindow(event, kind)
	if !active || end == nil {
		return nil, fmt.Errorf("event has no %s promotion: %w", kind, models.ErrConflict)
	}

	now := ps.clock.Now()
	if _, err := ps.events.ExpirePromotion(ctx, oid, kind, *end, daysRun(start, end, now), now); err != nil {
		return nil, err
	}
	ps.logger.Info("Promotion ended", "event_id", eventID, "type", kind)
	return ps.events.GetEventByID(ctx, oid)
}

// CheckPromotions turns off every promotion whose end date has passed and adds
// its length in days to the event's running total.
func (ps *PromotionService) CheckPromotions(ctx context.Context) (*SweepResult, error) {
	now := ps.clock.Now()
	res := &SweepResult{}
	for _, kind := range []models.PromotionKind{models.PromotionFeatured, models.PromotionBanner} {
		events, err := ps.events.ListExpiredPromotions(ctx, kind, now)
		if err != nil {
			return res, err
		}
		for _, event := range events {
			_, start, end := promotionWindow(event, kind)
			if end == nil {
				continue
			}
			ok, err := ps.events.ExpirePromotion(ctx, event.ID, kind, *end, daysRun(start, end, now), now)
			if err != nil {
				ps.logger.Warn("Failed to expire promotion", "event_id", event.ID.Hex(), "type", kind, "error", err)
				continue
			}
			if !ok {
				continue
			}
			metrics.PromotionsExpired.WithLabelValues(string(kind)).Inc()
			if kind == models.PromotionBanner {
				res.Banner++
			} else {
				res.Featured++
			}
		}
	}
	if res.Featured+res.Banner > 0 {
		ps.logger.Info("Expired promotions", "featured", res.Featured, "banner", res.Banner)
	}
	return res, nil
}
