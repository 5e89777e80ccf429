package services

import (
	"context"

	"github.com/joshua-takyi/eventix/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AnalyticsService struct {
	events    models.EventsRepo
	analytics models.AnalyticsRepo
}

func NewAnalyticsService(events models.EventsRepo, analytics models.AnalyticsRepo) *AnalyticsService {
	return &AnalyticsService{events: events, analytics: analytics}
}

// OrganizerAnalytics reports sales for every event the organizer owns,
// including events nothing was sold for yet.
func (as *AnalyticsService) OrganizerAnalytics(ctx context.Context, organizerID string) ([]models.EventStats, error) {
	oid, err := models.ParseObjectID(organizerID)
	if err != nil {
		return nil, err
	}
	events, _, err := as.events.ListEvents(ctx, models.EventFilter{OrganizerID: &oid})
	if err != nil {
		return nil, err
	}

	ids := make([]primitive.ObjectID, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	stats, err := as.analytics.EventStatsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]models.EventStats, 0, len(events))
	for _, e := range events {
		s := stats[e.ID]
		s.EventID = e.ID
		s.Title = e.Title
		s.Status = e.Status
		out = append(out, s)
	}
	return out, nil
}

func (as *AnalyticsService) PlatformAnalytics(ctx context.Context) (*models.PlatformStats, error) {
	return as.analytics.PlatformStats(ctx)
}
