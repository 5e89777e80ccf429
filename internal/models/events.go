package models

import (
	"math"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusCompleted EventStatus = "completed"
)

type PromotionKind string

const (
	PromotionFeatured PromotionKind = "featured"
	PromotionBanner   PromotionKind = "banner"
)

func (k PromotionKind) Valid() bool {
	return k == PromotionFeatured || k == PromotionBanner
}

// flagField, startField, endField and totalField name the event document
// fields backing a promotion kind.
func (k PromotionKind) flagField() string {
	if k == PromotionBanner {
		return "isBanner"
	}
	return "isFeatured"
}

func (k PromotionKind) startField() string { return string(k) + "StartDate" }
func (k PromotionKind) endField() string   { return string(k) + "EndDate" }

func (k PromotionKind) totalField() string {
	return "total" + strings.ToUpper(string(k[:1])) + string(k[1:]) + "Days"
}

type Image struct {
	URL      string `bson:"url" json:"url"`
	PublicID string `bson:"publicId,omitempty" json:"publicId,omitempty"`
}

type TicketType struct {
	ID           primitive.ObjectID `bson:"_id" json:"id"`
	Name         string             `bson:"name" json:"name" validate:"required,max=80"`
	Price        float64            `bson:"price" json:"price" validate:"gte=0"`
	Quantity     int                `bson:"quantity" json:"quantity" validate:"gte=1"`
	QuantitySold int                `bson:"quantitySold" json:"quantitySold"`
}

// Available is the number of tickets of this type that can still be reserved.
func (t TicketType) Available() int {
	if n := t.Quantity - t.QuantitySold; n > 0 {
		return n
	}
	return 0
}

type Event struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrganizerID primitive.ObjectID `bson:"organizerId" json:"organizerId"`
	Title       string             `bson:"title" json:"title" validate:"required,min=3,max=160"`
	Description string             `bson:"description" json:"description" validate:"max=10000"`
	Category    string             `bson:"category,omitempty" json:"category,omitempty"`
	Venue       string             `bson:"venue,omitempty" json:"venue,omitempty"`
	Location    string             `bson:"location,omitempty" json:"location,omitempty"`
	StartDate   time.Time          `bson:"startDate" json:"startDate" validate:"required"`
	EndDate     time.Time          `bson:"endDate" json:"endDate" validate:"required"`
	Images      []Image            `bson:"images,omitempty" json:"images,omitempty"`
	TicketTypes []TicketType       `bson:"ticketTypes" json:"ticketTypes" validate:"required,min=1,dive"`
	Status      EventStatus        `bson:"status" json:"status"`

	IsFeatured        bool       `bson:"isFeatured" json:"isFeatured"`
	FeaturedStartDate *time.Time `bson:"featuredStartDate,omitempty" json:"featuredStartDate,omitempty"`
	FeaturedEndDate   *time.Time `bson:"featuredEndDate,omitempty" json:"featuredEndDate,omitempty"`
	TotalFeaturedDays int        `bson:"totalFeaturedDays" json:"totalFeaturedDays"`
	IsBanner          bool       `bson:"isBanner" json:"isBanner"`
	BannerStartDate   *time.Time `bson:"bannerStartDate,omitempty" json:"bannerStartDate,omitempty"`
	BannerEndDate     *time.Time `bson:"bannerEndDate,omitempty" json:"bannerEndDate,omitempty"`
	TotalBannerDays   int        `bson:"totalBannerDays" json:"totalBannerDays"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

func (e *Event) FindTicketType(id primitive.ObjectID) (*TicketType, bool) {
	for i := range e.TicketTypes {
		if e.TicketTypes[i].ID == id {
			return &e.TicketTypes[i], true
		}
	}
	return nil, false
}

// IsOnSale reports whether checkout is open for the event at now.
func (e *Event) IsOnSale(now time.Time) bool {
	if e.Status != EventStatusPublished {
		return false
	}
	end := e.EndDate
	if end.IsZero() {
		end = e.StartDate
	}
	return now.Before(end)
}

func (e *Event) promotion(kind PromotionKind) (active bool, start, end *time.Time) {
	if kind == PromotionBanner {
		return e.IsBanner, e.BannerStartDate, e.BannerEndDate
	}
	return e.IsFeatured, e.FeaturedStartDate, e.FeaturedEndDate
}

// PromotionActive computes whether a promotion is in effect at now regardless
// of whether the expiry sweep has run yet.
func (e *Event) PromotionActive(kind PromotionKind, now time.Time) bool {
	flag, start, end := e.promotion(kind)
	if !flag || end == nil {
		return false
	}
	if start != nil && now.Before(*start) {
		return false
	}
	return !now.After(*end)
}

// TotalSold sums quantitySold over every ticket type.
func (e *Event) TotalSold() int {
	n := 0
	for _, t := range e.TicketTypes {
		n += t.QuantitySold
	}
	return n
}

// PromotionDays is the number of whole days, rounded up, a promotion ran. A
// promotion always counts for at least one day.
func PromotionDays(start, end time.Time) int {
	if !end.After(start) {
		return 1
	}
	days := int(math.Ceil(end.Sub(start).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

var eventTransitions = map[EventStatus][]EventStatus{
	EventStatusDraft:     {EventStatusPublished, EventStatusCancelled},
	EventStatusPublished: {EventStatusCancelled, EventStatusCompleted},
}

// AllowedSources lists the statuses an event may move to `to` from.
func AllowedSources(to EventStatus) []EventStatus {
	var from []EventStatus
	for src, targets := range eventTransitions {
		for _, t := range targets {
			if t == to {
				from = append(from, src)
			}
		}
	}
	return from
}

func CanTransition(from, to EventStatus) bool {
	for _, t := range eventTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ReservationLine is one ticket type and the number of tickets to reserve or release.
type ReservationLine struct {
	TicketTypeID primitive.ObjectID
	Quantity     int
}

type EventFilter struct {
	Statuses    []EventStatus
	OrganizerID *primitive.ObjectID
	Category    string
	Search      string
	UpcomingAt  *time.Time
	FeaturedAt  *time.Time
	BannerAt    *time.Time
	Offset      int
	Limit       int
}

// EventUpdate holds optional scalar field changes.
type EventUpdate struct {
	Title       *string    `json:"title" validate:"omitempty,min=3,max=160"`
	Description *string    `json:"description" validate:"omitempty,max=10000"`
	Category    *string    `json:"category"`
	Venue       *string    `json:"venue"`
	Location    *string    `json:"location"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
}

func (u EventUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Category == nil && u.Venue == nil &&
		u.Location == nil && u.StartDate == nil && u.EndDate == nil
}

// TicketTypeUpdate changes a ticket type in place.
type TicketTypeUpdate struct {
	Name     *string  `json:"name" validate:"omitempty,max=80"`
	Price    *float64 `json:"price" validate:"omitempty,gte=0"`
	Quantity *int     `json:"quantity" validate:"omitempty,gte=1"`
}
