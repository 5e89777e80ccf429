package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joshua-takyi/eventix/internal/broker"
	"github.com/joshua-takyi/eventix/internal/models"
	"github.com/joshua-takyi/eventix/internal/payment"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeRepo is an in-memory stand-in for the Mongo repository. Its
// conditional writes follow the same match rules as the real queries.
type fakeRepo struct {
	mu     sync.Mutex
	events map[primitive.ObjectID]*models.Event
	orders map[primitive.ObjectID]*models.Order
	users  map[primitive.ObjectID]*models.User
	codes  map[string]*models.VerificationCode

	createOrderErr error
	releaseErr     error
	beforeReserve  func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		events: make(map[primitive.ObjectID]*models.Event),
		orders: make(map[primitive.ObjectID]*models.Order),
		users:  make(map[primitive.ObjectID]*models.User),
		codes:  make(map[string]*models.VerificationCode),
	}
}

func cloneEvent(e *models.Event) *models.Event {
	c := *e
	c.TicketTypes = append([]models.TicketType(nil), e.TicketTypes...)
	c.Images = append([]models.Image(nil), e.Images...)
	return &c
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Tickets = append([]models.Ticket(nil), o.Tickets...)
	return &c
}

func cloneUser(u *models.User) *models.User {
	c := *u
	return &c
}

// events

func (r *fakeRepo) CreateEvent(ctx context.Context, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	r.events[event.ID] = cloneEvent(event)
	return nil
}

func (r *fakeRepo) GetEventByID(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, models.ErrEventNotFound
	}
	return cloneEvent(e), nil
}

func within(at time.Time, start, end *time.Time) bool {
	return start != nil && end != nil && !at.Before(*start) && !at.After(*end)
}

func (r *fakeRepo) ListEvents(ctx context.Context, f models.EventFilter) ([]*models.Event, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*models.Event
	for _, e := range r.events {
		if len(f.Statuses) > 0 {
			ok := false
			for _, s := range f.Statuses {
				ok = ok || e.Status == s
			}
			if !ok {
				continue
			}
		}
		if f.OrganizerID != nil && e.OrganizerID != *f.OrganizerID {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(f.Search)) {
			continue
		}
		if f.UpcomingAt != nil && e.EndDate.Before(*f.UpcomingAt) {
			continue
		}
		if f.FeaturedAt != nil && !(e.IsFeatured && within(*f.FeaturedAt, e.FeaturedStartDate, e.FeaturedEndDate)) {
			continue
		}
		if f.BannerAt != nil && !(e.IsBanner && within(*f.BannerAt, e.BannerStartDate, e.BannerEndDate)) {
			continue
		}
		matched = append(matched, cloneEvent(e))
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StartDate.Equal(matched[j].StartDate) {
			return matched[i].ID.Hex() < matched[j].ID.Hex()
		}
		return matched[i].StartDate.Before(matched[j].StartDate)
	})
	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return []*models.Event{}, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (r *fakeRepo) mutateEvent(id primitive.ObjectID, fn func(e *models.Event) error) (*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, models.ErrEventNotFound
	}
	c := cloneEvent(e)
	if err := fn(c); err != nil {
		return nil, err
	}
	r.events[id] = c
	return cloneEvent(c), nil
}

func (r *fakeRepo) UpdateEvent(ctx context.Context, id primitive.ObjectID, u models.EventUpdate, now time.Time) (*models.Event, error) {
	return r.mutateEvent(id, func(e *models.Event) error {
		if u.Title != nil {
			e.Title = *u.Title
		}
		if u.Description != nil {
			e.Description = *u.Description
		}
		if u.Category != nil {
			e.Category = *u.Category
		}
		if u.Venue != nil {
			e.Venue = *u.Venue
		}
		if u.Location != nil {
			e.Location = *u.Location
		}
		if u.StartDate != nil {
			e.StartDate = *u.StartDate
		}
		if u.EndDate != nil {
			e.EndDate = *u.EndDate
		}
		e.UpdatedAt = now
		return nil
	})
}

func (r *fakeRepo) SetEventStatus(ctx context.Context, id primitive.ObjectID, from []models.EventStatus, to models.EventStatus, now time.Time) (*models.Event, error) {
	return r.mutateEvent(id, func(e *models.Event) error {
		for _, s := range from {
			if e.Status == s {
				e.Status = to
				e.UpdatedAt = now
				return nil
			}
		}
		return models.ErrInvalidTransition
	})
}

func (r *fakeRepo) SetEventImages(ctx context.Context, id primitive.ObjectID, images []models.Image, now time.Time) error {
	_, err := r.mutateEvent(id, func(e *models.Event) error {
		e.Images = images
		return nil
	})
	return err
}

func (r *fakeRepo) DeleteEvent(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[id]; !ok {
		return models.ErrEventNotFound
	}
	delete(r.events, id)
	return nil
}

func (r *fakeRepo) AddTicketType(ctx context.Context, eventID primitive.ObjectID, tt models.TicketType, now time.Time) (*models.Event, error) {
	return r.mutateEvent(eventID, func(e *models.Event) error {
		tt.ID = primitive.NewObjectID()
		tt.QuantitySold = 0
		e.TicketTypes = append(e.TicketTypes, tt)
		return nil
	})
}

func (r *fakeRepo) UpdateTicketType(ctx context.Context, eventID, ticketTypeID primitive.ObjectID, u models.TicketTypeUpdate, now time.Time) (*models.Event, error) {
	return r.mutateEvent(eventID, func(e *models.Event) error {
		tt, ok := e.FindTicketType(ticketTypeID)
		if !ok {
			return models.ErrTicketTypeNotFound
		}
		if u.Quantity != nil && *u.Quantity < tt.QuantitySold {
			return models.ValidationError("quantity cannot be below the %d tickets already sold", tt.QuantitySold)
		}
		if u.Name != nil {
			tt.Name = *u.Name
		}
		if u.Price != nil {
			tt.Price = *u.Price
		}
		if u.Quantity != nil {
			tt.Quantity = *u.Quantity
		}
		return nil
	})
}

func (r *fakeRepo) RemoveTicketType(ctx context.Context, eventID, ticketTypeID primitive.ObjectID, now time.Time) (*models.Event, error) {
	return r.mutateEvent(eventID, func(e *models.Event) error {
		for i, tt := range e.TicketTypes {
			if tt.ID != ticketTypeID {
				continue
			}
			if tt.QuantitySold > 0 {
				return models.ErrConflict
			}
			e.TicketTypes = append(e.TicketTypes[:i], e.TicketTypes[i+1:]...)
			return nil
		}
		return models.ErrTicketTypeNotFound
	})
}

func (r *fakeRepo) ReserveTickets(ctx context.Context, eventID primitive.ObjectID, lines []models.ReservationLine) (bool, error) {
	if r.beforeReserve != nil {
		r.beforeReserve()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[eventID]
	if !ok || e.Status != models.EventStatusPublished {
		return false, nil
	}
	for _, l := range lines {
		tt, ok := e.FindTicketType(l.TicketTypeID)
		if !ok || tt.QuantitySold+l.Quantity > tt.Quantity {
			return false, nil
		}
	}
	for _, l := range lines {
		tt, _ := e.FindTicketType(l.TicketTypeID)
		tt.QuantitySold += l.Quantity
	}
	return true, nil
}

func (r *fakeRepo) ReleaseTickets(ctx context.Context, eventID primitive.ObjectID, lines []models.ReservationLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.releaseErr != nil {
		return r.releaseErr
	}
	e, ok := r.events[eventID]
	if !ok {
		return models.ErrConflict
	}
	for _, l := range lines {
		tt, ok := e.FindTicketType(l.TicketTypeID)
		if !ok || tt.QuantitySold < l.Quantity {
			return models.ErrConflict
		}
	}
	for _, l := range lines {
		tt, _ := e.FindTicketType(l.TicketTypeID)
		tt.QuantitySold -= l.Quantity
	}
	return nil
}

func (r *fakeRepo) SetPromotion(ctx context.Context, id primitive.ObjectID, kind models.PromotionKind, start, end time.Time, now time.Time) (*models.Event, error) {
	return r.mutateEvent(id, func(e *models.Event) error {
		if kind == models.PromotionBanner {
			e.IsBanner, e.BannerStartDate, e.BannerEndDate = true, &start, &end
		} else {
			e.IsFeatured, e.FeaturedStartDate, e.FeaturedEndDate = true, &start, &end
		}
		return nil
	})
}

func (r *fakeRepo) ListExpiredPromotions(ctx context.Context, kind models.PromotionKind, now time.Time) ([]*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Event
	for _, e := range r.events {
		flag, end := e.IsFeatured, e.FeaturedEndDate
		if kind == models.PromotionBanner {
			flag, end = e.IsBanner, e.BannerEndDate
		}
		if flag && end != nil && end.Before(now) {
			out = append(out, cloneEvent(e))
		}
	}
	return out, nil
}

func (r *fakeRepo) ExpirePromotion(ctx context.Context, id primitive.ObjectID, kind models.PromotionKind, end time.Time, days int, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return false, nil
	}
	if kind == models.PromotionBanner {
		if !e.IsBanner || e.BannerEndDate == nil || !e.BannerEndDate.Equal(end) {
			return false, nil
		}
		e.IsBanner = false
		e.TotalBannerDays += days
		return true, nil
	}
	if !e.IsFeatured || e.FeaturedEndDate == nil || !e.FeaturedEndDate.Equal(end) {
		return false, nil
	}
	e.IsFeatured = false
	e.TotalFeaturedDays += days
	return true, nil
}

// orders

func (r *fakeRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createOrderErr != nil {
		return r.createOrderErr
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r *fakeRepo) GetOrderByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, models.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *fakeRepo) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.PaymentReference == reference {
			return cloneOrder(o), nil
		}
	}
	return nil, models.ErrOrderNotFound
}

func (r *fakeRepo) GetOrderByTicketID(ctx context.Context, code string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if _, ok := o.FindTicket(code); ok {
			return cloneOrder(o), nil
		}
	}
	return nil, models.ErrTicketNotFound
}

func (r *fakeRepo) ListOrdersByUser(ctx context.Context, userID primitive.ObjectID, offset, limit int) ([]*models.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Order{}
	for _, o := range r.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := int64(len(out))
	if offset >= len(out) {
		return []*models.Order{}, total, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (r *fakeRepo) ListStalePendingOrders(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.orders {
		if o.Status == models.OrderStatusPending && o.CreatedAt.Before(createdBefore) {
			out = append(out, cloneOrder(o))
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) CountCompletedOrdersByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, o := range r.orders {
		if o.EventID == eventID && o.Status == models.OrderStatusCompleted {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) AttachPayment(ctx context.Context, id primitive.ObjectID, provider, providerRef string, now time.Time) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return nil, models.ErrOrderNotPending
	}
	o.PaymentProvider, o.ProviderRef, o.UpdatedAt = provider, providerRef, now
	return cloneOrder(o), nil
}

func (r *fakeRepo) SettleOrder(ctx context.Context, id primitive.ObjectID, s models.Settlement, now time.Time) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != models.OrderStatusPending {
		return nil, nil
	}
	o.Status = s.Status
	o.PaymentStatus = s.PaymentStatus
	o.FailureReason = s.FailureReason
	o.PaidAt = s.PaidAt
	o.ReleasePending = s.Status == models.OrderStatusFailed
	o.UpdatedAt = now
	return cloneOrder(o), nil
}

func (r *fakeRepo) setReleasePending(id primitive.ObjectID, from, to bool, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != models.OrderStatusFailed || o.ReleasePending != from {
		return false
	}
	o.ReleasePending, o.UpdatedAt = to, now
	return true
}

func (r *fakeRepo) ClaimTicketRelease(ctx context.Context, id primitive.ObjectID, now time.Time) (bool, error) {
	return r.setReleasePending(id, true, false, now), nil
}

func (r *fakeRepo) RestoreTicketRelease(ctx context.Context, id primitive.ObjectID, now time.Time) error {
	r.setReleasePending(id, false, true, now)
	return nil
}

func (r *fakeRepo) ListPendingReleases(ctx context.Context, limit int) ([]*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Order
	for _, o := range r.orders {
		if o.Status == models.OrderStatusFailed && o.ReleasePending && len(out) < limit {
			out = append(out, cloneOrder(o))
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkTicketScanned(ctx context.Context, code, scannedBy string, now time.Time) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		t, ok := o.FindTicket(code)
		if !ok {
			continue
		}
		if o.Status != models.OrderStatusCompleted || t.IsScanned {
			return nil, nil
		}
		t.IsScanned, t.ScannedAt, t.ScannedBy = true, &now, scannedBy
		return cloneOrder(o), nil
	}
	return nil, nil
}

// users

func (r *fakeRepo) CreateUser(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, u := range r.users {
		if u.Email == user.Email {
			return models.ErrEmailTaken
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *fakeRepo) GetUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *fakeRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			return cloneUser(u), nil
		}
	}
	return nil, models.ErrUserNotFound
}

func (r *fakeRepo) ListUsers(ctx context.Context, role models.Role, offset, limit int) ([]*models.User, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.User{}
	for _, u := range r.users {
		if role == "" || u.Role == role {
			out = append(out, cloneUser(u))
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeRepo) mutateUser(id primitive.ObjectID, fn func(u *models.User)) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	fn(u)
	return cloneUser(u), nil
}

func (r *fakeRepo) UpdateUser(ctx context.Context, id primitive.ObjectID, upd models.UserUpdate, now time.Time) (*models.User, error) {
	return r.mutateUser(id, func(u *models.User) {
		if upd.Name != nil {
			u.Name = *upd.Name
		}
		if upd.Phone != nil {
			u.Phone = *upd.Phone
		}
		if upd.AvatarURL != nil {
			u.AvatarURL = *upd.AvatarURL
		}
		u.UpdatedAt = now
	})
}

func (r *fakeRepo) SetUserRole(ctx context.Context, id primitive.ObjectID, role models.Role, now time.Time) (*models.User, error) {
	return r.mutateUser(id, func(u *models.User) { u.Role = role })
}

func (r *fakeRepo) DeleteUser(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return models.ErrUserNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *fakeRepo) LinkOAuthUser(ctx context.Context, email, name, provider, subject string, now time.Time) (*models.User, error) {
	if u, err := r.GetUserByEmail(ctx, email); err == nil {
		return u, nil
	}
	user := &models.User{Email: email, Name: name, Provider: provider, ProviderSubject: subject, Role: models.RoleUser, IsVerified: true}
	if err := r.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *fakeRepo) SaveVerificationCode(ctx context.Context, email, code string, expiresAt, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(email)
	r.codes[email] = &models.VerificationCode{Email: email, Code: code, ExpiresAt: expiresAt, CreatedAt: now}
	return nil
}

func (r *fakeRepo) ConsumeVerificationCode(ctx context.Context, email, code string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email = strings.ToLower(email)
	vc, ok := r.codes[email]
	if !ok || !vc.ExpiresAt.After(now) || vc.Attempts >= models.MaxVerificationAttempts {
		return models.ErrInvalidCode
	}
	vc.Attempts++
	if vc.Code != code {
		return models.ErrInvalidCode
	}
	delete(r.codes, email)
	return nil
}

// analytics

func (r *fakeRepo) EventStatsFor(ctx context.Context, eventIDs []primitive.ObjectID) (map[primitive.ObjectID]models.EventStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := make(map[primitive.ObjectID]bool, len(eventIDs))
	for _, id := range eventIDs {
		want[id] = true
	}
	out := make(map[primitive.ObjectID]models.EventStats)
	for _, o := range r.orders {
		if !want[o.EventID] || o.Status != models.OrderStatusCompleted {
			continue
		}
		s := out[o.EventID]
		s.EventID = o.EventID
		s.Orders++
		for _, t := range o.Tickets {
			s.TicketsSold += int64(t.Quantity)
			s.Revenue += t.Price * float64(t.Quantity)
			if t.IsScanned {
				s.Scanned++
			}
		}
		out[o.EventID] = s
	}
	return out, nil
}

func (r *fakeRepo) PlatformStats(ctx context.Context) (*models.PlatformStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := &models.PlatformStats{
		UsersByRole:    map[string]int64{},
		EventsByStatus: map[string]int64{},
		OrdersByStatus: map[string]int64{},
	}
	for _, u := range r.users {
		ps.UsersByRole[string(u.Role)]++
	}
	for _, e := range r.events {
		ps.EventsByStatus[string(e.Status)]++
	}
	for _, o := range r.orders {
		ps.OrdersByStatus[string(o.Status)]++
		if o.Status == models.OrderStatusCompleted {
			ps.CompletedRevenue += o.TotalAmount
			ps.TicketsSold += int64(len(o.Tickets))
		}
	}
	return ps, nil
}

// collaborators

type fakeGateway struct {
	mu        sync.Mutex
	provider  string
	verdict   *payment.Verification
	verifyErr error
	initErr   error
	inits     []payment.InitRequest
	verifies  int
}

func (g *fakeGateway) Provider() string { return g.provider }

func (g *fakeGateway) Initialize(ctx context.Context, req payment.InitRequest) (*payment.InitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	g.inits = append(g.inits, req)
	return &payment.InitResult{
		Provider:         g.provider,
		Reference:        req.Reference,
		ProviderRef:      "prov_" + req.Reference,
		AuthorizationURL: "https://pay.example.com/" + req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, lookup payment.Lookup) (*payment.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifies++
	if g.verifyErr != nil {
		return nil, g.verifyErr
	}
	v := *g.verdict
	if v.Reference == "" {
		v.Reference = lookup.Reference
	}
	return &v, nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (string, error) {
	if signature != "good" {
		return "", payment.ErrInvalidSignature
	}
	return string(payload), nil
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: make(map[string]bool)} }

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return false, l.err
	}
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Release(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []broker.OrderCompleted
	err  error
}

func (p *fakePublisher) PublishOrderCompleted(ctx context.Context, msg broker.OrderCompleted) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeMailer struct {
	codes map[string]string
	err   error
}

func (m *fakeMailer) SendVerificationCode(ctx context.Context, email, code string, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	if m.codes == nil {
		m.codes = make(map[string]string)
	}
	m.codes[email] = code
	return nil
}

func (m *fakeMailer) SendTickets(ctx context.Context, msg broker.OrderCompleted) error { return m.err }

type fakeStore struct {
	uploaded []string
	deleted  []string
	failOn   string
}

func (s *fakeStore) Upload(ctx context.Context, source string) (models.Image, error) {
	if source == s.failOn {
		return models.Image{}, errors.New("upload failed")
	}
	s.uploaded = append(s.uploaded, source)
	return models.Image{URL: source, PublicID: "pid-" + source}, nil
}

func (s *fakeStore) Delete(ctx context.Context, publicID string) error {
	s.deleted = append(s.deleted, publicID)
	return nil
}
