package service

import (
	"context"
	"sync"
	"time"

	"parkreserve-backend/internal/domain"
	"parkreserve-backend/internal/events"
	"parkreserve-backend/internal/repository"
	"parkreserve-backend/internal/repository/memory"
	"parkreserve-backend/internal/security"
	"parkreserve-backend/internal/utils"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var startOfTest = time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type recordingAlerts struct {
	mu      sync.Mutex
	alerts  []domain.FraudEvent
	digests [][]domain.FraudEvent
}

func (a *recordingAlerts) SendFraudAlert(ctx context.Context, ev *domain.FraudEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, *ev)
	return nil
}

func (a *recordingAlerts) SendFraudDigest(ctx context.Context, evs []domain.FraudEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.digests = append(a.digests, evs)
	return nil
}

func testCatalog() []domain.Resource {
	return []domain.Resource{
		{ID: 1, Name: "Pavilion A", Type: domain.ResourceTypeVenue, Capacity: 150, HourlyRateCents: 150000, DailyRateCents: 900000, Active: true},
		{ID: 2, Name: "Tennis Court 1", Type: domain.ResourceTypeAmenity, Capacity: 4, HourlyRateCents: 20000, DailyRateCents: 120000, Active: true},
		{ID: 3, Name: "Picnic Grove", Type: domain.ResourceTypeAmenity, Capacity: 40, DailyRateCents: 50000},
	}
}

type fixture struct {
	store       *memory.Store
	clock       *fakeClock
	publisher   *recordingPublisher
	alerts      *recordingAlerts
	issuer      security.TokenIssuer
	catalog     CatalogService
	holds       HoldService
	reservation ReservationService
	checkin     CheckinService
}

func newFixture() *fixture {
	return newFixtureWithRepo(nil)
}

// newFixtureWithRepo lets a test wrap the reservation repository.
func newFixtureWithRepo(wrap func(repository.ReservationRepository) repository.ReservationRepository) *fixture {
	return buildFixture(wrap, 0)
}

func newFixtureWithReviewTimeout(timeout time.Duration) *fixture {
	return buildFixture(nil, timeout)
}

func buildFixture(wrap func(repository.ReservationRepository) repository.ReservationRepository, reviewTimeout time.Duration) *fixture {
	f := &fixture{
		store:     memory.NewStore(testCatalog()),
		clock:     &fakeClock{now: startOfTest},
		publisher: &recordingPublisher{},
		alerts:    &recordingAlerts{},
		issuer:    security.NewTokenIssuer(testSecret, "parkreserve"),
	}
	var reservations repository.ReservationRepository = f.store.ReservationRepository
	if wrap != nil {
		reservations = wrap(reservations)
	}
	clock := Clock(f.clock.Now)
	f.catalog = NewCatalogService(f.store.ResourceRepository)
	f.holds = NewHoldService(reservations, f.publisher, clock, reviewTimeout)
	f.reservation = NewReservationService(f.store.ResourceRepository, reservations, f.holds, f.issuer, f.publisher, clock, ReservationPolicy{
		HoldWindow:        24 * time.Hour,
		PricingRule:       utils.PricingRuleDaily,
		BookingCodePrefix: "RSV",
		Location:          time.UTC,
		ReviewTimeout:     reviewTimeout,
	})
	f.checkin = NewCheckinService(f.store.CheckinRepository, f.issuer, f.alerts, f.publisher, clock)
	return f
}

func booking(resourceID int32, start, end string) CreateReservationInput {
	return CreateReservationInput{
		ResourceID: resourceID,
		Requester:  domain.Requester{Name: "Maria Santos", Contact: "+63 917 555 0101", Category: domain.RequesterResident},
		Date:       "2025-03-01",
		StartTime:  start,
		EndTime:    end,
		GuestCount: 40,
	}
}
