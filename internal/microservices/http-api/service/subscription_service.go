package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/stripe/stripe-go/v82"

	"geminichat/internal/billing"
	"geminichat/internal/microservices/http-api/models"
	"geminichat/internal/microservices/http-api/repository"
	"geminichat/internal/quota"
	"geminichat/internal/shared"
)

var ErrBillingDisabled = errors.New("billing is not configured")

// SubscriptionStatus is what GET /subscription/status reports.
type SubscriptionStatus struct {
	Tier       shared.Tier `json:"tier"`
	DailyLimit *int        `json:"daily_limit"` // nil for unlimited
	UsedToday  int64       `json:"used_today"`
}

type SubscriptionService interface {
	StartProCheckout(ctx context.Context, userID int64) (checkoutURL string, err error)
	Status(ctx context.Context, userID int64) (*SubscriptionStatus, error)
	Latest(ctx context.Context, userID int64) (*models.Subscription, error)
	// HandleWebhook verifies and applies a Stripe event. Unknown event types are accepted and ignored.
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type subscriptionService struct {
	users      repository.UserRepository
	subs       repository.SubscriptionRepository
	counter    quota.Counter
	gateway    billing.Gateway
	basicLimit int
	log        *slog.Logger
}

// NewSubscriptionService wires billing. A nil gateway disables checkout and webhooks.
func NewSubscriptionService(
	users repository.UserRepository,
	subs repository.SubscriptionRepository,
	counter quota.Counter,
	gateway billing.Gateway,
	basicDailyLimit int,
	log *slog.Logger,
) SubscriptionService {
	if log == nil {
		log = slog.Default()
	}
	return &subscriptionService{
		users:      users,
		subs:       subs,
		counter:    counter,
		gateway:    gateway,
		basicLimit: basicDailyLimit,
		log:        log,
	}
}

func (s *subscriptionService) StartProCheckout(ctx context.Context, userID int64) (string, error) {
	if s.gateway == nil {
		return "", ErrBillingDisabled
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.SubscriptionTier == shared.TierPro {
		return "", fmt.Errorf("%w: already subscribed to pro", shared.ErrConflict)
	}

	customerID := ""
	if user.StripeCustomerID != nil {
		customerID = *user.StripeCustomerID
	}
	checkout, err := s.gateway.CreateCheckout(ctx, userID, customerID)
	if err != nil {
		return "", err
	}

	sub := &models.Subscription{
		UserID:   userID,
		Tier:     shared.TierPro,
		StripeID: checkout.SessionID,
		Status:   models.SubscriptionPending,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return "", err
	}
	s.log.Info("checkout_started", "user_id", userID, "session_id", checkout.SessionID)
	return checkout.URL, nil
}

func (s *subscriptionService) Status(ctx context.Context, userID int64) (*SubscriptionStatus, error) {
	tier, err := s.users.GetTier(ctx, userID)
	if err != nil {
		return nil, err
	}
	status := &SubscriptionStatus{Tier: tier}
	if tier == shared.TierPro {
		return status, nil
	}

	limit := s.basicLimit
	status.DailyLimit = &limit
	used, err := s.counter.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	status.UsedToday = used
	return status, nil
}

func (s *subscriptionService) Latest(ctx context.Context, userID int64) (*models.Subscription, error) {
	return s.subs.Latest(ctx, userID)
}

func (s *subscriptionService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.gateway == nil {
		return ErrBillingDisabled
	}
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("%w: decode checkout session: %w", shared.ErrInvalidInput, err)
		}
		return s.activate(ctx, &sess)
	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("%w: decode invoice: %w", shared.ErrInvalidInput, err)
		}
		if inv.Customer == nil {
			return nil
		}
		return s.downgrade(ctx, inv.Customer.ID, "", models.SubscriptionPastDue)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("%w: decode subscription: %w", shared.ErrInvalidInput, err)
		}
		if sub.Customer == nil {
			return nil
		}
		return s.downgrade(ctx, sub.Customer.ID, sub.ID, models.SubscriptionCanceled)
	default:
		s.log.Debug("stripe_event_ignored", "type", event.Type, "event_id", event.ID)
		return nil
	}
}

func (s *subscriptionService) activate(ctx context.Context, sess *stripe.CheckoutSession) error {
	userID, err := strconv.ParseInt(sess.ClientReferenceID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: client_reference_id %q", shared.ErrInvalidInput, sess.ClientReferenceID)
	}

	if err := s.users.UpdateTier(ctx, userID, shared.TierPro); err != nil {
		return err
	}
	if sess.Customer != nil && sess.Customer.ID != "" {
		if err := s.users.SetStripeCustomer(ctx, userID, sess.Customer.ID); err != nil {
			return err
		}
	}

	stripeID := sess.ID
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		stripeID = sess.Subscription.ID
	}

	sub, err := s.subs.FindByStripeID(ctx, sess.ID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		err = s.subs.Create(ctx, &models.Subscription{
			UserID:   userID,
			Tier:     shared.TierPro,
			StripeID: stripeID,
			Status:   models.SubscriptionActive,
		})
	case err == nil:
		sub.StripeID = stripeID
		sub.Status = models.SubscriptionActive
		err = s.subs.Update(ctx, sub)
	}
	if err != nil {
		return err
	}

	s.log.Info("subscription_activated", "user_id", userID, "stripe_id", stripeID)
	return nil
}

// downgrade moves the customer's user back to basic and marks their subscription row.
func (s *subscriptionService) downgrade(ctx context.Context, customerID, stripeSubID string, status models.SubscriptionStatus) error {
	user, err := s.users.FindByStripeCustomer(ctx, customerID)
	if errors.Is(err, shared.ErrNotFound) {
		s.log.Warn("stripe_customer_unknown", "customer_id", customerID)
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.users.UpdateTier(ctx, user.ID, shared.TierBasic); err != nil {
		return err
	}

	var sub *models.Subscription
	if stripeSubID != "" {
		sub, err = s.subs.FindByStripeID(ctx, stripeSubID)
	}
	if sub == nil {
		sub, err = s.subs.Latest(ctx, user.ID)
	}
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	sub.Status = status
	if err := s.subs.Update(ctx, sub); err != nil {
		return err
	}
	s.log.Info("subscription_downgraded", "user_id", user.ID, "status", status)
	return nil
}
