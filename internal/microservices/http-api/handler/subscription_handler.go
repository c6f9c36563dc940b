package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"geminichat/internal/microservices/http-api/dto"
	"geminichat/internal/microservices/http-api/service"
)

// maxWebhookBody matches Stripe's documented upper bound for event payloads.
const maxWebhookBody = 65536

type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
}

func NewSubscriptionHandler(subscriptions service.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

func (h *SubscriptionHandler) SubscribePro(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	url, err := h.subscriptions.StartProCheckout(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CheckoutResponse{CheckoutURL: url})
}

func (h *SubscriptionHandler) Status(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	status, err := h.subscriptions.Status(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *SubscriptionHandler) Mine(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	sub, err := h.subscriptions.Latest(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *SubscriptionHandler) StripeWebhook(c *gin.Context) {
	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing Stripe signature header"})
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.subscriptions.HandleWebhook(c.Request.Context(), payload, signature); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.WebhookResponse{Status: "success"})
}
