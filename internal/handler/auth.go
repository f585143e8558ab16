package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/avekor/giftcode-vending/internal/utils"
)

const (
	buyerTokenTTL = 24 * time.Hour
	adminTokenTTL = time.Hour
)

// AuthHandler issues the JWTs the rest of the API runs on.  There is no
// user table: buyers are chat users vouched for by the trusted gateway,
// which authenticates with a shared key and requests a token per buyer.
// Admin tokens are issued against the operator password.
type AuthHandler struct {
	JWTSecret         string
	GatewayKeyHash    string
	AdminPasswordHash string
	Log               *zap.Logger
}

// NewAuthHandler wires the auth handler to its configured credentials.
func NewAuthHandler(jwtSecret, gatewayKeyHash, adminPasswordHash string, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		JWTSecret:         jwtSecret,
		GatewayKeyHash:    gatewayKeyHash,
		AdminPasswordHash: adminPasswordHash,
		Log:               log,
	}
}

type buyerTokenRequest struct {
	GatewayKey string `json:"gateway_key"`
	BuyerID    int64  `json:"buyer_id"`
}

// IssueBuyerToken returns a BUYER token for the given chat user.  Only
// the gateway holds the key, so buyers cannot mint tokens for each
// other.
// POST /v1/auth/token
func (h *AuthHandler) IssueBuyerToken(c echo.Context) error {
	var req buyerTokenRequest
	if err := c.Bind(&req); err != nil || req.BuyerID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "buyer_id is required"})
	}
	if bcrypt.CompareHashAndPassword([]byte(h.GatewayKeyHash), []byte(req.GatewayKey)) != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	token, err := utils.CreateToken(h.JWTSecret, req.BuyerID, utils.RoleBuyer, buyerTokenTTL)
	if err != nil {
		h.Log.Error("buyer token signing failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"token":      token,
		"expires_in": int64(buyerTokenTTL.Seconds()),
	})
}

type adminTokenRequest struct {
	Password string `json:"password"`
}

// IssueAdminToken returns an ADMIN token against the operator password.
// POST /v1/auth/admin
func (h *AuthHandler) IssueAdminToken(c echo.Context) error {
	var req adminTokenRequest
	if err := c.Bind(&req); err != nil || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password is required"})
	}
	if bcrypt.CompareHashAndPassword([]byte(h.AdminPasswordHash), []byte(req.Password)) != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	token, err := utils.CreateToken(h.JWTSecret, 0, utils.RoleAdmin, adminTokenTTL)
	if err != nil {
		h.Log.Error("admin token signing failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"token":      token,
		"expires_in": int64(adminTokenTTL.Seconds()),
	})
}
