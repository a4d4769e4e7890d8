package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/roomnotify/internal/middleware"
	"github.com/charlesng35/roomnotify/internal/pushrules"
	"github.com/charlesng35/roomnotify/pkg/errors"
	"github.com/charlesng35/roomnotify/pkg/logger"
	"github.com/charlesng35/roomnotify/pkg/response"
)

// RuleSetStore persists the account's push rules.
type RuleSetStore interface {
	SaveRuleSet(ctx context.Context, userID string, rs *pushrules.RuleSet) error
}

// PushRulesHandler reads and replaces the push rules the engine evaluates.
type PushRulesHandler struct {
	cache  *pushrules.Cache
	store  RuleSetStore
	userID string
}

// NewPushRulesHandler constructs a push rules handler for the account userID.
func NewPushRulesHandler(cache *pushrules.Cache, store RuleSetStore, userID string) *PushRulesHandler {
	return &PushRulesHandler{cache: cache, store: store, userID: userID}
}

// Get returns the installed rule set.
func (h *PushRulesHandler) Get(c *gin.Context) {
	rs := h.cache.RuleSet()
	if rs == nil {
		rs = &pushrules.RuleSet{}
	}
	response.Success(c, http.StatusOK, rs)
}

// Put validates, stores and installs a replacement rule set. Only the
// account owner may change it.
func (h *PushRulesHandler) Put(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	if h.userID != "" && claims.UserID != h.userID {
		response.Error(c, errors.ErrForbidden)
		return
	}

	var rs pushrules.RuleSet
	if !bindAndValidate(c, &rs) {
		return
	}

	if err := h.store.SaveRuleSet(requestContext(c), h.userID, &rs); err != nil {
		respondRuleSetError(c, err)
		return
	}
	if err := h.cache.Set(&rs); err != nil {
		respondRuleSetError(c, err)
		return
	}

	logger.WithModule("pushrules").Info("push rules replaced",
		zap.String("user_id", claims.UserID),
		zap.Int("rules", len(rs.Ordered())),
	)
	response.Success(c, http.StatusOK, &rs)
}

func respondRuleSetError(c *gin.Context, err error) {
	if appErr := errors.FromError(err); appErr.Code == errors.ErrInvalidRuleSet.Code && appErr.Internal != nil {
		response.Error(c, errors.New(appErr.Code, appErr.Message+": "+appErr.Internal.Error(), appErr.StatusCode))
		return
	}
	response.Error(c, err)
}
