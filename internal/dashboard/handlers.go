package dashboard

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storeprice/internal/i18n"
	"storeprice/internal/prefs"
	"storeprice/internal/selection"
	"storeprice/internal/session"
	"storeprice/internal/view"
	"storeprice/models"
)

type filterRequest struct {
	Search   string `json:"search"`
	Category string `json:"category"`
}

type currencyRequest struct {
	Code string `json:"code"`
}

type languageRequest struct {
	Language string `json:"language"`
}

type createSessionRequest struct {
	Currency string `json:"currency"`
	Language string `json:"language"`
}

func errorJSON(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func (s *Server) handleState(c *gin.Context) {
	snap := s.deps.Store.Snapshot()
	feedStats := s.deps.Feed.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"state":      snap.State,
		"version":    snap.Version,
		"items":      len(snap.Items),
		"updated_at": snap.UpdatedAt,
		"rows":       s.deps.Feed.Len(),
		"feed":       feedStats,
		"rates_live": s.deps.Currencies.Live(),
		"rates_at":   s.deps.Currencies.RefreshedAt(),
		"sessions":   s.deps.Sessions.Len(),
	})
}

// handleCategories lists every category with its item count and its label
// in the language given by ?lang.
func (s *Server) handleCategories(c *gin.Context) {
	lang := i18n.Language(c.Query("lang"))
	counts := view.CountByCategory(s.deps.Store.Items())
	payload := make([]gin.H, 0, len(models.Categories))
	for _, cat := range view.Categories() {
		payload = append(payload, gin.H{"category": cat, "label": i18n.CategoryLabel(lang, cat), "count": counts[cat]})
	}
	c.JSON(http.StatusOK, gin.H{"categories": payload})
}

func (s *Server) handleCurrencies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default":    s.deps.Currencies.Default().Code,
		"live":       s.deps.Currencies.Live(),
		"currencies": s.deps.Currencies.All(),
	})
}

// handleItem renders one item in the currency given by ?currency, the
// default currency otherwise, with names in the language given by ?lang.
func (s *Server) handleItem(c *gin.Context) {
	it, ok := s.deps.Store.Lookup(c.Param("id"))
	if !ok {
		errorJSON(c, http.StatusNotFound, session.ErrUnknownItem)
		return
	}
	cur := s.deps.Currencies.Resolve(c.Query("currency"))
	c.JSON(http.StatusOK, session.RenderItem(it, cur, i18n.Language(c.Query("lang"))))
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
	}
	code, lang := req.Currency, req.Language
	if code == "" || lang == "" {
		p := s.loadPreferences(c)
		if code == "" {
			code = p.Currency
		}
		if lang == "" {
			lang = p.Language
		}
	}

	sess := s.deps.Sessions.Create(code)
	sess.SetLanguage(prefs.MatchLanguage(lang))
	s.observeSessions()
	c.JSON(http.StatusCreated, sess.View())
}

func (s *Server) handleCloseSession(c *gin.Context) {
	if !s.deps.Sessions.Close(c.Param("sid")) {
		errorJSON(c, http.StatusNotFound, session.ErrNotFound)
		return
	}
	s.observeSessions()
	c.Status(http.StatusNoContent)
}

// withSession resolves :sid or answers 404.
func (s *Server) withSession(next func(*gin.Context, *session.Session)) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := s.deps.Sessions.Get(c.Param("sid"))
		if err != nil {
			errorJSON(c, http.StatusNotFound, err)
			return
		}
		next(c, sess)
	}
}

func (s *Server) handleView(c *gin.Context, sess *session.Session) {
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) handleFilter(c *gin.Context, sess *session.Session) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	sess.SetFilter(req.Search, models.ParseCategory(req.Category))
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) handleCurrency(c *gin.Context, sess *session.Session) {
	var req currencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	sess.SetCurrency(req.Code)
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) handleLanguage(c *gin.Context, sess *session.Session) {
	var req languageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	sess.SetLanguage(prefs.MatchLanguage(req.Language))
	c.JSON(http.StatusOK, sess.View())
}

func (s *Server) handleToggle(c *gin.Context, sess *session.Session) {
	selected, err := sess.Toggle(c.Param("id"))
	switch {
	case errors.Is(err, selection.ErrLimitReached):
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveSelectionRejected()
		}
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":     err.Error(),
			"notice":    i18n.Strings(sess.Language()).MaxItems,
			"selection": sess.Selection(),
		})
		return
	case errors.Is(err, session.ErrUnknownItem):
		errorJSON(c, http.StatusNotFound, err)
		return
	case err != nil:
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": selected, "selection": sess.Selection()})
}

func (s *Server) handleDeselect(c *gin.Context, sess *session.Session) {
	sess.Deselect(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"selection": sess.Selection()})
}

func (s *Server) handleClearSelection(c *gin.Context, sess *session.Session) {
	sess.ClearSelection()
	c.JSON(http.StatusOK, gin.H{"selection": sess.Selection()})
}

func (s *Server) handleCompare(c *gin.Context, sess *session.Session) {
	v := sess.View()
	c.JSON(http.StatusOK, gin.H{"currency": v.Currency, "items": v.Compare})
}

func (s *Server) handleRefreshRates(c *gin.Context) {
	if s.deps.Refresher == nil {
		errorJSON(c, http.StatusServiceUnavailable, errors.New("no rate provider configured"))
		return
	}
	if err := s.deps.Refresher.Refresh(c.Request.Context()); err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"error":      err.Error(),
			"currencies": s.deps.Currencies.All(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"refreshed_at": s.deps.Currencies.RefreshedAt().Format(time.RFC3339),
		"currencies":   s.deps.Currencies.All(),
	})
}

// loadPreferences returns the stored preferences. Keys never stored take
// their value from the request's Accept-Language and the default currency.
func (s *Server) loadPreferences(c *gin.Context) prefs.Preferences {
	p := prefs.Defaults()
	p.Language = prefs.MatchLanguage(c.GetHeader("Accept-Language"))
	p.Currency = s.deps.Currencies.Default().Code
	if s.deps.Prefs == nil {
		return p
	}
	stored, err := s.deps.Prefs.LoadOver(c.Request.Context(), p)
	if err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("failed to load preferences")
		return p
	}
	return stored.Normalize(s.resolveCurrency)
}

func (s *Server) resolveCurrency(code string) string {
	return s.deps.Currencies.Resolve(code).Code
}

func (s *Server) handleGetPreferences(c *gin.Context) {
	p := s.loadPreferences(c)
	c.JSON(http.StatusOK, gin.H{
		"preferences": p,
		"direction":   prefs.Direction(p.Language),
		"strings":     i18n.Strings(p.Language),
		"categories":  i18n.CategoryLabels(p.Language),
		"persisted":   s.deps.Prefs != nil,
	})
}

func (s *Server) handlePutPreferences(c *gin.Context) {
	var req prefs.Preferences
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	p := req.Normalize(s.resolveCurrency)
	if s.deps.Prefs == nil {
		errorJSON(c, http.StatusServiceUnavailable, errors.New("preferences are not persisted"))
		return
	}
	if err := s.deps.Prefs.Save(c.Request.Context(), p); err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"preferences": p,
		"direction":   prefs.Direction(p.Language),
		"strings":     i18n.Strings(p.Language),
		"categories":  i18n.CategoryLabels(p.Language),
	})
}

func (s *Server) observeSessions() {
	if s.deps.Metrics != nil {
		s.deps.Metrics.SetSessions(s.deps.Sessions.Len())
	}
}
