package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/alioptr7/the-first-sub000/internal/model"
	"github.com/alioptr7/the-first-sub000/internal/ratelimit"
	"github.com/alioptr7/the-first-sub000/internal/repository"
	echo "github.com/labstack/echo/v4"
)

const (
	HeaderUserID = "X-User-ID"

	ctxSubject = "subject_id"
	ctxProfile = "profile_type"
)

// UserLookup loads the mirrored users table.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
}

// SubjectFromCtx extracts the subject set by SubjectMiddleware.
func SubjectFromCtx(c echo.Context) (string, bool) {
	id, ok := c.Get(ctxSubject).(string)
	return id, ok && id != ""
}

// ProfileFromCtx returns the subject's profile type, or "" when unknown.
func ProfileFromCtx(c echo.Context) string {
	p, _ := c.Get(ctxProfile).(string)
	return p
}

// AccountLimits returns the per-user limits mirrored with the users snapshot.
func AccountLimits(u *model.User) ratelimit.CustomLimits {
	return ratelimit.CustomLimits{Minute: u.RateLimitMinute, Hour: u.RateLimitHour, Day: u.RateLimitDay}
}

// SubjectMiddleware identifies the caller by the X-User-ID header, which the
// fronting gateway sets after authentication. Unknown and inactive users
// are rejected.
func SubjectMiddleware(users UserLookup) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
			if id == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing user id"})
			}
			u, err := users.GetByID(c.Request().Context(), id)
			if errors.Is(err, repository.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "unknown user"})
			}
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if !u.IsActive {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "user inactive"})
			}
			c.Set(ctxSubject, u.ID)
			c.Set(ctxProfile, u.ProfileType)
			c.SetRequest(c.Request().WithContext(ratelimit.WithAccountLimits(c.Request().Context(), AccountLimits(u))))
			return next(c)
		}
	}
}
