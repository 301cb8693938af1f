package middleware

// identity.go holds the caller lookup shared by the rate limiter and the
// request logger.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// userID returns the subject stored by JWTAuth, or "anon" for requests
// that were not authenticated.  JSON numbers arrive as float64.
func userID(c echo.Context) string {
    switch v := c.Get("user_id").(type) {
    case string:
        if v != "" {
            return v
        }
    case float64:
        return strconv.FormatUint(uint64(v), 10)
    case uint64:
        return strconv.FormatUint(v, 10)
    case int64:
        return strconv.FormatInt(v, 10)
    case int:
        return strconv.Itoa(v)
    }
    return "anon"
}
