package handler // handler maps HTTP requests onto the occupancy service

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/go-playground/validator/v10"
    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/hostel-occupancy/internal/occupancy"
)

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, false
    }
    return id, true
}

// bindAndValidate binds the JSON body into dst and runs struct validation.
// It writes the 400 response itself and reports whether the handler should
// go on.
func bindAndValidate(c echo.Context, v *Validator, dst interface{}) (bool, error) {
    if err := c.Bind(dst); err != nil {
        return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if err := v.Validate(dst); err != nil {
        var verrs validator.ValidationErrors
        if errors.As(err, &verrs) {
            return false, c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": v.fieldErrors(verrs)})
        }
        return false, c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    return true, nil
}

// statusFor maps an occupancy error to an HTTP status.
func statusFor(err error) int {
    switch {
    case occupancy.IsNotFound(err):
        return http.StatusNotFound
    case errors.Is(err, occupancy.ErrInvalidCapacity),
        errors.Is(err, occupancy.ErrInvalidStatus),
        errors.Is(err, occupancy.ErrInvalidRoomNumber):
        return http.StatusBadRequest
    case errors.Is(err, occupancy.ErrCapacityExceededByInitialMembers):
        return http.StatusUnprocessableEntity
    case occupancy.IsInvariantViolation(err),
        errors.Is(err, occupancy.ErrConcurrentUpdate):
        return http.StatusConflict
    default:
        return http.StatusInternalServerError
    }
}

// writeError answers with {"error": ...}.  Server errors are logged and,
// apart from inconsistencies which an operator must act on, replaced by a
// generic message.
func writeError(c echo.Context, log *zap.Logger, err error) error {
    status := statusFor(err)
    if status < http.StatusInternalServerError {
        return c.JSON(status, echo.Map{"error": rootMessage(err)})
    }
    log.Error("request failed",
        zap.String("method", c.Request().Method),
        zap.String("path", c.Request().URL.Path),
        zap.Error(err),
    )
    if occupancy.IsPartialFailure(err) {
        return c.JSON(status, echo.Map{"error": occupancy.ErrInconsistent.Error(), "detail": err.Error()})
    }
    return c.JSON(status, echo.Map{"error": "internal error"})
}

// rootMessage returns the message of the sentinel behind err so clients
// get a stable string rather than the wrapped chain.
func rootMessage(err error) string {
    for _, target := range []error{
        occupancy.ErrRoomNotFound, occupancy.ErrStudentNotFound,
        occupancy.ErrRoomFull, occupancy.ErrAlreadyAssigned, occupancy.ErrAssignedElsewhere,
        occupancy.ErrNotAMember, occupancy.ErrCapacityExceededByInitialMembers,
        occupancy.ErrInvalidCapacity, occupancy.ErrInvalidStatus, occupancy.ErrInvalidRoomNumber,
        occupancy.ErrRoomNumberTaken, occupancy.ErrConcurrentUpdate,
    } {
        if errors.Is(err, target) {
            return target.Error()
        }
    }
    return err.Error()
}
