package handler

import (
    "context"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/hostel-occupancy/internal/model"
    "github.com/iliyamo/hostel-occupancy/internal/occupancy"
)

// RoomService is the slice of occupancy.Service the HTTP layer calls.
type RoomService interface {
    ListRooms(ctx context.Context) ([]model.Room, error)
    GetRoom(ctx context.Context, id uint64) (*occupancy.RoomView, error)
    CreateRoom(ctx context.Context, in occupancy.NewRoom) (*occupancy.RoomView, error)
    UpdateRoom(ctx context.Context, id uint64, upd occupancy.RoomUpdate) (*occupancy.RoomView, error)
    DeleteRoom(ctx context.Context, id uint64) (*occupancy.Deletion, error)
    AssignStudent(ctx context.Context, roomID, studentID uint64) (*occupancy.Assignment, error)
    RemoveStudent(ctx context.Context, roomID, studentID uint64) (*occupancy.Assignment, error)
    ReconcileRoom(ctx context.Context, id uint64) (*occupancy.Reconciliation, error)
}

// RoomHandler serves /v1/rooms.
type RoomHandler struct {
    svc      RoomService
    validate *Validator
    log      *zap.Logger
}

// NewRoomHandler panics if svc is nil.
func NewRoomHandler(svc RoomService, v *Validator, log *zap.Logger) *RoomHandler {
    if svc == nil {
        panic("nil service passed to NewRoomHandler")
    }
    if v == nil {
        v = NewValidator()
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &RoomHandler{svc: svc, validate: v, log: log}
}

type createRoomRequest struct {
    Number   string   `json:"number" validate:"notblank,max=32"`
    Capacity int      `json:"capacity" validate:"required,gt=0"`
    Status   string   `json:"status" validate:"omitempty,oneof=available occupied maintenance reserved"`
    Floor    string   `json:"floor" validate:"max=32"`
    Type     string   `json:"type" validate:"max=64"`
    Hostel   string   `json:"hostel" validate:"max=128"`
    Students []uint64 `json:"students" validate:"omitempty,dive,gt=0"`
}

// Number is accepted only so a request that tries to change it can be
// rejected instead of silently ignored.
type updateRoomRequest struct {
    Number   *string `json:"number"`
    Capacity *int    `json:"capacity" validate:"omitempty,gt=0"`
    Status   *string `json:"status" validate:"omitempty,oneof=available occupied maintenance reserved"`
    Floor    *string `json:"floor" validate:"omitempty,max=32"`
    Type     *string `json:"type" validate:"omitempty,max=64"`
    Hostel   *string `json:"hostel" validate:"omitempty,max=128"`
}

type assignRequest struct {
    StudentID uint64 `json:"student_id" validate:"required,gt=0"`
}

// ListRooms handles GET /v1/rooms
func (h *RoomHandler) ListRooms(c echo.Context) error {
    items, err := h.svc.ListRooms(c.Request().Context())
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetRoom handles GET /v1/rooms/:id
func (h *RoomHandler) GetRoom(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    room, err := h.svc.GetRoom(c.Request().Context(), id)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, room)
}

// CreateRoom handles POST /v1/rooms
func (h *RoomHandler) CreateRoom(c echo.Context) error {
    var body createRoomRequest
    if ok, err := bindAndValidate(c, h.validate, &body); !ok {
        return err
    }
    room, err := h.svc.CreateRoom(c.Request().Context(), occupancy.NewRoom{
        Number:   body.Number,
        Capacity: body.Capacity,
        Status:   model.RoomStatus(body.Status),
        Floor:    body.Floor,
        Type:     body.Type,
        Hostel:   body.Hostel,
        Students: body.Students,
    })
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusCreated, room)
}

// UpdateRoom handles PUT/PATCH /v1/rooms/:id.  Both verbs apply only the
// fields present in the body.
func (h *RoomHandler) UpdateRoom(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    var body updateRoomRequest
    if ok, err := bindAndValidate(c, h.validate, &body); !ok {
        return err
    }
    if body.Number != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "room number cannot be changed"})
    }
    upd := occupancy.RoomUpdate{
        Capacity: body.Capacity,
        Floor:    body.Floor,
        Type:     body.Type,
        Hostel:   body.Hostel,
    }
    if body.Status != nil {
        st := model.RoomStatus(*body.Status)
        upd.Status = &st
    }
    room, err := h.svc.UpdateRoom(c.Request().Context(), id, upd)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, room)
}

// DeleteRoom handles DELETE /v1/rooms/:id and reports which students were
// released.
func (h *RoomHandler) DeleteRoom(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    res, err := h.svc.DeleteRoom(c.Request().Context(), id)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, res)
}

// AssignStudent handles POST /v1/rooms/:id/students
func (h *RoomHandler) AssignStudent(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    var body assignRequest
    if ok, err := bindAndValidate(c, h.validate, &body); !ok {
        return err
    }
    res, err := h.svc.AssignStudent(c.Request().Context(), id, body.StudentID)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, res)
}

// RemoveStudent handles DELETE /v1/rooms/:id/students/:student_id
func (h *RoomHandler) RemoveStudent(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    studentID, ok := parseID(c, "student_id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid student_id"})
    }
    res, err := h.svc.RemoveStudent(c.Request().Context(), id, studentID)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, res)
}

// ReconcileRoom handles POST /v1/rooms/:id/reconcile
func (h *RoomHandler) ReconcileRoom(c echo.Context) error {
    id, ok := parseID(c, "id")
    if !ok {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
    }
    res, err := h.svc.ReconcileRoom(c.Request().Context(), id)
    if err != nil {
        return writeError(c, h.log, err)
    }
    return c.JSON(http.StatusOK, res)
}
