package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/hostel-occupancy/internal/model"
	"github.com/iliyamo/hostel-occupancy/internal/occupancy"
	"github.com/iliyamo/hostel-occupancy/internal/repository"
)

func newRoomServer(t *testing.T, svc RoomService) *echo.Echo {
	t.Helper()
	e := echo.New()
	v := NewValidator()
	e.Validator = v
	h := NewRoomHandler(svc, v, nil)
	e.GET("/v1/rooms", h.ListRooms)
	e.GET("/v1/rooms/:id", h.GetRoom)
	e.POST("/v1/rooms", h.CreateRoom)
	e.PATCH("/v1/rooms/:id", h.UpdateRoom)
	e.DELETE("/v1/rooms/:id", h.DeleteRoom)
	e.POST("/v1/rooms/:id/students", h.AssignStudent)
	e.DELETE("/v1/rooms/:id/students/:student_id", h.RemoveStudent)
	e.POST("/v1/rooms/:id/reconcile", h.ReconcileRoom)
	return e
}

func newMemoryService(students int) (*occupancy.Service, *repository.MemoryStore) {
	mem := repository.NewMemoryStore()
	for i := 1; i <= students; i++ {
		mem.PutStudent(model.Student{ID: uint64(i), Name: "student"})
	}
	return occupancy.NewService(mem, mem, nil, nil, 0), mem
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRoomHandler_Flow(t *testing.T) {
	svc, mem := newMemoryService(3)
	e := newRoomServer(t, svc)

	rec := do(e, http.MethodPost, "/v1/rooms", `{"number":"A-101","capacity":2,"hostel":"North","students":[1]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, "A-101", created["number"])
	assert.EqualValues(t, 1, created["occupied"])
	assert.Len(t, created["members"], 1)

	rec = do(e, http.MethodPost, "/v1/rooms/1/students", `{"student_id":2}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assigned := decode(t, rec)
	room := assigned["room"].(map[string]interface{})
	assert.Equal(t, "occupied", room["status"])
	assert.Equal(t, "A-101", assigned["student"].(map[string]interface{})["room_number"])

	rec = do(e, http.MethodPost, "/v1/rooms/1/students", `{"student_id":3}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, occupancy.ErrRoomFull.Error(), decode(t, rec)["error"])

	rec = do(e, http.MethodGet, "/v1/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)

	rec = do(e, http.MethodGet, "/v1/rooms/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["members"], 2)

	rec = do(e, http.MethodPatch, "/v1/rooms/1", `{"status":"maintenance"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "maintenance", decode(t, rec)["status"])

	rec = do(e, http.MethodDelete, "/v1/rooms/1/students/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode(t, rec)["student"].(map[string]interface{})["room_number"])

	rec = do(e, http.MethodPost, "/v1/rooms/1/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["dropped_members"])

	rec = do(e, http.MethodDelete, "/v1/rooms/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{float64(2)}, decode(t, rec)["released"])

	s, err := mem.GetStudent(context.Background(), 2)
	require.NoError(t, err)
	assert.Nil(t, s.RoomNumber)

	rec = do(e, http.MethodGet, "/v1/rooms/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRoomHandler_BadRequests(t *testing.T) {
	svc, _ := newMemoryService(2)
	e := newRoomServer(t, svc)
	require.Equal(t, http.StatusCreated, do(e, http.MethodPost, "/v1/rooms", `{"number":"A-101","capacity":1}`).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		field  string
	}{
		{"blank number", http.MethodPost, "/v1/rooms", `{"number":"  ","capacity":1}`, http.StatusBadRequest, "number"},
		{"zero capacity", http.MethodPost, "/v1/rooms", `{"number":"B","capacity":0}`, http.StatusBadRequest, "capacity"},
		{"bad status", http.MethodPost, "/v1/rooms", `{"number":"B","capacity":1,"status":"closed"}`, http.StatusBadRequest, "status"},
		{"zero student", http.MethodPost, "/v1/rooms", `{"number":"B","capacity":1,"students":[0]}`, http.StatusBadRequest, "students[0]"},
		{"missing student id", http.MethodPost, "/v1/rooms/1/students", `{}`, http.StatusBadRequest, "student_id"},
		{"negative capacity update", http.MethodPatch, "/v1/rooms/1", `{"capacity":-2}`, http.StatusBadRequest, "capacity"},
		{"malformed json", http.MethodPost, "/v1/rooms", `{"number":`, http.StatusBadRequest, ""},
		{"bad id", http.MethodGet, "/v1/rooms/abc", "", http.StatusBadRequest, ""},
		{"zero id", http.MethodDelete, "/v1/rooms/0", "", http.StatusBadRequest, ""},
		{"bad student id", http.MethodDelete, "/v1/rooms/1/students/x", "", http.StatusBadRequest, ""},
		{"rename", http.MethodPatch, "/v1/rooms/1", `{"number":"Z"}`, http.StatusBadRequest, ""},
		{"too many members", http.MethodPost, "/v1/rooms", `{"number":"B","capacity":1,"students":[1,2]}`, http.StatusUnprocessableEntity, ""},
		{"duplicate number", http.MethodPost, "/v1/rooms", `{"number":"A-101","capacity":1}`, http.StatusConflict, ""},
		{"unknown student", http.MethodPost, "/v1/rooms/1/students", `{"student_id":9}`, http.StatusNotFound, ""},
		{"not a member", http.MethodDelete, "/v1/rooms/1/students/2", "", http.StatusConflict, ""},
		{"unknown room", http.MethodPost, "/v1/rooms/7/reconcile", "", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode(t, rec)
			assert.NotEmpty(t, body["error"])
			if tt.field != "" {
				fields, ok := body["fields"].(map[string]interface{})
				require.True(t, ok, rec.Body.String())
				assert.Contains(t, fields, tt.field)
			}
		})
	}
}

type failingService struct {
	RoomService
	err error
}

func (f failingService) AssignStudent(context.Context, uint64, uint64) (*occupancy.Assignment, error) {
	return nil, f.err
}

func TestRoomHandler_ServerErrors(t *testing.T) {
	t.Run("internal details hidden", func(t *testing.T) {
		e := newRoomServer(t, failingService{err: errors.New("dial tcp 10.0.0.1:3306: refused")})
		rec := do(e, http.MethodPost, "/v1/rooms/1/students", `{"student_id":1}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "internal error", decode(t, rec)["error"])
	})

	t.Run("inconsistency reported", func(t *testing.T) {
		inc := &occupancy.InconsistencyError{Op: "assign student", RoomID: 1, StudentID: 1,
			Cause: errors.New("student write"), CompensationErr: errors.New("room write")}
		e := newRoomServer(t, failingService{err: inc})
		rec := do(e, http.MethodPost, "/v1/rooms/1/students", `{"student_id":1}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, occupancy.ErrInconsistent.Error(), body["error"])
		assert.Contains(t, body["detail"], "room write")
	})

	t.Run("concurrent update", func(t *testing.T) {
		e := newRoomServer(t, failingService{err: occupancy.ErrConcurrentUpdate})
		rec := do(e, http.MethodPost, "/v1/rooms/1/students", `{"student_id":1}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{occupancy.ErrRoomNotFound, http.StatusNotFound},
		{occupancy.ErrStudentNotFound, http.StatusNotFound},
		{occupancy.ErrInvalidCapacity, http.StatusBadRequest},
		{occupancy.ErrInvalidStatus, http.StatusBadRequest},
		{occupancy.ErrInvalidRoomNumber, http.StatusBadRequest},
		{occupancy.ErrCapacityExceededByInitialMembers, http.StatusUnprocessableEntity},
		{occupancy.ErrRoomFull, http.StatusConflict},
		{occupancy.ErrAlreadyAssigned, http.StatusConflict},
		{occupancy.ErrAssignedElsewhere, http.StatusConflict},
		{occupancy.ErrNotAMember, http.StatusConflict},
		{occupancy.ErrRoomNumberTaken, http.StatusConflict},
		{occupancy.ErrConcurrentUpdate, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestHealth(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("down") })

	tests := []struct {
		name     string
		h        *HealthHandler
		status   int
		wantBody string
	}{
		{"memory driver", NewHealthHandler(nil, nil), http.StatusOK, "ok"},
		{"store up, redis down", NewHealthHandler(ok, map[string]Pinger{"redis": down}), http.StatusOK, "ok"},
		{"store down", NewHealthHandler(down, map[string]Pinger{"redis": ok}), http.StatusServiceUnavailable, "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/healthz", tt.h.Health)
			rec := do(e, http.MethodGet, "/healthz", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.wantBody, decode(t, rec)["status"])
		})
	}
}
