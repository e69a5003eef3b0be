package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"pumptrack/internal/auth"
	"pumptrack/internal/config"
	"pumptrack/internal/entity"
	"pumptrack/internal/model"
	"pumptrack/internal/model/memory"
	"pumptrack/internal/storage"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	router *gin.Engine
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	store := memory.New()
	for _, row := range []entity.Row{
		{"reg_id": "R1", "ip_name": "Acme", "district": "North", "block": "B1"},
		{"reg_id": "R2", "ip_name": "Acme", "district": "South", "block": "B2"},
		{"reg_id": "R3", "ip_name": "Sunrise", "district": "North", "block": "B1"},
	} {
		_, err := store.Insert(ctx, entity.TablePortal, row)
		require.NoError(t, err)
	}
	for _, row := range []entity.Row{
		{"reg_id": "R1", "planned_3": "2024-02-01"},
		{"reg_id": "R2", "planned_3": "2024-02-01", "actual_3": "2024-02-03 12:00:00"},
	} {
		_, err := store.Insert(ctx, entity.TableDispatchMaterial, row)
		require.NoError(t, err)
	}

	files, err := storage.NewLocalStorage(t.TempDir(), "/files")
	require.NoError(t, err)

	cfg := config.Config{
		JWTSecret:      "test-secret",
		StorageBucket:  "documents",
		MaxUploadBytes: 1 << 20,
	}
	handler, err := NewHTTPHandler(cfg, store, files)
	require.NoError(t, err)

	r := gin.New()
	handler.RegisterRoutes(r)
	return &testServer{router: r, store: store}
}

func (s *testServer) addUser(t *testing.T, login, role, status string, pages ...string) *entity.DbUser {
	t.Helper()
	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	user := &entity.DbUser{
		UserID:       login,
		PasswordHash: hash,
		UserName:     login,
		Role:         role,
		PageAccess:   entity.CommaList(pages),
		Status:       status,
	}
	require.NoError(t, s.store.CreateUser(context.Background(), user))
	return user
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, login string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"user_id": login, "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp entity.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeAPIError(t *testing.T, w *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apiErr))
	return apiErr
}

func TestRegisterOnlyFirstUser(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/auth/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"has_user":false}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"user_id": "boss", "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp entity.AuthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, entity.UserRoleAdmin, resp.User.Role)
	assert.Equal(t, auth.AllPages(), resp.User.PageAccess)

	w = s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"user_id": "second", "password": "password123"})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, ErrCodeRegistrationClosed, decodeAPIError(t, w).Code)
}

func TestLoginFailures(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "field", entity.UserRoleUser, entity.UserStatusActive, entity.PageFoundation)
	s.addUser(t, "gone", entity.UserRoleUser, entity.UserStatusInactive, entity.PageFoundation)

	w := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"user_id": "field", "password": "wrong-password"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrCodeInvalidCredentials, decodeAPIError(t, w).Code)

	w = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"user_id": "gone", "password": "password123"})
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, ErrCodeUserDisabled, decodeAPIError(t, w).Code)

	// 登录名不区分大小写
	token := s.login(t, "FIELD")
	w = s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"field"`)

	w = s.do(t, http.MethodGet, "/api/stages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPageAccess(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "field", entity.UserRoleUser, entity.UserStatusActive, entity.PageFoundation)
	token := s.login(t, "field")

	w := s.do(t, http.MethodGet, "/api/stages", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Stages []StageSummary `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Stages, 1)
	assert.Equal(t, "foundation", list.Stages[0].Key)
	assert.Equal(t, "actual_3", list.Stages[0].ActualColumn)

	w = s.do(t, http.MethodGet, "/api/stages/foundation", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/stages/payment", token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, ErrCodePageDenied, decodeAPIError(t, w).Code)

	w = s.do(t, http.MethodGet, "/api/dashboard", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/users", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/stages/warehouse", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrCodeStageNotFound, decodeAPIError(t, w).Code)
}

func TestGetStageBucketsAndFilters(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "admin", entity.UserRoleAdmin, entity.UserStatusActive)
	token := s.login(t, "admin")

	w := s.do(t, http.MethodGet, "/api/stages/foundation", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp StageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Pending, 1)
	require.Len(t, resp.History, 1)
	assert.Equal(t, "R1", resp.Pending[0]["reg_id"])
	assert.Equal(t, "pending", resp.Pending[0]["status"])
	assert.Equal(t, "completed", resp.History[0]["status"])
	assert.Equal(t, []string{"North", "South"}, resp.Facets["district"])

	w = s.do(t, http.MethodGet, "/api/stages/foundation?district=South", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Pending)
	require.Len(t, resp.History, 1)

	w = s.do(t, http.MethodGet, "/api/stages/foundation?search=acme", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Pending, 1)
	assert.Len(t, resp.History, 1)
}

func TestSubmitStageJSON(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "field", entity.UserRoleUser, entity.UserStatusActive, entity.PageFoundation)
	token := s.login(t, "field")

	w := s.do(t, http.MethodPost, "/api/stages/foundation/submit", token, gin.H{
		"reg_ids": []string{"R1", ""},
		"fields":  gin.H{"invoice_no": "INV-1"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp SubmitStageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Updated)
	assert.Equal(t, 1, resp.Skipped)

	rows, err := s.store.Select(context.Background(), entity.TableDispatchMaterial, model.SelectQuery{
		Equals: map[string]interface{}{"reg_id": "R1"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "INV-1", rows[0].String("invoice_no"))
	assert.NotEmpty(t, rows[0].String("actual_3"))

	w = s.do(t, http.MethodPost, "/api/stages/foundation/submit", token, gin.H{
		"reg_ids": []string{"R1"},
		"fields":  gin.H{"actual_3": "2020-01-01"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/stages/foundation/submit", token, gin.H{
		"reg_ids": []string{"R9"},
		"fields":  gin.H{"invoice_no": "INV-2"},
	})
	require.Equal(t, http.StatusBadGateway, w.Code)
	apiErr := decodeAPIError(t, w)
	assert.Equal(t, ErrCodeBulkUpdateFailed, apiErr.Code)
	assert.Contains(t, apiErr.Message, "R9")
}

func TestSubmitStageMultipart(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "admin", entity.UserRoleAdmin, entity.UserStatusActive)
	token := s.login(t, "admin")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("reg_ids", "R1,R2"))
	require.NoError(t, mw.WriteField("fields[vehicle_no]", "GJ-01"))
	part, err := mw.CreateFormFile("attachment", "invoice.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/stages/foundation/submit", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp SubmitStageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Updated)
	assert.True(t, strings.HasPrefix(resp.AttachmentURL, "/files/documents/foundation/bulk/"), resp.AttachmentURL)
	assert.True(t, strings.HasSuffix(resp.AttachmentURL, ".pdf"), resp.AttachmentURL)

	rows, err := s.store.Select(context.Background(), entity.TableDispatchMaterial, model.SelectQuery{})
	require.NoError(t, err)
	for _, row := range rows {
		assert.Equal(t, "GJ-01", row.String("vehicle_no"))
		assert.Equal(t, resp.AttachmentURL, row.String("invoice_copy"))
	}
}

func TestSubmitStageAttachmentTooLarge(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "admin", entity.UserRoleAdmin, entity.UserStatusActive)
	token := s.login(t, "admin")

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("reg_ids", "R1"))
	part, err := mw.CreateFormFile("attachment", "big.jpg")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("x"), (1<<20)+10))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/stages/foundation/submit", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
	assert.Equal(t, ErrCodeAttachmentTooLarge, decodeAPIError(t, w).Code)
}

func TestScheduleStage(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "admin", entity.UserRoleAdmin, entity.UserStatusActive)
	token := s.login(t, "admin")

	w := s.do(t, http.MethodPost, "/api/stages/foundation/rows", token, gin.H{"reg_id": "R3", "planned": "2024-03-01"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"planned_3":"2024-03-01"`)

	w = s.do(t, http.MethodPost, "/api/stages/foundation/rows", token, gin.H{"reg_id": "R3"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrCodeAlreadyScheduled, decodeAPIError(t, w).Code)

	w = s.do(t, http.MethodPost, "/api/stages/foundation/rows", token, gin.H{"reg_id": "R404"})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrCodeRegIDNotFound, decodeAPIError(t, w).Code)

	w = s.do(t, http.MethodPost, "/api/stages/foundation/rows", token, gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDashboardAndExports(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "viewer", entity.UserRoleUser, entity.UserStatusActive, entity.PageDashboard, entity.PageFoundation)
	token := s.login(t, "viewer")

	w := s.do(t, http.MethodGet, "/api/dashboard", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dashboard struct {
		Summaries []map[string]any `json:"summaries"`
		Totals    map[string]any   `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dashboard))
	assert.Len(t, dashboard.Summaries, 3)
	assert.EqualValues(t, 3, dashboard.Totals["total_projects"])

	w = s.do(t, http.MethodGet, "/api/dashboard/export", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "dashboard-")

	w = s.do(t, http.MethodGet, "/api/stages/foundation/export?bucket=history", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "foundation-history-")
	assert.NotZero(t, w.Body.Len())

	w = s.do(t, http.MethodGet, "/api/stages/foundation/export?bucket=archive", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserManagement(t *testing.T) {
	s := newTestServer(t)
	admin := s.addUser(t, "admin", entity.UserRoleAdmin, entity.UserStatusActive)
	token := s.login(t, "admin")

	w := s.do(t, http.MethodPost, "/api/users", token, gin.H{
		"user_id":     "ravi",
		"password":    "password123",
		"role":        "user",
		"page_access": []string{"payment", "Foundation", "Nowhere"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created entity.UserSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, entity.UserRoleUser, created.Role)
	assert.Equal(t, entity.UserStatusActive, created.Status)
	assert.Equal(t, []string{entity.PageFoundation, entity.PagePayment}, created.PageAccess)

	w = s.do(t, http.MethodPost, "/api/users", token, gin.H{"user_id": "RAVI", "password": "password123", "role": "User"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, ErrCodeUserExists, decodeAPIError(t, w).Code)

	w = s.do(t, http.MethodPost, "/api/users", token, gin.H{"user_id": "x", "password": "password123", "role": "Owner"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	path := "/api/users/" + jsonNumber(created.ID)
	w = s.do(t, http.MethodPatch, path, token, gin.H{"page_access": []string{"Installation"}, "status": "inactive"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated entity.UserSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, []string{entity.PageInstallation}, updated.PageAccess)
	assert.Equal(t, entity.UserStatusInactive, updated.Status)

	w = s.do(t, http.MethodGet, "/api/users?keyword=rav", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list entity.UserListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Users, 1)
	assert.Equal(t, "ravi", list.Users[0].UserID)

	w = s.do(t, http.MethodDelete, "/api/users/"+jsonNumber(admin.ID), token, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeCannotDeleteSelf, decodeAPIError(t, w).Code)

	w = s.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = s.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDisabledUserLosesSession(t *testing.T) {
	s := newTestServer(t)
	user := s.addUser(t, "field", entity.UserRoleUser, entity.UserStatusActive, entity.PageFoundation)
	token := s.login(t, "field")

	status := entity.UserStatusInactive
	require.NoError(t, s.store.UpdateUser(context.Background(), user.ID, entity.UserUpdates{Status: &status}))

	w := s.do(t, http.MethodGet, "/api/stages/foundation", token, nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, ErrCodeUserDisabled, decodeAPIError(t, w).Code)
}

func jsonNumber(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestPasswordChangeRevokesSession(t *testing.T) {
	s := newTestServer(t)
	s.addUser(t, "admin", entity.UserRoleAdmin, entity.UserStatusActive)
	field := s.addUser(t, "field", entity.UserRoleUser, entity.UserStatusActive, entity.PageFoundation)
	adminToken := s.login(t, "admin")
	fieldToken := s.login(t, "field")

	w := s.do(t, http.MethodPatch, "/api/users/"+jsonNumber(field.ID), adminToken, gin.H{"password": "new-password-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/stages/foundation", fieldToken, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrCodeSessionExpired, decodeAPIError(t, w).Code)

	w = s.do(t, http.MethodGet, "/api/stages/foundation", "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, ErrCodeUnauthorized, decodeAPIError(t, w).Code)
}
