package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"foodforge/internal/attendance"
	"foodforge/internal/auth"
	"foodforge/internal/identity"
	"foodforge/internal/meal"
	"foodforge/internal/menu"
	"foodforge/internal/report"
	"foodforge/internal/token"
)

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.d.Health {
		healthy := check(c.Request.Context())
		body[name] = healthy
		if !healthy {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Auth ----------

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates a student account. Admins are provisioned out of band.
func (h *Handler) Register(c *gin.Context) {
	var in identity.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.Role = identity.RoleStudent
	id, err := h.d.Identities.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, id)
}

func (h *Handler) Login(c *gin.Context) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, tokens, err := h.d.Identities.Authenticate(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"identity": id, "tokens": tokens})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh rotates the presented refresh token into a new pair.
func (h *Handler) Refresh(c *gin.Context) {
	var in refreshRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.d.Issuer.Refresh(c.Request.Context(), in.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Logout revokes the presented refresh token.
func (h *Handler) Logout(c *gin.Context) {
	var in refreshRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.d.Issuer.Revoke(c.Request.Context(), in.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Student self-service ----------

// session resolves the caller's identity, writing a 401 when it is gone.
func (h *Handler) session(c *gin.Context) (identity.Identity, bool) {
	claims, _ := auth.ClaimsFrom(c)
	id, err := h.d.Identities.Session(c.Request.Context(), claims)
	if err != nil {
		h.fail(c, err)
		return identity.Identity{}, false
	}
	return id, true
}

func (h *Handler) Me(c *gin.Context) {
	id, ok := h.session(c)
	if !ok {
		return
	}
	now := h.d.Now()
	c.JSON(http.StatusOK, gin.H{
		"identity":     id,
		"today":        h.d.Admissions.Today(now),
		"current_meal": h.d.Admissions.CurrentMeal(now),
	})
}

func (h *Handler) MyToken(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	issued := h.d.Now()
	payload, err := token.Encode(claims.Subject, issued)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payload": payload, "issued_at": issued.UTC()})
}

func (h *Handler) MyTokenPNG(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	size := token.DefaultQRSize
	if v := c.Query("size"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 128 || parsed > 1024 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be between 128 and 1024"})
			return
		}
		size = parsed
	}
	payload, err := token.Encode(claims.Subject, h.d.Now())
	if err != nil {
		h.fail(c, err)
		return
	}
	png, err := token.QRPNG(payload, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) MyAttendance(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	limit := 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a number"})
			return
		}
		limit = parsed
	}
	recs, err := h.d.Admissions.Ledger().ListByUser(c.Request.Context(), claims.Subject, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *Handler) MyOptIns(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	date, ok := h.date(c)
	if !ok {
		return
	}
	opts, err := h.d.Menu.OptIns(c.Request.Context(), claims.Subject, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "optins": opts})
}

func (h *Handler) SetOptIn(c *gin.Context) {
	claims, _ := auth.ClaimsFrom(c)
	var in struct {
		Date  string    `json:"date"`
		Meal  meal.Meal `json:"meal" binding:"required"`
		Opted *bool     `json:"opted" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.Date == "" {
		in.Date = h.d.Admissions.Today(h.d.Now())
	}
	if !attendance.ValidDate(in.Date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	if err := h.d.Menu.SetOptIn(c.Request.Context(), claims.Subject, in.Date, in.Meal, *in.Opted); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": in.Date, "meal": in.Meal, "opted": *in.Opted})
}

func (h *Handler) Menu(c *gin.Context) {
	date, ok := h.date(c)
	if !ok {
		return
	}
	items, err := h.d.Menu.Day(c.Request.Context(), date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "items": items})
}

// ---------- Admin ----------

// Scan admits the student behind a scanned QR payload.
func (h *Handler) Scan(c *gin.Context) {
	var in struct {
		Payload string `json:"payload"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.d.AdmitTimeout)
	defer cancel()

	res := h.d.Admissions.Admit(ctx, in.Payload, h.d.Now())
	claims, _ := auth.ClaimsFrom(c)
	h.log.Debug("scan",
		zap.String("station", claims.Subject),
		zap.Bool("success", res.Success),
		zap.String("reason", string(res.Reason)))
	c.JSON(scanStatus(res), res)
}

func scanStatus(res attendance.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Reason {
	case attendance.AlreadyMarked:
		return http.StatusConflict
	case attendance.InvalidFormat:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *Handler) AttendanceByDate(c *gin.Context) {
	date, ok := h.date(c)
	if !ok {
		return
	}
	entries, err := h.d.Admissions.Ledger().ListByDate(c.Request.Context(), date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": date, "records": entries})
}

func (h *Handler) AttendanceRecord(c *gin.Context) {
	entry, err := h.d.Admissions.Ledger().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.d.Identities.Store().ListByRole(c.Request.Context(), identity.RoleStudent)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (h *Handler) CreateStudent(c *gin.Context) {
	var in identity.RegisterInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.Role = identity.RoleStudent
	id, err := h.d.Identities.Register(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, id)
}

func (h *Handler) ReplaceMenu(c *gin.Context) {
	var in struct {
		Date  string      `json:"date" binding:"required"`
		Items []menu.Item `json:"items"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !attendance.ValidDate(in.Date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	items, err := h.d.Menu.ReplaceDay(c.Request.Context(), in.Date, in.Items)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": in.Date, "items": items})
}

func (h *Handler) DailyReport(c *gin.Context) {
	date, ok := h.date(c)
	if !ok {
		return
	}
	rep, err := h.d.Reports.Daily(c.Request.Context(), date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *Handler) DailyReportPDF(c *gin.Context) {
	date, ok := h.date(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	rep, err := h.d.Reports.Daily(ctx, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	entries, err := h.d.Admissions.Ledger().ListByDate(ctx, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WritePDF(&buf, rep, entries); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="foodforge-attendance-`+date+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// ---------- helpers ----------

// date reads ?date=, defaulting to today in the mess timezone.
func (h *Handler) date(c *gin.Context) (string, bool) {
	date := c.Query("date")
	if date == "" {
		return h.d.Admissions.Today(h.d.Now()), true
	}
	if !attendance.ValidDate(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return "", false
	}
	return date, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *identity.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, identity.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
	case errors.Is(err, identity.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	case errors.Is(err, identity.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "AuthRequired"})
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongKind), errors.Is(err, auth.ErrTokenRevoked):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "AuthRequired", "message": "invalid refresh token"})
	case errors.Is(err, attendance.ErrNotFound), errors.Is(err, identity.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, menu.ErrInvalidItem), errors.Is(err, meal.ErrUnknownMeal):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "timed out"})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
