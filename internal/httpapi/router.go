// Package httpapi exposes the attendance core over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/app"
	"rollcall/internal/auth"
	"rollcall/internal/httpmiddleware"
)

// NewRouter builds the gin engine over a.
func NewRouter(a *app.App) *gin.Engine {
	h := &Handler{app: a, log: a.Log.Named("http")}
	cfg := a.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.Logger(h.log, "/healthz", "/metrics"))
	r.Use(httpmiddleware.Metrics(a.Metrics))
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(httpmiddleware.SecurityHeaders())
	limiter := httpmiddleware.NewLimiter(cfg.RateLimitPerMin, cfg.RateLimitPerMin)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))
	r.GET("/healthz", h.Healthz)
	r.POST("/v1/auth/refresh", limiter.Middleware(httpmiddleware.ClientIP), h.Refresh)

	v1 := r.Group("/v1", auth.Bearer(cfg.JWTSigningKey, cfg.JWTIssuer), limiter.Middleware(operatorKey))
	need := auth.RequirePermission

	v1.GET("/subjects", auth.RequireAny(auth.ManageSubjects, auth.ViewAttendance), h.ListSubjects)
	v1.POST("/subjects", need(auth.ManageSubjects), h.CreateSubject)
	v1.GET("/subjects/:id", auth.RequireAny(auth.ManageSubjects, auth.ViewAttendance), h.GetSubject)
	v1.PATCH("/subjects/:id", need(auth.ManageSubjects), h.UpdateSubject)
	v1.DELETE("/subjects/:id", need(auth.ManageSubjects), h.DeleteSubject)
	v1.GET("/subjects/:id/payload", need(auth.ManageSubjects), h.SubjectPayload)
	v1.POST("/subjects/:id/photo", need(auth.ManageSubjects), h.UploadSubjectPhoto)
	v1.GET("/groups", auth.RequireAny(auth.ManageSubjects, auth.ViewAttendance), h.Groups)

	v1.POST("/sessions", need(auth.IssueSessions), h.CreateSession)
	v1.GET("/sessions", need(auth.IssueSessions), h.ListSessions)
	v1.GET("/sessions/active", need(auth.IssueSessions), h.ActiveSession)
	v1.POST("/sessions/:id/regenerate", need(auth.IssueSessions), h.RegenerateSession)
	v1.POST("/sessions/:id/deactivate", need(auth.IssueSessions), h.DeactivateSession)

	v1.POST("/scan/subject", need(auth.RecordAttendance), h.ScanSubject)
	v1.POST("/scan/session", need(auth.CheckIn), h.ScanSession)
	v1.POST("/attendance", need(auth.RecordAttendance), h.RecordAttendance)
	v1.GET("/attendance", need(auth.ViewAttendance), h.ListAttendance)
	v1.GET("/attendance/:id", need(auth.ViewAttendance), h.GetAttendance)
	v1.PATCH("/attendance/:id", need(auth.RecordAttendance), h.UpdateAttendance)
	v1.POST("/attendance/:id/proof", need(auth.RecordAttendance), h.UploadAttendanceProof)
	v1.POST("/absences/notify", need(auth.ManageSubjects), h.NotifyAbsences)

	v1.GET("/reports/daily", need(auth.ViewAttendance), h.DailyReport)
	v1.GET("/reports/range", need(auth.ViewAttendance), h.RangeReport)
	v1.GET("/reports/monthly", need(auth.ViewAttendance), h.MonthlyReport)
	v1.GET("/reports/group", need(auth.ViewAttendance), h.GroupReport)
	v1.GET("/reports/rate/:subjectId", need(auth.ViewAttendance), h.SubjectRate)

	v1.POST("/leave", need(auth.SubmitLeave), h.SubmitLeave)
	v1.GET("/leave", need(auth.ReviewLeave), h.ListLeave)
	v1.GET("/leave/stats", need(auth.ReviewLeave), h.LeaveStats)
	v1.POST("/leave/:id/approve", need(auth.ReviewLeave), h.ApproveLeave)
	v1.POST("/leave/:id/reject", need(auth.ReviewLeave), h.RejectLeave)

	v1.GET("/me", need(auth.ViewProfile), h.Profile)
	v1.GET("/me/attendance", need(auth.ViewOwnAttendance), h.MyAttendance)
	v1.GET("/me/leave", need(auth.SubmitLeave), h.MyLeave)
	v1.GET("/me/notifications", need(auth.ViewProfile), h.MyNotifications)
	v1.POST("/me/notifications/:id/read", need(auth.ViewProfile), h.MarkNotificationRead)

	v1.GET("/store", need(auth.ManageUsers), h.StoreStatus)
	v1.PUT("/store/connectivity", need(auth.ManageUsers), h.SetConnectivity)
	v1.POST("/store/keys/:key/synced", need(auth.ManageUsers), h.MarkKeySynced)
	v1.POST("/store/keys/:key/errored", need(auth.ManageUsers), h.MarkKeyErrored)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

// operatorKey gives each bearer its own rate limit bucket.
func operatorKey(c *gin.Context) string {
	claims, ok := auth.ClaimsFrom(c)
	if !ok || claims.Subject == "" {
		return ""
	}
	return "op:" + string(claims.Role) + ":" + claims.Subject
}
