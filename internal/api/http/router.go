package http

import (
	"log/slog"
	nethttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jmoiron/sqlx"

	"github.com/mind-engage/quizdesk/internal/audit"
	authmw "github.com/mind-engage/quizdesk/internal/auth/middleware"
	"github.com/mind-engage/quizdesk/internal/bank"
	"github.com/mind-engage/quizdesk/internal/course"
	"github.com/mind-engage/quizdesk/internal/evaluation"
	"github.com/mind-engage/quizdesk/internal/importer"
	"github.com/mind-engage/quizdesk/internal/quiz"
	"github.com/mind-engage/quizdesk/internal/rbac"
	"github.com/mind-engage/quizdesk/internal/report"
	"github.com/mind-engage/quizdesk/internal/storage"
	"github.com/mind-engage/quizdesk/internal/users"
)

type Deps struct {
	DB       *sqlx.DB
	Auth     *authmw.AuthService
	Users    *users.Store
	Courses  *course.Store
	Banks    *bank.Store
	Importer *importer.Importer
	Quizzes  *quiz.Store
	Reports  *report.Service
	Eval     *evaluation.Service
	Audit    *audit.Log
	Blobs    storage.BlobStore
	Log      *slog.Logger

	CORSOrigins []string
	// offline mode: trust the token's role for users missing from the DB
	ClaimRoleFallback bool
	RequestTimeout    time.Duration
	AccessLog         bool
}

func NewRouter(d Deps) chi.Router {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	if d.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer, middleware.Timeout(d.RequestTimeout), withLogger(d.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w nethttp.ResponseWriter, r *nethttp.Request) { w.WriteHeader(nethttp.StatusOK) })
	r.Get("/readyz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if err := d.DB.PingContext(r.Context()); err != nil {
			nethttp.Error(w, "db unavailable", nethttp.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(nethttp.StatusOK)
	})
	r.Post("/auth/login", authmw.LoginHandler(d.Auth, d.Users, d.Log))

	// Protected API (JWT -> role from DB -> RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(authmw.JWTMiddleware(d.Auth), authmw.AttachRoleFromDB(d.DB, d.ClaimRoleFallback))
		can := func(perm string) func(nethttp.Handler) nethttp.Handler { return rbac.Require(perm) }

		pr.Get("/me", MeHandler(d.Users))
		pr.With(can("users:list")).Get("/users", ListUsersHandler(d.Users))
		pr.With(can("users:bulk_upsert")).Post("/users/bulk", BulkUpsertUsersHandler(d.Users))
		pr.With(can("user:change_password")).Post("/users/change-password", ChangePasswordHandler(d.Users))
		pr.With(can("audit:view")).Get("/audit", ListAuditHandler(d.Audit))

		pr.With(can("course:view")).Get("/semesters", ListSemestersHandler(d.Courses))
		pr.With(can("course:manage")).Post("/semesters", CreateSemesterHandler(d.Courses))

		pr.Route("/courses", func(cr chi.Router) {
			cr.With(can("course:view")).Get("/", ListCoursesHandler(d.Courses))
			cr.With(can("course:create")).Post("/", CreateCourseHandler(d.Courses))
			cr.Route("/{courseID}", func(one chi.Router) {
				one.With(can("course:view")).Get("/", GetCourseHandler(d.Courses))
				one.With(can("course:update")).Patch("/", UpdateCourseHandler(d.Courses))
				one.With(can("course:delete")).Delete("/", DeleteCourseHandler(d.Courses))
				one.With(can("course:manage")).Post("/managers", AddManagersHandler(d.Courses))
				one.With(can("course:manage")).Post("/students", EnrollStudentsHandler(d.Courses))
				one.With(can("course:manage")).Get("/students", ListStudentsHandler(d.Courses))
				one.With(can("quiz:view")).Get("/quizzes", ListCourseQuizzesHandler(d.Quizzes, d.Courses))
				one.With(can("quiz:create")).Post("/quizzes", CreateQuizHandler(d.Quizzes, d.Courses))
			})
		})

		pr.Route("/banks", func(br chi.Router) {
			br.With(can("bank:view")).Get("/", ListBanksHandler(d.Banks))
			br.With(can("bank:create")).Post("/", CreateBankHandler(d.Banks))
			br.Route("/{bankID}", func(one chi.Router) {
				one.With(can("bank:view")).Get("/", GetBankHandler(d.Banks))
				one.With(can("bank:update")).Patch("/", UpdateBankHandler(d.Banks))
				one.With(can("bank:delete")).Delete("/", DeleteBankHandler(d.Banks))
				one.With(can("bank:view")).Get("/shares", ListSharesHandler(d.Banks))
				one.With(can("bank:share")).Post("/shares", ShareBankHandler(d.Banks, d.Audit))
				one.With(can("bank:share")).Delete("/shares", UnshareBankHandler(d.Banks, d.Audit))
				one.With(can("bank:view")).Get("/questions", ListBankQuestionsHandler(d.Banks))
				one.With(can("bank:update")).Post("/questions", AddBankQuestionsHandler(d.Banks))
				one.With(can("bank:update")).Patch("/questions/{questionID}", UpdateBankQuestionHandler(d.Banks))
				one.With(can("bank:update")).Delete("/questions/{questionID}", DeleteBankQuestionHandler(d.Banks))
				one.With(can("bank:view")).Get("/topics", ListTopicsHandler(d.Banks))
				one.With(can("bank:import")).Post("/import", ImportQuestionsHandler(d.Importer, d.Audit))
				if d.Blobs != nil {
					one.Route("/uploads", func(ur chi.Router) {
						ur.Use(can("bank:view"))
						MountUploads(ur, d.Banks, d.Blobs)
					})
				}
			})
		})

		pr.Route("/quizzes/{quizID}", func(qr chi.Router) {
			qr.With(can("quiz:view")).Get("/", GetQuizHandler(d.Quizzes, d.Courses))
			qr.With(can("quiz:update")).Patch("/", UpdateQuizHandler(d.Quizzes, d.Courses))
			qr.With(can("quiz:delete")).Delete("/", DeleteQuizHandler(d.Quizzes, d.Courses))
			qr.With(can("quiz:publish")).Post("/publish", QuizStatusHandler(d.Quizzes, d.Courses, quiz.StatusPublished))
			qr.With(can("quiz:publish")).Post("/close", QuizStatusHandler(d.Quizzes, d.Courses, quiz.StatusClosed))
			qr.With(can("quiz:update")).Post("/questions", AddQuizQuestionsHandler(d.Quizzes, d.Courses, d.Banks))
			qr.With(can("quiz:update")).Put("/questions/order", ReorderQuizQuestionsHandler(d.Quizzes, d.Courses))
			qr.With(can("quiz:update")).Delete("/questions/{questionID}", RemoveQuizQuestionHandler(d.Quizzes, d.Courses))

			qr.With(can("result:create")).Post("/results", StartResultHandler(d.Quizzes, d.Courses))
			qr.With(can("result:view-all")).Get("/results", ListResultsHandler(d.Quizzes, d.Courses))

			qr.With(can("evaluation:start")).Post("/evaluation", StartEvaluationHandler(d.Eval, d.Quizzes, d.Courses))
			qr.With(can("evaluation:view")).Get("/evaluation", EvaluationStatusHandler(d.Eval, d.Quizzes, d.Courses))
			qr.With(can("evaluation:stop")).Delete("/evaluation", StopEvaluationHandler(d.Eval, d.Quizzes, d.Courses))
			qr.With(can("evaluation:ingest")).Post("/evaluation/scores", ExternalScoresHandler(d.Quizzes, d.Courses, d.Reports, d.Audit))

			qr.With(can("report:view")).Get("/report", GetReportHandler(d.Reports, d.Quizzes, d.Courses))
			qr.With(can("report:recompute")).Post("/report", RecomputeReportHandler(d.Reports, d.Quizzes, d.Courses))
			qr.With(can("report:export")).Get("/class-report", ClassReportHandler(d.Reports, d.Quizzes, d.Courses))
		})

		pr.Route("/results/{resultID}", func(rr chi.Router) {
			rr.With(rbac.RequireAny("result:view-own", "result:view-all")).Get("/", GetResultHandler(d.Quizzes, d.Courses))
			rr.With(can("result:save")).Post("/responses", SaveResponsesHandler(d.Quizzes))
			rr.With(can("result:submit")).Post("/submit", SubmitResultHandler(d.Quizzes, d.Reports))
			rr.With(can("result:grade")).Patch("/items/{questionID}", EditScoreHandler(d.Quizzes, d.Courses, d.Reports, d.Audit))
			rr.With(can("result:grade")).Get("/edits", ListScoreEditsHandler(d.Quizzes, d.Courses))
		})
		pr.With(can("result:grade")).Post("/score-edits/{editID}/undo", UndoScoreEditHandler(d.Quizzes, d.Courses, d.Reports, d.Audit))
	})
	return r
}
