package questionnaire

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/intake/internal/platform/auth"
	"github.com/ehr/intake/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse, auth.RolePatient))
	readGroup.GET("/questionnaires", h.ListQuestionnaires)
	readGroup.GET("/questionnaires/:id", h.GetQuestionnaire)
	readGroup.GET("/questionnaire-responses/:id", h.GetQuestionnaireResponse)
	readGroup.GET("/patients/:patient_id/questionnaire-responses", h.ListPatientResponses)

	writeGroup := api.Group("", auth.RequireRole(auth.RolePhysician, auth.RoleNurse))
	writeGroup.POST("/questionnaires", h.CreateQuestionnaire)
	writeGroup.PUT("/questionnaires/:id", h.UpdateQuestionnaire)
	writeGroup.POST("/questionnaires/:id/submit", h.Submit)
}

// -- Questionnaire Handlers --

func (h *Handler) CreateQuestionnaire(c echo.Context) error {
	var q Questionnaire
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&q); err != nil {
		return err
	}
	if err := h.svc.CreateQuestionnaire(c.Request().Context(), &q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, q)
}

func (h *Handler) GetQuestionnaire(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	q, err := h.svc.GetQuestionnaire(c.Request().Context(), id)
	if err != nil {
		return lookupError(err, "questionnaire not found")
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) UpdateQuestionnaire(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var q Questionnaire
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	q.ID = id
	if err := c.Validate(&q); err != nil {
		return err
	}
	if err := h.svc.UpdateQuestionnaire(c.Request().Context(), &q); err != nil {
		if IsNotFound(err) {
			return echo.NewHTTPError(http.StatusNotFound, "questionnaire not found")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) ListQuestionnaires(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListQuestionnaires(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.Page(c, pg, items, total))
}

// -- Submission Handlers --

func (h *Handler) Submit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	qr, err := h.svc.Submit(ctx, id, &req, auth.UserIDFromContext(ctx))
	if err != nil {
		return submitError(c, err)
	}
	return c.JSON(http.StatusCreated, qr)
}

// submitError renders structural failures as {type, msg} and rejected
// answers as {errors: [...]}.
func submitError(c echo.Context, err error) error {
	var verrs ValidationErrors
	if errors.As(err, &verrs) {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"errors": verrs})
	}
	var serr *SubmitError
	if errors.As(err, &serr) {
		status := http.StatusBadRequest
		if serr.Type == ErrTypeObjectNotFound && serr.Msg == msgQuestionnaireNotFound {
			status = http.StatusNotFound
		}
		return c.JSON(status, serr)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "submission failed")
}

// -- Questionnaire Response Handlers --

func (h *Handler) GetQuestionnaireResponse(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	qr, err := h.svc.GetQuestionnaireResponse(c.Request().Context(), id)
	if err != nil {
		return lookupError(err, "questionnaire response not found")
	}
	return c.JSON(http.StatusOK, qr)
}

func (h *Handler) ListPatientResponses(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
	}
	filter, err := responseFilterFromQuery(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListQuestionnaireResponsesByPatient(c.Request().Context(), patientID, filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.Page(c, pg, items, total))
}

// responseFilterFromQuery reads questionnaire, questionnaire_slugs (comma
// separated) and encounter.
func responseFilterFromQuery(c echo.Context) (ResponseFilter, error) {
	var f ResponseFilter
	if v := c.QueryParam("questionnaire"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("invalid questionnaire")
		}
		f.QuestionnaireID = &id
	}
	for _, slug := range strings.Split(c.QueryParam("questionnaire_slugs"), ",") {
		if slug = strings.TrimSpace(slug); slug != "" {
			f.QuestionnaireSlugs = append(f.QuestionnaireSlugs, slug)
		}
	}
	if v := c.QueryParam("encounter"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, fmt.Errorf("invalid encounter")
		}
		f.EncounterID = &id
	}
	return f, nil
}

func lookupError(err error, msg string) error {
	if IsNotFound(err) {
		return echo.NewHTTPError(http.StatusNotFound, msg)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
