package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Marga-Ghale/grove-backend/internal/api/middleware"
	"github.com/Marga-Ghale/grove-backend/internal/models"
	"github.com/Marga-Ghale/grove-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// ============================================
// Person Handler
// ============================================

type PersonHandler struct {
	personService service.PersonService
	errs          errorWriter
}

const dateLayout = "2006-01-02"

func parseDate(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	// Binding already validated the layout.
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil
	}
	return &t
}

func toMemoryInput(req *models.MemoryRequest) *service.MemoryInput {
	if req == nil {
		return nil
	}
	return &service.MemoryInput{
		Title:       req.Title,
		Body:        req.Body,
		Visibility:  req.Visibility,
		AuthorEmail: req.AuthorEmail,
		AuthorName:  req.AuthorName,
	}
}

// Create - Create a legacy Person, or report likely duplicates
// POST /persons
func (h *PersonHandler) Create(c *gin.Context) {
	var req models.CreatePersonRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.personService.CreateLegacyPerson(c.Request.Context(), middleware.GetCaller(c), service.CreatePersonInput{
		Name:            req.Name,
		BirthDate:       parseDate(req.BirthDate),
		DeathDate:       parseDate(req.DeathDate),
		GroveID:         req.GroveID,
		Resolution:      req.Resolution,
		ConnectPersonID: req.ConnectPersonID,
		TrusteeEmail:    req.TrusteeEmail,
		TrusteeName:     req.TrusteeName,
		InitialMemory:   toMemoryInput(req.InitialMemory),
	})
	if err != nil {
		h.errs.respond(c, err)
		return
	}

	resp := models.CreatePersonResponse{
		Created:    res.Created,
		Duplicates: make([]models.DuplicateResponse, len(res.Duplicates)),
	}
	for i, d := range res.Duplicates {
		resp.Duplicates[i] = models.DuplicateResponse{Person: toPersonResponse(d.Person), YearsMatch: d.YearsMatch}
	}
	if res.Person != nil {
		p := toPersonResponse(res.Person)
		resp.Person = &p
	}
	if res.Branch != nil {
		b := toBranchResponse(res.Branch)
		resp.Branch = &b
	}
	if res.Membership != nil {
		m := toMembershipResponse(res.Membership)
		resp.Membership = &m
	}
	if res.Memory != nil {
		m := toMemoryResultResponse(res.Memory)
		resp.Memory = &m
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

// FindDuplicates - Search legacy Persons by name and years
// GET /persons/duplicates?name=&birthYear=&deathYear=
func (h *PersonHandler) FindDuplicates(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	birthYear, ok := queryYear(c, "birthYear")
	if !ok {
		return
	}
	deathYear, ok := queryYear(c, "deathYear")
	if !ok {
		return
	}

	candidates, err := h.personService.FindDuplicates(c.Request.Context(), middleware.GetCaller(c), name, birthYear, deathYear)
	if err != nil {
		h.errs.respond(c, err)
		return
	}

	response := make([]models.DuplicateResponse, len(candidates))
	for i, d := range candidates {
		response[i] = models.DuplicateResponse{Person: toPersonResponse(d.Person), YearsMatch: d.YearsMatch}
	}
	c.JSON(http.StatusOK, response)
}

func queryYear(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be a year"})
		return 0, false
	}
	return year, true
}

// Get - Get a Person with the caller's access
// GET /persons/:id
func (h *PersonHandler) Get(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	access, err := h.personService.GetPerson(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccessResponse(access))
}

// Adopt - Attach a Person to one of the caller's groves
// POST /persons/:id/adopt
func (h *PersonHandler) Adopt(c *gin.Context) {
	caller, ok := middleware.RequireCaller(c)
	if !ok {
		return
	}

	var req models.AdoptPersonRequest
	if !bindJSON(c, &req) {
		return
	}

	membership, err := h.personService.AdoptPerson(c.Request.Context(), caller, c.Param("id"), req.GroveID)
	if err != nil {
		h.errs.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMembershipResponse(membership))
}
