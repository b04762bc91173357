package handlers

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"zines/internal/metrics"
	"zines/internal/middleware"
	"zines/internal/models"
	"zines/internal/services"
)

// PublicationHandler handles HTTP requests for zines, their pages and the
// public catalogue.
type PublicationHandler struct {
	publicationService *services.PublicationService
	authService        *services.AuthService
	validate           *validator.Validate
	errors             errorResponder
}

// NewPublicationHandler creates a new PublicationHandler.
func NewPublicationHandler(publicationService *services.PublicationService, authService *services.AuthService, m *metrics.Metrics) *PublicationHandler {
	return &PublicationHandler{
		publicationService: publicationService,
		authService:        authService,
		validate:           validator.New(),
		errors:             errorResponder{metrics: m},
	}
}

// RegisterRoutes registers the publication routes. Editing routes are guarded
// by requireAuth; reading routes rely on the optional caller identity.
func (h *PublicationHandler) RegisterRoutes(router fiber.Router, requireAuth fiber.Handler) {
	router.Get("/templates", h.GetTemplates)
	router.Get("/explore", h.Explore)
	router.Get("/featured", h.Featured)
	router.Get("/search", h.Search)
	router.Get("/read/:username/:slug", h.Read)
	router.Get("/creators/:username/publications", h.ListByCreator)

	pubRoutes := router.Group("/publications")
	pubRoutes.Post("/", requireAuth, h.CreatePublication)
	pubRoutes.Get("/mine", requireAuth, h.ListMine)
	pubRoutes.Get("/:id", requireAuth, h.GetForEditor)
	pubRoutes.Patch("/:id", requireAuth, h.UpdateDetails)
	pubRoutes.Delete("/:id", requireAuth, h.DeletePublication)
	pubRoutes.Post("/:id/publish", requireAuth, h.Publish)
	pubRoutes.Get("/:id/versions", requireAuth, h.ListVersions)
	pubRoutes.Put("/:id/pages", requireAuth, h.SavePage)
	pubRoutes.Post("/:id/pages", requireAuth, h.AddPage)
	pubRoutes.Delete("/:id/pages/:pageId", requireAuth, h.DeletePage)
}

// CreatePublicationRequest represents the request body for a new zine.
type CreatePublicationRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"max=5000"`
}

// CreatePublication creates a draft zine with one blank page.
func (h *PublicationHandler) CreatePublication(c *fiber.Ctx) error {
	var req CreatePublicationRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	pub, err := h.publicationService.CreatePublication(c.UserContext(), middleware.CallerID(c), req.Title, req.Description)
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(pub)
}

// ListMine returns the caller's zines, drafts included.
func (h *PublicationHandler) ListMine(c *fiber.Ctx) error {
	pubs, err := h.publicationService.ListMine(c.UserContext(), middleware.CallerID(c))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(pubs)
}

// GetForEditor returns a zine with its pages for its owner.
func (h *PublicationHandler) GetForEditor(c *fiber.Ctx) error {
	view, err := h.publicationService.GetForEditor(c.UserContext(), middleware.CallerID(c), c.Params("id"))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(view)
}

// UpdateDetailsRequest carries the editable zine fields. Omitted fields are
// left unchanged.
type UpdateDetailsRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
	CoverImage  *string `json:"cover_image" validate:"omitempty,max=2048"`
	LayoutType  *string `json:"layout_type" validate:"omitempty,oneof=A5 A4 square"`
	EnablePDF   *bool   `json:"enable_pdf"`
}

// UpdateDetails edits a zine's metadata. The slug never changes.
func (h *PublicationHandler) UpdateDetails(c *fiber.Ctx) error {
	var req UpdateDetailsRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	pub, err := h.publicationService.UpdateDetails(c.UserContext(), middleware.CallerID(c), c.Params("id"), services.DetailsInput{
		Title:       req.Title,
		Description: req.Description,
		CoverImage:  req.CoverImage,
		LayoutType:  req.LayoutType,
		EnablePDF:   req.EnablePDF,
	})
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(pub)
}

// DeletePublication removes a zine and everything that belongs to it.
func (h *PublicationHandler) DeletePublication(c *fiber.Ctx) error {
	if err := h.publicationService.DeletePublication(c.UserContext(), middleware.CallerID(c), c.Params("id")); err != nil {
		return h.errors.respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// PublishRequest represents the request body for publishing a zine.
type PublishRequest struct {
	Visibility string   `json:"visibility" validate:"omitempty,oneof=public unlisted"`
	Tags       []string `json:"tags" validate:"max=10,dive,max=50"`
}

// Publish makes a zine public or unlisted.
func (h *PublicationHandler) Publish(c *fiber.Ctx) error {
	var req PublishRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	pub, err := h.publicationService.Publish(c.UserContext(), middleware.CallerID(c), c.Params("id"), req.Visibility, req.Tags)
	if err != nil {
		return h.errors.respond(c, err)
	}
	user, err := h.authService.GetUser(c.UserContext(), pub.CreatorID)
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(fiber.Map{
		"message":     "Zine published",
		"publication": pub,
		"link":        services.ReaderLink(user.Username, pub.Slug),
	})
}

// ListVersions returns the retained snapshots of a zine, newest first.
func (h *PublicationHandler) ListVersions(c *fiber.Ctx) error {
	versions, err := h.publicationService.ListVersions(c.UserContext(), middleware.CallerID(c), c.Params("id"))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(versions)
}

// SavePageRequest carries a page's block document. An empty page id appends a
// new page.
type SavePageRequest struct {
	PageID  string          `json:"page_id" validate:"omitempty,uuid"`
	Content json.RawMessage `json:"content" validate:"required"`
}

// SavePage stores a page's content and snapshots the zine.
func (h *PublicationHandler) SavePage(c *fiber.Ctx) error {
	var req SavePageRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	page, err := h.publicationService.SavePage(c.UserContext(), middleware.CallerID(c), c.Params("id"), req.PageID, req.Content)
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(page)
}

// AddPageRequest names the template of a new page.
type AddPageRequest struct {
	Template string `json:"template" validate:"omitempty,max=50"`
}

// AddPage appends a page built from a template.
func (h *PublicationHandler) AddPage(c *fiber.Ctx) error {
	var req AddPageRequest
	if ok, err := parseAndValidate(c, h.validate, &req); !ok {
		return err
	}

	page, err := h.publicationService.AddPage(c.UserContext(), middleware.CallerID(c), c.Params("id"), req.Template)
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(page)
}

// DeletePage removes a page from a zine.
func (h *PublicationHandler) DeletePage(c *fiber.Ctx) error {
	if err := h.publicationService.DeletePage(c.UserContext(), middleware.CallerID(c), c.Params("id"), c.Params("pageId")); err != nil {
		return h.errors.respond(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Read returns a zine as a reader sees it.
func (h *PublicationHandler) Read(c *fiber.Ctx) error {
	view, err := h.publicationService.GetForReader(c.UserContext(), middleware.CallerID(c), c.Params("username"), c.Params("slug"))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(view)
}

// ListByCreator returns a creator's zines. Drafts are only listed for the
// creator.
func (h *PublicationHandler) ListByCreator(c *fiber.Ctx) error {
	pubs, err := h.publicationService.ListByCreator(c.UserContext(), middleware.CallerID(c), c.Params("username"))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(pubs)
}

// Explore lists public zines, optionally filtered by text and tag.
func (h *PublicationHandler) Explore(c *fiber.Ctx) error {
	pubs, err := h.publicationService.Explore(c.UserContext(), c.Query("q"), c.Query("tag"), c.QueryInt("limit", services.ExploreLimit))
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(pubs)
}

// Featured lists the most viewed public zines.
func (h *PublicationHandler) Featured(c *fiber.Ctx) error {
	pubs, err := h.publicationService.Featured(c.UserContext())
	if err != nil {
		return h.errors.respond(c, err)
	}
	return c.JSON(pubs)
}

// Search matches zines and creators against one query.
func (h *PublicationHandler) Search(c *fiber.Ctx) error {
	query := c.Query("q")
	pubs, err := h.publicationService.Search(c.UserContext(), query)
	if err != nil {
		return h.errors.respond(c, err)
	}
	creators, err := h.authService.SearchCreators(c.UserContext(), query)
	if err != nil {
		return h.errors.respond(c, err)
	}
	if pubs == nil {
		pubs = []models.Publication{}
	}
	if creators == nil {
		creators = []models.User{}
	}
	return c.JSON(fiber.Map{
		"publications": pubs,
		"creators":     creators,
	})
}

// GetTemplates lists the page templates.
func (h *PublicationHandler) GetTemplates(c *fiber.Ctx) error {
	return c.JSON(h.publicationService.Templates())
}
