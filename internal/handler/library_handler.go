package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/bookverse/internal/middleware"
	"github.com/arturoeanton/bookverse/internal/service"
)

// LibraryHandler serves the catalog and personal library.
type LibraryHandler struct {
	library *service.LibraryService
}

// NewLibraryHandler creates a new library handler.
func NewLibraryHandler(library *service.LibraryService) *LibraryHandler {
	return &LibraryHandler{library: library}
}

// RegisterPublic sets up catalog routes that need no session.
func (h *LibraryHandler) RegisterPublic(router fiber.Router) {
	router.Get("/books", h.ListBooks)
	router.Get("/books/:id", h.GetBook)
}

// Register sets up library routes on a session-protected router.
func (h *LibraryHandler) Register(router fiber.Router) {
	lib := router.Group("/library")
	lib.Get("/", h.ListLibrary)
	lib.Post("/", h.AddBook)
	lib.Delete("/:bookID", h.RemoveBook)
}

// ListBooks searches the catalog (?q=, ?limit=).
func (h *LibraryHandler) ListBooks(c fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	books, err := h.library.Books(c.Context(), c.Query("q"), limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"books": books,
		"count": len(books),
	})
}

// GetBook returns one catalog entry.
func (h *LibraryHandler) GetBook(c fiber.Ctx) error {
	b, err := h.library.Book(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(b)
}

// ListLibrary returns the signed-in user's saved books.
func (h *LibraryHandler) ListLibrary(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)

	entries, err := h.library.Library(c.Context(), user.UserID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"entries": entries,
		"count":   len(entries),
	})
}

// AddBook saves a book to the library.
func (h *LibraryHandler) AddBook(c fiber.Ctx) error {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "not signed in"})
	}

	var body struct {
		BookID string `json:"book_id"`
	}
	if err := c.Bind().JSON(&body); err != nil || body.BookID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "book_id is required"})
	}

	entry, err := h.library.Add(c.Context(), identity, body.BookID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// RemoveBook deletes a book from the library.
func (h *LibraryHandler) RemoveBook(c fiber.Ctx) error {
	user := middleware.GetUserContext(c)

	if err := h.library.Remove(c.Context(), user.UserID, c.Params("bookID")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
