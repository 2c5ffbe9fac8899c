package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/you/meeting-payments/internal/repository"
)

type ExpertHandler struct {
	bookings *repository.BookingRepo
}

func NewExpertHandler(bookings *repository.BookingRepo) *ExpertHandler {
	return &ExpertHandler{bookings: bookings}
}

// GET /v1/experts/me/bookings?page=1&page_size=20
func (h *ExpertHandler) ListBookings(c *gin.Context) {
	sub, _ := c.Get("sub") // set by JWTAuth middleware
	expertID, _ := sub.(string)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}

	items, total, err := h.bookings.ListByExpert(c, expertID, page-1, size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}
