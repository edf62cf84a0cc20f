package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mergington/metrics"
	"mergington/middlewares"
	"mergington/models"
)

type activityResponse struct {
	Description     *string  `json:"description"`
	Schedule        *string  `json:"schedule"`
	MaxParticipants *int     `json:"max_participants"`
	Participants    []string `json:"participants"`
	Tags            []string `json:"tags"`
}

type listQuery struct {
	Q               string `form:"q"`
	Day             string `form:"day"`
	MaxParticipants *int   `form:"max_participants" binding:"omitempty,min=0"`
	Tags            string `form:"tags"`
}

type emailQuery struct {
	Email string `form:"email" binding:"required,email,max=255"`
}

// GET /activities
func (d *deps) getActivities(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Could not parse query parameters."})
		return
	}

	filter := models.ActivityFilter{
		Query:           q.Q,
		Day:             q.Day,
		MaxParticipants: q.MaxParticipants,
	}
	if q.Tags != "" {
		filter.Tags = strings.Split(q.Tags, ",")
	}

	list, err := d.activities.ListActivities(c.Request.Context(), filter)
	if err != nil {
		d.internalError(c, "Could not fetch activities.", err)
		return
	}

	out := make(map[string]activityResponse, len(list))
	for _, a := range list {
		out[a.Name] = activityResponse{
			Description:     a.Description,
			Schedule:        a.Schedule,
			MaxParticipants: a.MaxParticipants,
			Participants:    a.Participants,
			Tags:            a.TagList(),
		}
	}
	c.JSON(http.StatusOK, out)
}

// POST /activities/:name/signup?email=
func (d *deps) signup(c *gin.Context) {
	name := c.Param("name")
	var q emailQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		metrics.SignupsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"detail": "A valid email query parameter is required."})
		return
	}

	err := d.activities.SignUp(c.Request.Context(), name, q.Email)
	metrics.SignupsTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		d.writeError(c, err)
		return
	}

	d.purgeCache(c)
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Signed up %s for %s", q.Email, name)})
}

// DELETE /activities/:name/unregister?email=
func (d *deps) unregister(c *gin.Context) {
	name := c.Param("name")
	var q emailQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		metrics.UnregistrationsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"detail": "A valid email query parameter is required."})
		return
	}

	err := d.activities.Unregister(c.Request.Context(), name, q.Email)
	metrics.UnregistrationsTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		d.writeError(c, err)
		return
	}

	d.purgeCache(c)
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Unregistered %s from %s", q.Email, name)})
}

func (d *deps) purgeCache(c *gin.Context) {
	if d.inv == nil {
		return
	}
	if _, err := d.inv.PurgeActivitiesList(c.Request.Context()); err != nil {
		d.log.Warn("could not purge activities cache",
			zap.Error(err), zap.String("request_id", middlewares.GetRequestID(c)))
	}
}

// writeError maps repository errors onto status codes. Business rule
// violations are 400, an unknown activity is 404, anything else is 500.
func (d *deps) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrActivityNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
	case errors.Is(err, models.ErrAlreadySignedUp),
		errors.Is(err, models.ErrActivityFull),
		errors.Is(err, models.ErrNotSignedUp),
		errors.Is(err, models.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
	default:
		d.internalError(c, "Could not complete the request. Try again later.", err)
	}
}

func (d *deps) internalError(c *gin.Context, detail string, err error) {
	_ = c.Error(err)
	d.log.Error(detail, zap.Error(err), zap.String("request_id", middlewares.GetRequestID(c)))
	c.JSON(http.StatusInternalServerError, gin.H{"detail": detail})
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, models.ErrActivityNotFound):
		return "not_found"
	case errors.Is(err, models.ErrAlreadySignedUp):
		return "duplicate"
	case errors.Is(err, models.ErrActivityFull):
		return "full"
	case errors.Is(err, models.ErrNotSignedUp):
		return "not_signed_up"
	case errors.Is(err, models.ErrInvalidEmail):
		return "invalid"
	default:
		return "error"
	}
}
