package handlers

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/service"
)

// Handler adapts the services to gin.
type Handler struct {
	Users         *service.UserService
	Events        *service.EventService
	Registrations *service.RegistrationService
	Jobs          *service.JobService
	Uploads       helpers.UploadConfig
	// PendingBatch is the pending job batch size when the request sets none.
	PendingBatch int
}

// RegisterValidators adds the custom binding rules to gin's validator and
// makes field errors report JSON names.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v.RegisterValidation("event_category", func(fl validator.FieldLevel) bool {
		return models.ValidCategory(fl.Field().String())
	})
}

// page reads the page and limit query parameters.
func page(c *gin.Context) (int, int, error) {
	pageNum, err := helpers.QueryInt("page", c.Query("page"), 1)
	if err != nil {
		return 0, 0, err
	}
	limitNum, err := helpers.QueryInt("limit", c.Query("limit"), service.DefaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	return pageNum, limitNum, nil
}
