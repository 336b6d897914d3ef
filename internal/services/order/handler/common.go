package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func successWithMetaResponse(message string, data interface{}, meta interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
		Meta:    meta,
	}
}

func errorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

// RequestError pairs a client-facing message with the HTTP status it maps to.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return e.Message
}

func notFoundError(message string) *RequestError {
	return &RequestError{Status: http.StatusNotFound, Message: message}
}

func invalidError(message string) *RequestError {
	return &RequestError{Status: http.StatusUnprocessableEntity, Message: message}
}

func conflictError(message string) *RequestError {
	return &RequestError{Status: http.StatusConflict, Message: message}
}

func internalError(message string) *RequestError {
	return &RequestError{Status: http.StatusInternalServerError, Message: message}
}

func respondError(c *gin.Context, err *RequestError) {
	c.JSON(err.Status, errorResponse(err.Message))
}
