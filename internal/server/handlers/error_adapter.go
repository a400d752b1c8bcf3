package handlers

import (
	"net/http"

	apperrors "github.com/recipegate/recipegate/internal/errors"
)

// ErrorResponder writes err to w.
type ErrorResponder func(http.ResponseWriter, *http.Request, error)

var httpErrorResponder ErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder lets the server inject its error writer. Nil restores the default.
func SetHTTPErrorResponder(responder ErrorResponder) {
	if responder == nil {
		responder = apperrors.RespondWithError
	}
	httpErrorResponder = responder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}
