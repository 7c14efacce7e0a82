package coursechat

import (
	"errors"
	"net/http"
	"time"

	"github.com/putto11262002/coursechat/core"
	"github.com/putto11262002/coursechat/pkg/router"
)

type AuthHandler struct {
	store core.AuthStore
}

func NewAuthHandler(store core.AuthStore) *AuthHandler {
	return &AuthHandler{store: store}
}

type SigninPayload struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) SigninHandler(w http.ResponseWriter, r *http.Request) error {
	var payload SigninPayload
	if err := decodeValid(r, &payload); err != nil {
		return err
	}

	session, err := h.store.NewSession(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, core.ErrBadCredentials) {
			return router.Unauthorized(err.Error())
		}
		return err
	}

	http.SetCookie(w, core.SessionCookie(*session, true, "/"))
	return router.JSON(w, http.StatusOK, session)
}

func (h *AuthHandler) SignoutHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	if err := h.store.DestroySession(r.Context(), session); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     core.AuthCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Path:     "/",
	})
	w.WriteHeader(http.StatusNoContent)
	return nil
}
