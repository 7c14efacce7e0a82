package coursechat

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/putto11262002/coursechat/core"
	"github.com/putto11262002/coursechat/pkg/router"
)

type UserHandler struct {
	store core.UserStore
}

func NewUserHandler(store core.UserStore) *UserHandler {
	return &UserHandler{store: store}
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) error {
	var user core.User
	if err := decodeValid(r, &user); err != nil {
		return err
	}

	created, err := h.store.CreateUser(r.Context(), user)
	if err != nil {
		if errors.Is(err, core.ErrConflictedUser) {
			return router.Conflict("user already exists")
		}
		return fmt.Errorf("CreateUser: %w", err)
	}

	return router.JSON(w, http.StatusCreated, created)
}

func (h *UserHandler) MeHandler(w http.ResponseWriter, r *http.Request) error {
	session := core.SessionFromRequest(r)
	user, err := h.store.GetUserByID(r.Context(), session.UserID)
	if err != nil {
		return fmt.Errorf("GetUserByID: %w", err)
	}

	if user == nil {
		return router.NotFound("user not found")
	}

	return router.JSON(w, http.StatusOK, user)
}
