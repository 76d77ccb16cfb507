// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"

	"codeberg.org/oliverandrich/accounts-service/internal/middleware"
	"codeberg.org/oliverandrich/accounts-service/internal/services/account"
	"github.com/labstack/echo/v4"
)

// UpdateAvatar replaces the account's avatar. Without an uploaded file the
// configured default avatar is fetched and stored instead.
func (h *Handlers) UpdateAvatar(c echo.Context) error {
	user := middleware.UserFromContext(c)

	var upload *account.Upload
	if header, err := c.FormFile("avatar"); err == nil {
		f, err := header.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid avatar upload")
		}
		defer f.Close()
		upload = &account.Upload{Name: header.Filename, Data: f}
	}

	url, err := h.accounts.ChangeAvatar(c.Request().Context(), user.ID, upload)
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, map[string]string{"avatarURL": url})
}
