package users

import "github.com/dmitrijs2005/ritw/internal/server/models"

// Repository is the persistence contract for users.
type Repository = models.Model[*models.User, models.UserCreateInfo, string]
