package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fedipub/fedipub/models"
	"gorm.io/gorm"
)

type CreateActorCmd struct {
	Email    string `required:"" help:"email address of the actor to create, the username@domain part names the actor"`
	Password string `required:"" help:"password of the actor to create"`
	Type     string `enum:"Person,Service" default:"Person" help:"type of actor to create"`
}

func (c *CreateActorCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}

	parts := strings.Split(c.Email, "@")
	if len(parts) != 2 {
		return errors.New("invalid email address")
	}
	username, domain := parts[0], parts[1]

	actor, err := models.NewLocalActors(db).Create(username, domain, models.ActorType(c.Type))
	if err != nil {
		return err
	}
	if _, err := models.NewAccounts(db).Create(actor, c.Email, c.Password); err != nil {
		return err
	}
	fmt.Println("created", actor.URI())
	return nil
}
