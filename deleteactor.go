package main

import (
	"fmt"

	"github.com/fedipub/fedipub/models"
	"gorm.io/gorm"
)

type DeleteActorCmd struct {
	Email string `required:"" help:"email address of the actor to delete"`
}

func (d *DeleteActorCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}

	account, err := models.NewAccounts(db).Find(d.Email)
	if err != nil {
		return err
	}
	// notes, edges and the account row go with the actor
	if err := db.Delete(&models.LocalActor{}, account.LocalActorID).Error; err != nil {
		return err
	}
	fmt.Println("deleted", account.LocalActor.URI())
	return nil
}
