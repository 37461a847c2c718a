package main

import (
	"context"
	"fmt"

	"github.com/fedipub/fedipub/activitypub"
	"github.com/fedipub/fedipub/models"
	"gorm.io/gorm"
)

type PublishCmd struct {
	Actor   string `required:"" help:"email address of the publishing actor"`
	Content string `required:"" help:"note content, may contain #hashtags and user@domain mentions"`
	URL     string `required:"" help:"permalink of the content on the originating site"`
}

func (p *PublishCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}
	env, directory := newEnv(db)

	account, err := models.NewAccounts(db).Find(p.Actor)
	if err != nil {
		return err
	}
	note, err := activitypub.PublishLocal(context.Background(), &activitypub.Env{
		Env:       env,
		Directory: directory,
	}, account.LocalActor, p.Content, p.URL)
	if err != nil {
		return err
	}
	fmt.Println("published", note.URI())
	return nil
}
