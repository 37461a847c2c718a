package main

import (
	"context"
	"os"

	"github.com/fedipub/fedipub/models"
	"github.com/go-json-experiment/json"
	"gorm.io/gorm"
)

type FetchActorCmd struct {
	Actor  string `required:"" help:"email address of the local actor to fetch as"`
	Object string `required:"" help:"actor to fetch, as user@domain or a profile URL"`
	// Stored profiles are never refreshed implicitly; this is the
	// explicit refresh path.
	Refresh bool `help:"re-fetch the profile even if it is already stored"`
}

func (f *FetchActorCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}
	_, directory := newEnv(db)

	account, err := models.NewAccounts(db).Find(f.Actor)
	if err != nil {
		return err
	}

	remote, err := resolveObject(context.Background(), directory, account.LocalActor, f.Object)
	if err != nil {
		return err
	}
	if f.Refresh {
		remote, err = directory.Refresh(context.Background(), remote.URL, account.LocalActor)
		if err != nil {
			return err
		}
	}
	return json.MarshalOptions{}.MarshalFull(json.EncodeOptions{Indent: "  "}, os.Stdout, remote.Profile)
}
