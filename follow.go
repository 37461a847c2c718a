package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fedipub/fedipub/activitypub"
	"github.com/fedipub/fedipub/internal/cache"
	"github.com/fedipub/fedipub/internal/webfinger"
	"github.com/fedipub/fedipub/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FollowCmd struct {
	Actor  string `required:"" help:"email address of the local actor to follow with"`
	Object string `required:"" help:"actor to follow, as user@domain or a profile URL"`
}

func (f *FollowCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}
	_, directory := newEnv(db)

	account, err := models.NewAccounts(db).Find(f.Actor)
	if err != nil {
		return err
	}
	actor := account.LocalActor

	remote, err := resolveObject(context.Background(), directory, actor, f.Object)
	if err != nil {
		return err
	}
	if err := models.NewFollowings(db).Follow(actor, remote); err != nil {
		return err
	}

	client, err := activitypub.NewClient(actor)
	if err != nil {
		return err
	}
	err = client.Post(context.Background(), remote.Inbox(), map[string]any{
		"@context": "https://www.w3.org/ns/activitystreams",
		"id":       fmt.Sprintf("https://%s/%s", actor.Domain, uuid.NewString()),
		"type":     "Follow",
		"actor":    actor.URI(),
		"object":   remote.URL,
	})
	if err != nil {
		return err
	}
	fmt.Println("following", remote.Handle())
	return nil
}

func newEnv(db *gorm.DB) (*models.Env, *activitypub.Directory) {
	env := &models.Env{DB: db, Logger: newLogger()}
	return env, activitypub.NewDirectory(env, cache.New[string, *models.Profile](256))
}

func resolveObject(ctx context.Context, directory *activitypub.Directory, signAs *models.LocalActor, object string) (*models.RemoteActor, error) {
	if strings.HasPrefix(object, "http://") || strings.HasPrefix(object, "https://") {
		return directory.ResolveURL(ctx, object, signAs)
	}
	acct, err := webfinger.Parse(object)
	if err != nil {
		return nil, err
	}
	return directory.ResolveHandle(ctx, acct.User, acct.Host)
}
