package main

import (
	"io"
	"net/http"
	"time"

	"github.com/fedipub/fedipub/activitypub"
	"github.com/fedipub/fedipub/internal/httpx"
	"github.com/fedipub/fedipub/wellknown"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

type ServeCmd struct {
	Addr string `help:"address to listen" default:"127.0.0.1:9999"`
}

func (s *ServeCmd) Run(ctx *Context) error {
	db, err := gorm.Open(ctx.Dialector, &ctx.Config)
	if err != nil {
		return err
	}
	if err := configureDB(db); err != nil {
		return err
	}

	env, directory := newEnv(db)
	envFn := func(r *http.Request) *activitypub.Env {
		return &activitypub.Env{
			Env:       env,
			Directory: directory,
		}
	}

	c := chi.NewRouter()
	c.Use(middleware.RequestID)
	c.Use(middleware.RealIP)
	c.Use(middleware.Logger)
	c.Use(middleware.Recoverer)

	c.Route("/pub/{username}", func(r chi.Router) {
		r.Get("/", httpx.HandlerFunc(envFn, activitypub.UsersShow))
		r.Post("/inbox", httpx.HandlerFunc(envFn, activitypub.InboxCreate))
		r.Get("/outbox", httpx.HandlerFunc(envFn, activitypub.OutboxIndex))
		r.Get("/followers", httpx.HandlerFunc(envFn, activitypub.FollowersIndex))
		r.Get("/following", httpx.HandlerFunc(envFn, activitypub.FollowingIndex))
		r.Route("/statuses/{id}", func(r chi.Router) {
			r.Get("/", httpx.HandlerFunc(envFn, activitypub.StatusesShow))
			r.Get("/activity", httpx.HandlerFunc(envFn, activitypub.StatusesActivity))
			r.Get("/replies", httpx.HandlerFunc(envFn, activitypub.StatusesReplies))
			r.Get("/likes", httpx.HandlerFunc(envFn, activitypub.StatusesLikes))
			r.Get("/shares", httpx.HandlerFunc(envFn, activitypub.StatusesShares))
		})
	})

	c.Route("/.well-known", func(r chi.Router) {
		r.Get("/webfinger", httpx.HandlerFunc(envFn, wellknown.WebfingerShow))
		r.Get("/host-meta", wellknown.HostMetaIndex)
		r.Get("/nodeinfo", httpx.HandlerFunc(envFn, wellknown.NodeInfoIndex))
	})
	c.Get("/nodeinfo/{version}", httpx.HandlerFunc(envFn, wellknown.NodeInfoShow))

	c.Get("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		// no robots, especially not you Bingbot!
		io.WriteString(w, "User-agent: *\nDisallow: /")
	})

	svr := &http.Server{
		Addr:         s.Addr,
		Handler:      c,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	env.Log().Info("listening", "addr", s.Addr)
	return svr.ListenAndServe()
}
