package main

import (
	"os"

	"github.com/alecthomas/kong"
	"golang.org/x/exp/slog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Context struct {
	Debug bool

	gorm.Config
	Dialector gorm.Dialector
}

var cli struct {
	Debug bool   `help:"Enable debug mode."`
	DSN   string `required:"" help:"data source name"`

	Serve       ServeCmd       `cmd:"" help:"Serve the federation endpoints."`
	AutoMigrate AutoMigrateCmd `cmd:"" help:"Automigrate the database."`
	CreateActor CreateActorCmd `cmd:"" help:"Create a local actor."`
	DeleteActor DeleteActorCmd `cmd:"" help:"Delete a local actor."`
	Follow      FollowCmd      `cmd:"" help:"Follow a remote actor."`
	Publish     PublishCmd     `cmd:"" help:"Publish a note as a local actor."`
	FetchActor  FetchActorCmd  `cmd:"" help:"Fetch, or refresh, a remote actor's profile."`
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr))
}

func main() {
	ctx := kong.Parse(&cli)
	err := ctx.Run(&Context{
		Debug: cli.Debug,
		Config: gorm.Config{
			Logger: logger.Default.LogMode(func() logger.LogLevel {
				if cli.Debug {
					return logger.Info
				}
				return logger.Warn
			}()),
		},
		Dialector: newDialector(cli.DSN),
	})
	ctx.FatalIfErrorf(err)
}
