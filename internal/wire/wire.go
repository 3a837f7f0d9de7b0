//go:build wireinject
// +build wireinject

package wire

import (
	"context"

	"github.com/google/wire"

	"github.com/sevigo/review-warden/internal/app"
)

func InitializeApp(ctx context.Context) (*app.App, func(), error) {
	wire.Build(ServerSet)
	return &app.App{}, nil, nil
}

func InitializeCLI(ctx context.Context) (*app.CLI, func(), error) {
	wire.Build(CLISet)
	return &app.CLI{}, nil, nil
}
