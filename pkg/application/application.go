package application

import (
	"github.com/gorilla/mux"
)

// Controller mounts a group of routes on the router.
type Controller interface {
	Register(r *mux.Router)
	Key() string
}

// Application collects the controllers and middleware the HTTP server is built from.
type Application interface {
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
}

func New() Application {
	return &application{}
}

type application struct {
	controllers []Controller
	middleware  []mux.MiddlewareFunc
}

func (app *application) Controllers() []Controller {
	return app.controllers
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	return app.middleware
}

// RegisterControllers adds controllers; a later controller with the same Key replaces the earlier one.
func (app *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		replaced := false
		for i, existing := range app.controllers {
			if existing.Key() == c.Key() {
				app.controllers[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			app.controllers = append(app.controllers, c)
		}
	}
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.middleware = append(app.middleware, middleware...)
}
