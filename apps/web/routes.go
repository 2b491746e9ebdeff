package web

import (
	"net/http"

	"github.com/km-arc/go-boot/framework/app"
	"github.com/km-arc/go-boot/framework/routing"
)

// GreetController serves greetings.
type GreetController struct {
	app.Controller
	app *app.Application
}

// Show handles GET /api/greet/{name}.
func (c *GreetController) Show(w http.ResponseWriter, r *http.Request) {
	g, err := app.Make[*Greeter](r.Context(), c.app)
	if err != nil {
		c.Response(w).DependencyError(err)
		return
	}
	c.Response(w).Success(map[string]string{"message": g.Greet(routing.Param(r, "name"))})
}

// Routes are the web application's route records.
func Routes(a *app.Application) routing.Record {
	greet := &GreetController{app: a}
	return routing.NewPrefix("/api", a.Name(),
		routing.NewEndpoint("/greet/{name}", http.HandlerFunc(greet.Show)).Named("greet.show"),
	)
}
