// Package web is the demo storefront application.
package web

import (
	"fmt"
	"time"

	"github.com/km-arc/go-boot/framework/config"
	"github.com/km-arc/go-boot/lib/clock"
)

// Greeter builds greetings. Its clock comes from the shared library.
type Greeter struct {
	clock *clock.Clock
	app   string
}

func NewGreeter(c *clock.Clock, cfg config.AppConfig) *Greeter {
	return &Greeter{clock: c, app: cfg.Name}
}

func (g *Greeter) Greet(name string) string {
	return fmt.Sprintf("Hello %s, %s says it is %s", name, g.app, g.clock.Now().Format(time.Kitchen))
}
