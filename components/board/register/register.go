// Package register registers all relevant boards.
package register

import (
	// for boards.
	_ "go.viam.com/eev/components/board/fake"
	_ "go.viam.com/eev/components/board/gpiochip"
	_ "go.viam.com/eev/components/board/periph"
)
