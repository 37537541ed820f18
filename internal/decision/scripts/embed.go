// Package scripts holds the bundled decision scripts.
package scripts

import _ "embed"

// Hunter attacks the weakest opponent and defends when low.
//
//go:embed hunter.tengo
var Hunter string

// Bundled returns every bundled script by name.
func Bundled() map[string]string {
	return map[string]string{"hunter": Hunter}
}
